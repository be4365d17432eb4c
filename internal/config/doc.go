// Package config loads the two configuration inputs of a migration run.
//
// A job file (JSON or HCL) describes what to migrate: the unload source, the
// copy target and the S3 staging area. Tool options describe how to run it:
// which preflight checks to add, how many workers to use, where to log. Options
// are layered from built-in defaults, an optional TOML file and command-line
// flags, then resolved once into an immutable Options value.
package config
