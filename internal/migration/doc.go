// Package migration holds the concrete tasks of a table migration: cluster and
// table preflight checks, destination creation, unload, copy and staging
// cleanup. Each type implements task.Task over the small interfaces below, so
// the scheduler never sees the warehouse or S3.
package migration
