// Package testutil holds helpers shared by package tests: log capture and
// recording tasks for timing and concurrency assertions.
package testutil
