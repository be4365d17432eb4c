// Package pipeline turns migration jobs into tasks on one shared graph.
//
// Every table gets the same chain of preflight checks, optional creation,
// unload, copy and cleanup. Two shared barriers sit between the stages of all
// chains: every cluster check precedes the cluster barrier, every table check
// and creation runs between the two barriers, and no unload starts before the
// resource barrier has succeeded.
package pipeline
