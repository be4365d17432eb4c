// Package nodestore defines the interface for storing and retrieving the
// mutable execution state of nodes during a run.
//
// # Why Node Store Exists
//
// The store isolates **mutable execution state** (status, error, timing) from
// the **immutable graph structure** (nodes, edges) owned by dag.Graph. The
// graph is frozen before a run starts; everything that changes afterwards
// goes through a Store.
//
// # Lifecycle and Usage
//
// The node store is:
//  1. **Created** together with the graph (ephemeral, never persisted)
//  2. **Initialized** with every handle in Pending status when the run starts
//  3. **Mutated** by the executor's coordinator as nodes change status
//  4. **Queried** by the graph (ReadySet, Terminal), reports and metrics
//
// # State Transitions
//
// Nodes follow this lifecycle:
//
//	Pending → Ready → Running → Succeeded | Failed
//	Pending | Ready → Skipped
//
// Any other transition is rejected with ErrInvalidTransition.
package nodestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/unloadcopy/internal/node"
)

var (
	// ErrUnknownNode is returned for a handle the store was not initialized with.
	ErrUnknownNode = errors.New("nodestore: unknown node")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("nodestore: invalid status transition")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	Handle node.Handle
	From   node.Status
	To     node.Status
	Actual node.Status
}

func (e *TransitionError) Error() string {
	if e.From != e.Actual {
		return fmt.Sprintf("node %s: expected status %s, found %s", e.Handle, e.From, e.Actual)
	}
	return fmt.Sprintf("node %s: cannot move from %s to %s", e.Handle, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Snapshot is a point-in-time copy of every node's status.
type Snapshot map[node.Handle]node.Status

// Timing holds the wall-clock bounds of a node's execution. Zero values mean
// the node never started or never finished.
type Timing struct {
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the node ran, or zero if it did not finish.
func (t Timing) Duration() time.Duration {
	if t.Started.IsZero() || t.Finished.IsZero() {
		return 0
	}
	return t.Finished.Sub(t.Started)
}

// Store is the interface for managing the mutable execution state of nodes.
//
// Implementations MUST be safe for concurrent use: the executor's coordinator
// writes while reporters and metrics collectors read. All status changes
// must be applied atomically with respect to Snapshot, so that a snapshot
// never observes a half-applied transition.
type Store interface {
	// Init resets the store to track exactly the given handles, all Pending.
	Init(ctx context.Context, handles []node.Handle) error

	// Transition moves a node from one status to another. It fails if the
	// node's current status is not `from` or the move is not allowed.
	// Entering Running records the start time, entering a terminal status
	// records the finish time.
	Transition(ctx context.Context, h node.Handle, from, to node.Status) error

	// GetStatus returns the current status of a node.
	GetStatus(ctx context.Context, h node.Handle) (node.Status, error)

	// SetError records the diagnostic of a failed or skipped node.
	SetError(ctx context.Context, h node.Handle, nodeErr error) error

	// GetError returns the recorded diagnostic, or nil.
	GetError(ctx context.Context, h node.Handle) (error, error)

	// GetTiming returns the recorded execution bounds of a node.
	GetTiming(ctx context.Context, h node.Handle) (Timing, error)

	// Snapshot returns a copy of every tracked node's status.
	Snapshot(ctx context.Context) Snapshot
}
