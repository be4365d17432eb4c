// Package task defines the unit of work the executor runs.
package task

import "context"

// Task is a single unit of work. Execute performs it and reports failure by
// returning an error. A task must not touch the graph it belongs to.
type Task interface {
	Execute(ctx context.Context) error
}

// Func adapts an ordinary function to the Task interface.
type Func func(ctx context.Context) error

// Execute calls f(ctx).
func (f Func) Execute(ctx context.Context) error {
	return f(ctx)
}

// Barrier is a no-op task used only to synchronize fan-in and fan-out edges.
// It always succeeds, so it becomes Succeeded as soon as its predecessors have.
type Barrier struct{}

// Execute does nothing.
func (Barrier) Execute(context.Context) error {
	return nil
}

// IsBarrier reports whether t is a Barrier.
func IsBarrier(t Task) bool {
	switch t.(type) {
	case Barrier, *Barrier:
		return true
	}
	return false
}
