package executor

import (
	"context"
	"time"

	"github.com/specialistvlad/unloadcopy/internal/node"
)

// TaskResult is the final state of one node.
type TaskResult struct {
	Handle   node.Handle
	Label    string
	Stage    string
	Scope    string
	Barrier  bool
	Status   node.Status
	Err      error
	Started  time.Time
	Finished time.Time
}

// Result summarizes a finished run.
type Result struct {
	// Success is true iff no node Failed or was Skipped.
	Success bool
	// Statuses maps every handle to its terminal status.
	Statuses map[node.Handle]node.Status
	// Errors holds the diagnostic of every Failed or Skipped node.
	Errors map[node.Handle]error
	// Tasks lists every node in insertion order.
	Tasks []TaskResult
}

// Count returns how many nodes ended with the given status.
func (r *Result) Count(status node.Status) int {
	count := 0
	for _, s := range r.Statuses {
		if s == status {
			count++
		}
	}
	return count
}

// Status returns the terminal status of a node.
func (r *Result) Status(h node.Handle) node.Status {
	return r.Statuses[h]
}

// Unsuccessful returns the failed and skipped non-barrier tasks.
func (r *Result) Unsuccessful() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if !t.Barrier && t.Status != node.StatusSucceeded {
			out = append(out, t)
		}
	}
	return out
}

func (e *Executor) collect(ctx context.Context) *Result {
	store := e.graph.Store()
	result := &Result{
		Success:  true,
		Statuses: make(map[node.Handle]node.Status, e.graph.Len()),
		Errors:   make(map[node.Handle]error),
	}
	for _, n := range e.graph.Nodes() {
		h := n.Handle()
		status, _ := store.GetStatus(ctx, h)
		nodeErr, _ := store.GetError(ctx, h)
		timing, _ := store.GetTiming(ctx, h)

		result.Statuses[h] = status
		if nodeErr != nil {
			result.Errors[h] = nodeErr
		}
		if status != node.StatusSucceeded {
			result.Success = false
		}
		result.Tasks = append(result.Tasks, TaskResult{
			Handle:   h,
			Label:    n.ID(),
			Stage:    n.Address().Stage(),
			Scope:    n.Address().Scope(),
			Barrier:  n.IsBarrier(),
			Status:   status,
			Err:      nodeErr,
			Started:  timing.Started,
			Finished: timing.Finished,
		})
	}
	return result
}
