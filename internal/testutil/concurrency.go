package testutil

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/specialistvlad/unloadcopy/internal/task"
)

// Recorder builds tasks that record when they ran and how many of them were
// running at the same time.
type Recorder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
	order   []string

	running    atomic.Int32
	maxRunning atomic.Int32
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]*ExecutionRecord)}
}

// Task returns a task named name that sleeps for d and then returns err.
func (r *Recorder) Task(name string, d time.Duration, err error) task.Task {
	return task.Func(func(ctx context.Context) error {
		now := r.running.Inc()
		for {
			peak := r.maxRunning.Load()
			if now <= peak || r.maxRunning.CompareAndSwap(peak, now) {
				break
			}
		}

		start := time.Now()
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
		end := time.Now()
		r.running.Dec()

		r.mu.Lock()
		r.records[name] = &ExecutionRecord{Start: start, End: end}
		r.order = append(r.order, name)
		r.mu.Unlock()
		return err
	})
}

// Record returns the execution record of a task, or nil if it never ran.
func (r *Recorder) Record(name string) *ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[name]
}

// Ran reports whether the named task executed.
func (r *Recorder) Ran(name string) bool {
	return r.Record(name) != nil
}

// Finished returns task names in completion order.
func (r *Recorder) Finished() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// MaxConcurrent returns the highest number of tasks observed running at once.
func (r *Recorder) MaxConcurrent() int {
	return int(r.maxRunning.Load())
}
