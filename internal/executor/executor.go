package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/dag"
	"github.com/specialistvlad/unloadcopy/internal/node"
)

// ErrInvalidWorkers is returned by Run when fewer than one worker is requested.
var ErrInvalidWorkers = errors.New("executor: at least one worker is required")

// Executor runs every node of one graph on a fixed-size worker pool.
type Executor struct {
	graph      *dag.Graph
	numWorkers int
	metrics    *Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics reports task outcomes and durations to m.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New creates an executor for graph with numWorkers concurrent slots.
func New(graph *dag.Graph, numWorkers int, opts ...Option) *Executor {
	e := &Executor{graph: graph, numWorkers: numWorkers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// completion is what a worker reports back after running one node.
type completion struct {
	handle node.Handle
	err    error
}

// Run freezes the graph and executes it to completion. Task failures never
// abort the run: they are reported per node in the returned Result. An error
// is returned only when the run could not start.
//
// If ctx is cancelled, no further node is dispatched; running nodes finish
// and every node that did not run is marked Skipped.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	if e.numWorkers < 1 {
		return nil, ErrInvalidWorkers
	}
	logger := ctxlog.FromContext(ctx)

	if err := e.graph.Freeze(ctx); err != nil {
		return nil, err
	}

	// The pool never outnumbers the nodes.
	workers := min(e.numWorkers, max(e.graph.Len(), 1))
	jobs := make(chan *node.Node, workers)
	done := make(chan completion, workers)

	logger.Debug("Starting worker pool.", zap.Int("workers", workers), zap.Int("requested", e.numWorkers))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			e.worker(ctx, workerID, jobs, done)
		}(i)
	}

	start := time.Now()
	e.coordinate(ctx, workers, jobs, done)
	close(jobs)
	wg.Wait()

	result := e.collect(ctx)
	logger.Info("All nodes reached a terminal status.",
		zap.Bool("success", result.Success),
		zap.Int("succeeded", result.Count(node.StatusSucceeded)),
		zap.Int("failed", result.Count(node.StatusFailed)),
		zap.Int("skipped", result.Count(node.StatusSkipped)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// coordinate owns every status change of the run. Workers only execute and
// report back, so bookkeeping is single-threaded.
func (e *Executor) coordinate(ctx context.Context, workers int, jobs chan<- *node.Node, done <-chan completion) {
	logger := ctxlog.FromContext(ctx)
	store := e.graph.Store()

	// remaining counts the unmet dependencies of every node.
	remaining := make(map[node.Handle]int, e.graph.Len())
	for _, n := range e.graph.Nodes() {
		remaining[n.Handle()] = len(e.graph.Dependencies(n.Handle()))
	}

	var queue []node.Handle
	for _, h := range e.graph.ReadySet(store.Snapshot(ctx)) {
		queue = e.markReady(ctx, queue, h)
	}
	logger.Debug("Found all root nodes.", zap.Int("count", len(queue)))

	inFlight := 0
	cancelled := ctx.Done()
	stopped := false
	for {
		if !stopped && ctx.Err() != nil {
			stopped = true
		}
		for !stopped && inFlight < workers && len(queue) > 0 {
			h := queue[0]
			queue = queue[1:]
			if err := store.Transition(ctx, h, node.StatusReady, node.StatusRunning); err != nil {
				// Skipped while queued.
				logger.Debug("Dropping node that left the ready state.", zap.Stringer("handle", h), zap.Error(err))
				continue
			}
			n, _ := e.graph.Node(h)
			inFlight++
			e.metrics.started()
			jobs <- n
		}
		if inFlight == 0 {
			break
		}

		select {
		case c := <-done:
			inFlight--
			queue = e.complete(ctx, c, remaining, queue)
		case <-cancelled:
			logger.Warn("Context canceled, no further nodes will be dispatched.", zap.Error(ctx.Err()))
			stopped = true
			cancelled = nil
		}
	}

	e.skipRemaining(ctx)
}

// complete applies one worker report and returns the updated ready queue.
func (e *Executor) complete(ctx context.Context, c completion, remaining map[node.Handle]int, queue []node.Handle) []node.Handle {
	logger := ctxlog.FromContext(ctx)
	store := e.graph.Store()
	n, _ := e.graph.Node(c.handle)
	nodeLogger := logger.With(zap.String("nodeID", n.ID()))

	if c.err != nil {
		nodeLogger.Error("Node execution failed.", zap.Error(c.err))
		e.setStatus(ctx, c.handle, node.StatusRunning, node.StatusFailed)
		e.setError(ctx, c.handle, c.err)
		e.metrics.finished(ctx, n, node.StatusFailed, store)
		e.skipDescendants(ctx, n)
		return queue
	}

	nodeLogger.Debug("Node execution succeeded.")
	e.setStatus(ctx, c.handle, node.StatusRunning, node.StatusSucceeded)
	e.metrics.finished(ctx, n, node.StatusSucceeded, store)

	for _, dependent := range e.graph.Dependents(c.handle) {
		remaining[dependent]--
		if remaining[dependent] == 0 {
			nodeLogger.Debug("Unlocking dependent node.", zap.Stringer("dependent", dependent))
			queue = e.markReady(ctx, queue, dependent)
		}
	}
	return queue
}

func (e *Executor) markReady(ctx context.Context, queue []node.Handle, h node.Handle) []node.Handle {
	if e.setStatus(ctx, h, node.StatusPending, node.StatusReady) {
		queue = append(queue, h)
	}
	return queue
}

// skipDescendants marks every transitive successor of a failed node Skipped.
func (e *Executor) skipDescendants(ctx context.Context, failed *node.Node) {
	logger := ctxlog.FromContext(ctx)
	cause := &SkippedError{Upstream: failed.ID()}
	for _, h := range e.graph.Descendants(failed.Handle()) {
		if e.skip(ctx, h, cause) {
			n, _ := e.graph.Node(h)
			logger.Warn("Skipping dependent node due to upstream failure.",
				zap.String("nodeID", n.ID()), zap.String("dependency", failed.ID()))
		}
	}
}

// skipRemaining marks every node that never ran Skipped. After a normal run
// there is none; after cancellation these are the nodes left undispatched.
func (e *Executor) skipRemaining(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	cause := &SkippedError{Reason: "run stopped before the node was dispatched"}
	if err := ctx.Err(); err != nil {
		cause.Reason = fmt.Sprintf("run stopped before the node was dispatched: %v", err)
	}
	for _, n := range e.graph.Nodes() {
		if e.skip(ctx, n.Handle(), cause) {
			logger.Warn("Skipping node that was never dispatched.", zap.String("nodeID", n.ID()))
		}
	}
}

// skip moves a Pending or Ready node to Skipped and reports whether it did.
func (e *Executor) skip(ctx context.Context, h node.Handle, cause error) bool {
	store := e.graph.Store()
	status, err := store.GetStatus(ctx, h)
	if err != nil || (status != node.StatusPending && status != node.StatusReady) {
		return false
	}
	if !e.setStatus(ctx, h, status, node.StatusSkipped) {
		return false
	}
	e.setError(ctx, h, cause)
	n, _ := e.graph.Node(h)
	e.metrics.finished(ctx, n, node.StatusSkipped, store)
	return true
}

// setStatus applies a transition. Transitions requested by the coordinator
// are always legal, so a failure means the store was tampered with.
func (e *Executor) setStatus(ctx context.Context, h node.Handle, from, to node.Status) bool {
	if err := e.graph.Store().Transition(ctx, h, from, to); err != nil {
		ctxlog.FromContext(ctx).Error("Rejected status transition.", zap.Stringer("handle", h), zap.Error(err))
		return false
	}
	return true
}

func (e *Executor) setError(ctx context.Context, h node.Handle, err error) {
	if serr := e.graph.Store().SetError(ctx, h, err); serr != nil {
		ctxlog.FromContext(ctx).Error("Failed to record node error.", zap.Stringer("handle", h), zap.Error(serr))
	}
}
