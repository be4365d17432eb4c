package executor

import (
	"context"

	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/node"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, workerID int, jobs <-chan *node.Node, done chan<- completion) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", zap.Int("workerID", workerID))

	for n := range jobs {
		workerLogger := logger.With(zap.Int("workerID", workerID), zap.String("nodeID", n.ID()))
		workerLogger.Debug("Worker picked up node for execution.")
		done <- completion{handle: n.Handle(), err: execute(ctxlog.WithLogger(ctx, workerLogger), n)}
	}
	logger.Debug("Worker finished.", zap.Int("workerID", workerID))
}

// execute runs a node's task, turning a panic into an ordinary failure.
func execute(ctx context.Context, n *node.Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("task panicked: %v", r)
		}
	}()
	return n.Task.Execute(ctx)
}
