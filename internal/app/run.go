package app

import (
	"context"

	"github.com/pingcap/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/dag"
	"github.com/specialistvlad/unloadcopy/internal/executor"
	"github.com/specialistvlad/unloadcopy/internal/pipeline"
	"github.com/specialistvlad/unloadcopy/internal/report"
)

// SetupError is returned by Run when the run could not start: the job files
// could not be loaded or the task graph could not be built.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string { return e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

func setupError(err error, format string, args ...any) error {
	return &SetupError{Err: errors.Annotatef(err, format, args...)}
}

// Run loads the jobs, builds one graph for all of them, executes it and
// prints the report. Task failures are reported through the returned Result,
// not as an error.
func (a *App) Run(ctx context.Context) (result *executor.Result, err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer func() {
		err = multierr.Append(err, a.closeHealthCheckServer())
		_ = a.logger.Sync()
	}()

	jobs, err := config.LoadJobs(ctx, a.config.ConfigFile, fetchFunc(a.fetch))
	if err != nil {
		return nil, setupError(err, "failed to load jobs from %s", a.config.ConfigFile)
	}
	a.logger.Info("Jobs loaded.", zap.Int("count", len(jobs)))

	_, deleter, err := a.store()
	if err != nil {
		return nil, setupError(err, "failed to set up AWS clients")
	}

	graph := dag.New()
	opts := append([]pipeline.Option{pipeline.WithKMS(a.kmsKeys)}, a.pipelineOptions...)
	builder, err := pipeline.New(graph, a.config.Options, deleter, opts...)
	if err != nil {
		return nil, setupError(err, "failed to build task graph")
	}
	defer func() {
		if cerr := builder.Close(); cerr != nil {
			a.logger.Warn("Failed to close warehouse connections.", zap.Error(cerr))
		}
	}()

	for _, job := range jobs {
		if err := builder.AddJob(ctx, job); err != nil {
			return nil, setupError(err, "failed to plan job %s", job.Name)
		}
	}
	a.logger.Debug("Dependency graph built.",
		zap.Int("node_count", graph.Len()),
		zap.Int("pipelines", len(builder.Pipelines())),
	)

	a.logger.Info("🚀 Starting concurrent execution...", zap.Int("workers", a.config.MaxWorkers))
	exec := executor.New(graph, a.config.MaxWorkers, executor.WithMetrics(executor.NewMetrics(a.registry)))
	result, err = exec.Run(ctx)
	if err != nil {
		return nil, setupError(err, "execution could not start")
	}
	a.logger.Info("🏁 Execution finished.", zap.Bool("success", result.Success))

	if err := report.New(a.outW, a.config.NoColor).Write(result); err != nil {
		a.logger.Warn("Failed to write report.", zap.Error(err))
	}

	a.logger.Debug("App.Run method finished.")
	return result, nil
}
