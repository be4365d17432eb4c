package app

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/kms"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/migration"
	"github.com/specialistvlad/unloadcopy/internal/pipeline"
	"github.com/specialistvlad/unloadcopy/internal/staging"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *zap.Logger
	ctx    context.Context
	config *Config

	registry   *prometheus.Registry
	httpServer *http.Server

	fetcher         config.Fetcher
	deleter         migration.Deleter
	pipelineOptions []pipeline.Option

	sessionOnce   sync.Once
	awsSession    *session.Session
	awsSessionErr error
}

// Option customizes an App, mostly to replace external collaborators in tests.
type Option func(*App)

// WithFetcher replaces the S3 client used to read remote job files.
func WithFetcher(f config.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithDeleter replaces the S3 client used to clean up staged files.
func WithDeleter(d migration.Deleter) Option {
	return func(a *App) { a.deleter = d }
}

// WithPipelineOptions appends options passed to the pipeline builder.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(a *App) { a.pipelineOptions = append(a.pipelineOptions, opts...) }
}

// NewApp is the constructor for the main application. It returns an App with
// its own isolated logger and metrics registry.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctxlog.WithLogger(context.Background(), logger),
		config:   cfg,
		registry: registry,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the application's metrics registry. This is primarily for testing.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// session returns the AWS session of the tool, creating it on first use.
func (a *App) session() (*session.Session, error) {
	a.sessionOnce.Do(func() {
		opts := a.config.AWS
		if opts.Region == "" {
			opts.Region = a.config.Region
		}
		a.awsSession, a.awsSessionErr = staging.NewSession(opts)
	})
	return a.awsSession, a.awsSessionErr
}

// store returns the S3 collaborators, falling back to a real S3 client for
// those not replaced by options.
func (a *App) store() (config.Fetcher, migration.Deleter, error) {
	if a.fetcher != nil && a.deleter != nil {
		return a.fetcher, a.deleter, nil
	}
	sess, err := a.session()
	if err != nil {
		return nil, nil, err
	}
	s := staging.NewStore(s3.New(sess))
	fetcher, deleter := a.fetcher, a.deleter
	if fetcher == nil {
		fetcher = s
	}
	if deleter == nil {
		deleter = s
	}
	return fetcher, deleter, nil
}

// fetchFunc adapts a function to config.Fetcher.
type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// fetch reads a remote job file, creating the S3 client only when needed.
func (a *App) fetch(ctx context.Context, url string) ([]byte, error) {
	fetcher, _, err := a.store()
	if err != nil {
		return nil, err
	}
	return fetcher.Fetch(ctx, url)
}

// kmsKeys creates a KMS data key provider for a region.
func (a *App) kmsKeys(region string) (staging.KeyProvider, error) {
	sess, err := a.session()
	if err != nil {
		return nil, err
	}
	cfg := aws.NewConfig()
	if region != "" {
		cfg.WithRegion(region)
	}
	client := kms.New(sess, cfg)
	return staging.NewKMSKeyProvider(client, a.config.KMSKeyID), nil
}
