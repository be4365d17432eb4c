package pipeline

import (
	"context"
	"fmt"

	"github.com/pingcap/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/staging"
	"github.com/specialistvlad/unloadcopy/internal/warehouse"
)

// KeyProviderFunc returns the KMS-backed key provider for a region.
type KeyProviderFunc func(region string) (staging.KeyProvider, error)

// WithKMS enables jobs that ask for KMS-generated data keys.
func WithKMS(f KeyProviderFunc) Option {
	return func(b *Builder) { b.kms = f }
}

// WithClusterFactory replaces how clusters are created from job endpoints.
func WithClusterFactory(f func(config.Endpoint) *warehouse.Cluster) Option {
	return func(b *Builder) { b.newCluster = f }
}

// jobContext is what every pipeline of one job shares.
type jobContext struct {
	job         *config.Job
	source      *warehouse.Cluster
	target      *warehouse.Cluster
	area        *staging.Area
	credentials warehouse.Credentials
}

// AddJob expands a job into table pipelines according to its source kind.
// Schema and database jobs query the source cluster for their tables.
func (b *Builder) AddJob(ctx context.Context, job *config.Job) error {
	jc, err := b.prepare(job)
	if err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("Planning migration.",
		zap.String("job", job.Name),
		zap.Stringer("kind", job.Source.Kind()),
		zap.Stringer("source", jc.source),
		zap.Stringer("target", jc.target),
		zap.Stringer("staging", jc.area.Location()),
	)

	switch job.Source.Kind() {
	case config.KindTable:
		schema, table := job.Source.SchemaName, job.Source.TableName
		targetSchema, targetName := b.targetNames(job, schema, table)
		return b.addTable(ctx, jc, schema, table, targetSchema, targetName)
	case config.KindSchema:
		return b.addSchema(ctx, jc, warehouse.NewSchema(jc.source, job.Source.SchemaName))
	default:
		return b.addDatabase(ctx, jc)
	}
}

// AddSchemaMigration adds a pipeline for every table of schema on the job's
// source cluster, regardless of the job's own source kind.
func (b *Builder) AddSchemaMigration(ctx context.Context, job *config.Job, schema string) error {
	jc, err := b.prepare(job)
	if err != nil {
		return err
	}
	return b.addSchema(ctx, jc, warehouse.NewSchema(jc.source, schema))
}

// AddDatabaseMigration adds a pipeline for every table of every user schema on
// the job's source cluster.
func (b *Builder) AddDatabaseMigration(ctx context.Context, job *config.Job) error {
	jc, err := b.prepare(job)
	if err != nil {
		return err
	}
	return b.addDatabase(ctx, jc)
}

func (b *Builder) prepare(job *config.Job) (*jobContext, error) {
	root, err := staging.ParseLocation(job.Staging.Path)
	if err != nil {
		return nil, err
	}

	var keys staging.KeyProvider = staging.LocalKeyProvider{}
	if job.Staging.KMSGeneratedKey {
		if b.kms == nil {
			return nil, errors.Errorf("job %s asks for KMS data keys but KMS is not configured", job.Name)
		}
		region := job.Staging.Region
		if region == "" {
			region = b.opts.Region
		}
		if keys, err = b.kms(region); err != nil {
			return nil, err
		}
	}

	return &jobContext{
		job:    job,
		source: b.cluster(job.Source),
		target: b.cluster(job.Target),
		area:   staging.NewArea(root, keys),
		credentials: warehouse.Credentials{
			IAMRole:         job.Staging.IAMRole,
			AccessKeyID:     job.Staging.AccessKeyID,
			SecretAccessKey: job.Staging.SecretAccessKey,
			SessionToken:    job.Staging.SessionToken,
		},
	}, nil
}

// cluster returns the shared cluster of an endpoint, creating it once per
// distinct set of connection settings.
func (b *Builder) cluster(ep config.Endpoint) *warehouse.Cluster {
	key := clusterKey(ep)
	if existing, ok := b.clusters[key]; ok {
		return existing
	}
	c := b.newCluster(ep)
	b.clusters[key] = c
	return c
}

func clusterKey(ep config.Endpoint) string {
	return fmt.Sprintf("%s\x00%s\x00%s:%d/%s?sslmode=%s",
		ep.ConnectUser, ep.ConnectPwd, ep.ClusterEndpoint, ep.ClusterPort, ep.Database, ep.SSLMode)
}

func (b *Builder) addDatabase(ctx context.Context, jc *jobContext) error {
	schemas, err := warehouse.NewDatabase(jc.source).ListSchemas(ctx)
	if err != nil {
		return err
	}
	if len(schemas) == 0 {
		ctxlog.FromContext(ctx).Warn("Source database has no user schemas.", zap.Stringer("source", jc.source))
	}

	// Listings run concurrently; pipelines are still added in schema order.
	listed := make([][]*warehouse.Table, len(schemas))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(b.opts.MaxWorkers, 1))
	for i, schema := range schemas {
		group.Go(func() error {
			tables, err := schema.ListTables(groupCtx)
			listed[i] = tables
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	for i, schema := range schemas {
		if err := b.addTables(ctx, jc, schema, listed[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) addSchema(ctx context.Context, jc *jobContext, schema *warehouse.Schema) error {
	tables, err := schema.ListTables(ctx)
	if err != nil {
		return err
	}
	return b.addTables(ctx, jc, schema, tables)
}

func (b *Builder) addTables(ctx context.Context, jc *jobContext, schema *warehouse.Schema, tables []*warehouse.Table) error {
	if len(tables) == 0 {
		ctxlog.FromContext(ctx).Warn("Source schema has no tables.", zap.String("schema", schema.Name))
	}
	for _, t := range tables {
		if err := b.addTable(ctx, jc, t.Schema, t.Name, t.Schema, t.Name); err != nil {
			return err
		}
	}
	return nil
}

// targetNames returns the destination of a table job. It keeps the source's
// names unless the job's target or the tool options name others.
func (b *Builder) targetNames(job *config.Job, schema, table string) (string, string) {
	if job.Target.SchemaName != "" {
		schema = job.Target.SchemaName
	}
	if job.Target.TableName != "" {
		table = job.Target.TableName
	}
	if b.opts.TableName != "" {
		table = b.opts.TableName
	}
	return schema, table
}

func (b *Builder) addTable(ctx context.Context, jc *jobContext, schema, table, targetSchema, targetName string) error {
	p, err := b.AddTableMigration(TableMigration{
		Source:       warehouse.NewTable(jc.source, schema, table),
		Target:       warehouse.NewTable(jc.target, targetSchema, targetName),
		SourceSchema: schema,
		SourceName:   table,
		TargetSchema: targetSchema,
		TargetName:   targetName,
		Slot:         jc.area.Table(schema, table),
		Credentials:  jc.credentials,
		ExplicitIDs:  jc.job.Target.ExplicitIDs,
		Cleanup:      jc.job.Staging.CleanupEnabled(),
	})
	if err != nil {
		return err
	}
	logPipeline(ctx, p)
	return nil
}

// Close releases the connection pools of every cluster the builder created.
func (b *Builder) Close() error {
	clusters := make([]*warehouse.Cluster, 0, len(b.clusters))
	for _, c := range b.clusters {
		clusters = append(clusters, c)
	}
	return warehouse.CloseAll(clusters...)
}
