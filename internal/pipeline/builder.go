package pipeline

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/ctxlog"
	"github.com/specialistvlad/unloadcopy/internal/dag"
	"github.com/specialistvlad/unloadcopy/internal/migration"
	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodeid"
	"github.com/specialistvlad/unloadcopy/internal/task"
	"github.com/specialistvlad/unloadcopy/internal/warehouse"
)

// Builder adds table pipelines to a graph. It owns the two shared barriers.
type Builder struct {
	graph   *dag.Graph
	opts    config.Options
	deleter migration.Deleter

	clusterBarrier  node.Handle
	resourceBarrier node.Handle
	pipelines       []*Pipeline

	pingBackOff func() backoff.BackOff

	// Used by AddJob only.
	kms        KeyProviderFunc
	newCluster func(config.Endpoint) *warehouse.Cluster
	clusters   map[string]*warehouse.Cluster
}

// Option configures a Builder.
type Option func(*Builder)

// WithPingBackOff overrides the retry policy of cluster checks.
func WithPingBackOff(f func() backoff.BackOff) Option {
	return func(b *Builder) { b.pingBackOff = f }
}

// New creates a builder and adds the shared barriers to graph. deleter
// removes staged files in cleanup tasks.
func New(graph *dag.Graph, opts config.Options, deleter migration.Deleter, options ...Option) (*Builder, error) {
	b := &Builder{
		graph:      graph,
		opts:       opts,
		deleter:    deleter,
		newCluster: warehouse.NewCluster,
		clusters:   make(map[string]*warehouse.Cluster),
	}
	for _, opt := range options {
		opt(b)
	}

	var err error
	if b.clusterBarrier, err = graph.AddBarrier(clusterBarrierID, nil, nil); err != nil {
		return nil, err
	}
	b.resourceBarrier, err = graph.AddBarrier(resourceBarrierID, []node.Handle{b.clusterBarrier}, nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Graph returns the graph being built.
func (b *Builder) Graph() *dag.Graph { return b.graph }

// Barriers returns the cluster and resource barrier.
func (b *Builder) Barriers() (cluster, resource node.Handle) {
	return b.clusterBarrier, b.resourceBarrier
}

// Pipelines returns every pipeline added so far.
func (b *Builder) Pipelines() []*Pipeline { return b.pipelines }

// TableMigration is one table to move.
type TableMigration struct {
	Source migration.Table
	Target migration.Table
	// SourceSchema and SourceName label the pipeline's tasks.
	SourceSchema string
	SourceName   string
	// TargetSchema and TargetName are used when creating the destination.
	TargetSchema string
	TargetName   string

	Slot        migration.Slot
	Credentials warehouse.Credentials
	ExplicitIDs bool
	Cleanup     bool
}

// AddTableMigration adds the tasks of one table. Which checks are added
// depends on the pre-test options:
//
//   - a cluster check precedes the cluster barrier for each side that gets no
//     table check, when connection pre-tests are on;
//   - with destination auto-creation the destination gets a cluster check
//     instead of a table check, and the create task runs between the barriers;
//   - table checks run between the barriers.
//
// Unload follows the resource barrier, then copy, then cleanup.
//
// A frozen graph is rejected before any task is added. Any other failure to
// add a task leaves the tasks added so far in the graph, so the graph must
// not be run after an error.
func (b *Builder) AddTableMigration(m TableMigration) (*Pipeline, error) {
	if b.graph.Frozen() {
		return nil, errors.Annotatef(dag.ErrGraphFrozen, "failed to add %s.%s", m.SourceSchema, m.SourceName)
	}
	p := &Pipeline{
		Scope:   m.SourceSchema + "." + m.SourceName,
		handles: make(map[string]node.Handle),
	}
	clusterGate := []node.Handle{b.clusterBarrier}
	resourceGate := []node.Handle{b.resourceBarrier}

	add := func(stage string, t task.Task, deps, depOf []node.Handle) (node.Handle, error) {
		h, err := b.graph.Add(nodeid.New(stage, m.SourceSchema, m.SourceName), t, deps, depOf)
		if err != nil {
			return 0, errors.Annotatef(err, "failed to add %s for %s", stage, p.Scope)
		}
		p.handles[stage] = h
		return h, nil
	}
	clusterCheck := func(stage string, target migration.Pinger) error {
		_, err := add(stage, &migration.ClusterReachable{Target: target, BackOff: b.pingBackOff}, nil, clusterGate)
		return err
	}

	o := b.opts
	if o.ConnectionPreTest {
		if !o.DestinationTablePreTest {
			if err := clusterCheck(StageDestinationCluster, m.Target); err != nil {
				return nil, err
			}
		}
		if !o.SourceTablePreTest {
			if err := clusterCheck(StageSourceCluster, m.Source); err != nil {
				return nil, err
			}
		}
	}
	if o.DestinationTablePreTest {
		if o.DestinationTableAutoCreate {
			if err := clusterCheck(StageDestinationCluster, m.Target); err != nil {
				return nil, err
			}
		} else if _, err := add(StageDestination, &migration.ResourceExists{Target: m.Target}, clusterGate, resourceGate); err != nil {
			return nil, err
		}
	}
	if o.SourceTablePreTest {
		if _, err := add(StageSource, &migration.ResourceExists{Target: m.Source}, clusterGate, resourceGate); err != nil {
			return nil, err
		}
	}
	if o.DestinationTableAutoCreate {
		create := &migration.CreateIfMissing{
			Source: m.Source,
			Target: m.Target,
			Schema: m.TargetSchema,
			Name:   m.TargetName,
		}
		if _, err := add(StageCreate, create, clusterGate, resourceGate); err != nil {
			return nil, err
		}
	}

	unload, err := add(StageUnload, &migration.Unload{Source: m.Source, Slot: m.Slot, Credentials: m.Credentials}, resourceGate, nil)
	if err != nil {
		return nil, err
	}
	cp, err := add(StageCopy, &migration.Copy{
		Target:      m.Target,
		Slot:        m.Slot,
		Credentials: m.Credentials,
		ExplicitIDs: m.ExplicitIDs,
	}, []node.Handle{unload}, nil)
	if err != nil {
		return nil, err
	}
	if m.Cleanup {
		if _, err := add(StageCleanup, &migration.Cleanup{Store: b.deleter, Slot: m.Slot}, []node.Handle{cp}, nil); err != nil {
			return nil, err
		}
	}

	b.pipelines = append(b.pipelines, p)
	return p, nil
}

// logPipeline reports the stages added for a table.
func logPipeline(ctx context.Context, p *Pipeline) {
	ctxlog.FromContext(ctx).Debug("Added table pipeline.",
		zap.String("table", p.Scope),
		zap.Strings("stages", p.Stages()),
	)
}
