package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/unloadcopy/internal/config"
	"github.com/specialistvlad/unloadcopy/internal/dag"
	"github.com/specialistvlad/unloadcopy/internal/executor"
	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/staging"
	"github.com/specialistvlad/unloadcopy/internal/testutil"
	"github.com/specialistvlad/unloadcopy/internal/warehouse"
)

// fakeTable records what the tasks did to it, in order, into a shared log.
type fakeTable struct {
	name    string
	missing bool
	log     *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (f *fakeTable) String() string { return f.name }

func (f *fakeTable) Ping(context.Context) error {
	f.log.add("ping " + f.name)
	return nil
}

func (f *fakeTable) Exists(context.Context) (bool, error) {
	f.log.add("exists " + f.name)
	return !f.missing, nil
}

func (f *fakeTable) DDL(_ context.Context, schema, name string) (string, error) {
	return "CREATE TABLE " + schema + "." + name + " (id int)", nil
}

func (f *fakeTable) Create(context.Context, string) error {
	f.log.add("create " + f.name)
	f.missing = false
	return nil
}

func (f *fakeTable) Unload(context.Context, warehouse.UnloadSpec) error {
	f.log.add("unload " + f.name)
	return nil
}

func (f *fakeTable) Copy(context.Context, warehouse.CopySpec) error {
	f.log.add("copy " + f.name)
	return nil
}

type fakeDeleter struct{ log *eventLog }

func (d *fakeDeleter) DeletePrefix(_ context.Context, loc staging.Location) (int, error) {
	d.log.add("cleanup " + loc.Prefix)
	return 1, nil
}

func testOptions() config.Options {
	return config.Options{
		ConnectionPreTest:       true,
		SourceTablePreTest:      true,
		DestinationTablePreTest: true,
		MaxWorkers:              4,
	}
}

func newTestBuilder(t *testing.T, opts config.Options, log *eventLog) *Builder {
	t.Helper()
	b, err := New(dag.New(), opts, &fakeDeleter{log: log}, WithPingBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 1)
	}))
	require.NoError(t, err)
	return b
}

func tableMigration(log *eventLog, table string, sourceMissing bool) TableMigration {
	area := staging.NewArea(staging.Location{Bucket: "b", Prefix: "stage/"}, staging.LocalKeyProvider{})
	return TableMigration{
		Source:       &fakeTable{name: "src." + table, missing: sourceMissing, log: log},
		Target:       &fakeTable{name: "dst." + table, log: log},
		SourceSchema: "public",
		SourceName:   table,
		TargetSchema: "public",
		TargetName:   table,
		Slot:         area.Table("public", table),
		Cleanup:      true,
	}
}

func mustHandle(t *testing.T, p *Pipeline, stage string) node.Handle {
	t.Helper()
	h, ok := p.Handle(stage)
	require.True(t, ok, "pipeline %s has no %s task", p.Scope, stage)
	return h
}

func TestNew_AddsChainedBarriers(t *testing.T) {
	b := newTestBuilder(t, testOptions(), &eventLog{})
	cluster, resource := b.Barriers()

	assert.Equal(t, 2, b.Graph().Len())
	assert.Equal(t, []node.Handle{cluster}, b.Graph().Dependencies(resource))

	n, ok := b.Graph().Node(cluster)
	require.True(t, ok)
	assert.True(t, n.IsBarrier())
	assert.Equal(t, "barrier.cluster_checks", n.ID())

	byLabel, err := b.Graph().Lookup("barrier.resource_checks")
	require.NoError(t, err)
	assert.Equal(t, resource, byLabel.Handle())
}

func TestAddTableMigration_Wiring(t *testing.T) {
	testCases := []struct {
		name           string
		opts           func(*config.Options)
		stages         []string
		beforeClusterB []string
		betweenB       []string
	}{
		{
			name:     "table pre-tests replace cluster checks",
			opts:     func(*config.Options) {},
			stages:   []string{StageDestination, StageSource, StageUnload, StageCopy, StageCleanup},
			betweenB: []string{StageDestination, StageSource},
		},
		{
			name: "connection pre-tests only",
			opts: func(o *config.Options) {
				o.SourceTablePreTest = false
				o.DestinationTablePreTest = false
			},
			stages:         []string{StageDestinationCluster, StageSourceCluster, StageUnload, StageCopy, StageCleanup},
			beforeClusterB: []string{StageDestinationCluster, StageSourceCluster},
		},
		{
			name: "auto-create checks the destination cluster",
			opts: func(o *config.Options) {
				o.DestinationTableAutoCreate = true
			},
			stages:         []string{StageDestinationCluster, StageSource, StageCreate, StageUnload, StageCopy, StageCleanup},
			beforeClusterB: []string{StageDestinationCluster},
			betweenB:       []string{StageSource, StageCreate},
		},
		{
			name: "no pre-tests at all",
			opts: func(o *config.Options) {
				o.ConnectionPreTest = false
				o.SourceTablePreTest = false
				o.DestinationTablePreTest = false
			},
			stages: []string{StageUnload, StageCopy, StageCleanup},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := testOptions()
			tc.opts(&opts)
			b := newTestBuilder(t, opts, &eventLog{})
			g := b.Graph()
			cluster, resource := b.Barriers()

			p, err := b.AddTableMigration(tableMigration(&eventLog{}, "orders", false))
			require.NoError(t, err)
			assert.Equal(t, tc.stages, p.Stages())
			assert.Equal(t, "public.orders", p.Scope)

			for _, stage := range tc.beforeClusterB {
				h := mustHandle(t, p, stage)
				assert.Empty(t, g.Dependencies(h), stage)
				assert.Equal(t, []node.Handle{cluster}, g.Dependents(h), stage)
			}
			for _, stage := range tc.betweenB {
				h := mustHandle(t, p, stage)
				assert.Equal(t, []node.Handle{cluster}, g.Dependencies(h), stage)
				assert.Equal(t, []node.Handle{resource}, g.Dependents(h), stage)
			}

			unload := mustHandle(t, p, StageUnload)
			cp := mustHandle(t, p, StageCopy)
			cleanup := mustHandle(t, p, StageCleanup)
			assert.Equal(t, []node.Handle{resource}, g.Dependencies(unload))
			assert.Equal(t, []node.Handle{unload}, g.Dependencies(cp))
			assert.Equal(t, []node.Handle{cp}, g.Dependencies(cleanup))

			n, ok := g.Node(unload)
			require.True(t, ok)
			assert.Equal(t, "unload.public.orders", n.ID())
		})
	}
}

func TestAddTableMigration_WithoutCleanup(t *testing.T) {
	b := newTestBuilder(t, testOptions(), &eventLog{})
	m := tableMigration(&eventLog{}, "orders", false)
	m.Cleanup = false

	p, err := b.AddTableMigration(m)
	require.NoError(t, err)
	_, ok := p.Handle(StageCleanup)
	assert.False(t, ok)
}

func TestAddTableMigration_FrozenGraph(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	b := newTestBuilder(t, testOptions(), &eventLog{})
	require.NoError(t, b.Graph().Freeze(ctx))
	before := b.Graph().Len()

	_, err := b.AddTableMigration(tableMigration(&eventLog{}, "orders", false))
	require.Error(t, err)
	assert.ErrorIs(t, errors.Cause(err), dag.ErrGraphFrozen)
	assert.Equal(t, before, b.Graph().Len())
	assert.Empty(t, b.Pipelines())
}

func TestRun_SingleTable(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	log := &eventLog{}
	opts := testOptions()
	opts.DestinationTableAutoCreate = true
	b := newTestBuilder(t, opts, log)

	m := tableMigration(log, "orders", false)
	m.Target.(*fakeTable).missing = true
	_, err := b.AddTableMigration(m)
	require.NoError(t, err)

	result, err := executor.New(b.Graph(), opts.MaxWorkers).Run(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)

	events := log.snapshot()
	require.Len(t, events, 7)
	assert.Equal(t, "ping dst.orders", events[0])
	assert.ElementsMatch(t, []string{"exists src.orders", "exists dst.orders", "create dst.orders"}, events[1:4])
	assert.Equal(t, []string{"unload src.orders", "copy dst.orders"}, events[4:6])
	assert.Regexp(t, `^cleanup stage/[0-9a-f-]+/public\.orders/$`, events[6])
}

func TestRun_FailedPreflightStopsEveryPipeline(t *testing.T) {
	ctx, _ := testutil.LoggerContext(t)
	log := &eventLog{}
	b := newTestBuilder(t, testOptions(), log)

	good, err := b.AddTableMigration(tableMigration(log, "good", false))
	require.NoError(t, err)
	bad, err := b.AddTableMigration(tableMigration(log, "bad", true))
	require.NoError(t, err)

	result, err := executor.New(b.Graph(), 4).Run(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)

	assert.Equal(t, node.StatusFailed, result.Status(mustHandle(t, bad, StageSource)))
	assert.Equal(t, node.StatusSucceeded, result.Status(mustHandle(t, good, StageSource)))
	for _, p := range []*Pipeline{good, bad} {
		for _, stage := range []string{StageUnload, StageCopy, StageCleanup} {
			assert.Equal(t, node.StatusSkipped, result.Status(mustHandle(t, p, stage)), "%s %s", p.Scope, stage)
		}
	}
	for _, e := range log.snapshot() {
		assert.NotContains(t, e, "unload")
	}
}
