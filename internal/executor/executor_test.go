package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/unloadcopy/internal/dag"
	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodeid"
	"github.com/specialistvlad/unloadcopy/internal/task"
	tu "github.com/specialistvlad/unloadcopy/internal/testutil"
)

const step = 20 * time.Millisecond

type graphBuilder struct {
	t       *testing.T
	g       *dag.Graph
	rec     *tu.Recorder
	handles map[string]node.Handle
}

func newGraphBuilder(t *testing.T) *graphBuilder {
	return &graphBuilder{t: t, g: dag.New(), rec: tu.NewRecorder(), handles: map[string]node.Handle{}}
}

func (b *graphBuilder) add(name string, err error, deps ...string) node.Handle {
	return b.addTask(name, b.rec.Task(name, step, err), deps...)
}

func (b *graphBuilder) addTask(name string, tk task.Task, deps ...string) node.Handle {
	b.t.Helper()
	var depHandles []node.Handle
	for _, d := range deps {
		depHandles = append(depHandles, b.handles[d])
	}
	h, err := b.g.Add(nodeid.New(name), tk, depHandles, nil)
	require.NoError(b.t, err)
	b.handles[name] = h
	return h
}

func (b *graphBuilder) barrier(name string, deps ...string) node.Handle {
	return b.addTask(name, task.Barrier{}, deps...)
}

func (b *graphBuilder) run(workers int) *Result {
	b.t.Helper()
	ctx, _ := tu.LoggerContext(b.t)
	result, err := New(b.g, workers).Run(ctx)
	require.NoError(b.t, err)
	return result
}

func (b *graphBuilder) status(result *Result, name string) node.Status {
	return result.Status(b.handles[name])
}

func assertAfter(t *testing.T, rec *tu.Recorder, later, earlier string) {
	t.Helper()
	l, e := rec.Record(later), rec.Record(earlier)
	require.NotNil(t, l, later)
	require.NotNil(t, e, earlier)
	assert.False(t, l.Start.Before(e.End), "%s started before %s finished", later, earlier)
}

func TestRun_SingleTablePipeline(t *testing.T) {
	b := newGraphBuilder(t)
	b.add("preflight_source", nil)
	b.add("preflight_dest", nil)
	b.barrier("barrier", "preflight_source", "preflight_dest")
	b.add("unload", nil, "barrier")
	b.add("copy", nil, "unload")
	b.add("cleanup", nil, "copy")

	result := b.run(4)

	assert.True(t, result.Success)
	assert.Equal(t, 6, result.Count(node.StatusSucceeded))
	assertAfter(t, b.rec, "unload", "preflight_source")
	assertAfter(t, b.rec, "unload", "preflight_dest")
	assertAfter(t, b.rec, "copy", "unload")
	assertAfter(t, b.rec, "cleanup", "copy")
}

func TestRun_FailedPreflight(t *testing.T) {
	b := newGraphBuilder(t)
	b.add("preflight_source", errors.New("source table missing"))
	b.add("preflight_dest", nil)
	b.barrier("barrier", "preflight_source", "preflight_dest")
	b.add("unload", nil, "barrier")
	b.add("copy", nil, "unload")
	b.add("cleanup", nil, "copy")

	result := b.run(4)

	assert.False(t, result.Success)
	assert.Equal(t, node.StatusFailed, b.status(result, "preflight_source"))
	assert.Equal(t, node.StatusSucceeded, b.status(result, "preflight_dest"))
	for _, name := range []string{"barrier", "unload", "copy", "cleanup"} {
		assert.Equal(t, node.StatusSkipped, b.status(result, name), name)
	}
	assert.False(t, b.rec.Ran("unload"))

	var skipped *SkippedError
	tr := result.Tasks[b.handles["copy"]]
	require.ErrorAs(t, tr.Err, &skipped)
	assert.Equal(t, "preflight_source", skipped.Upstream)
	assert.EqualError(t, result.Tasks[b.handles["preflight_source"]].Err, "source table missing")
}

func TestRun_SharedBarrierAcrossPipelines(t *testing.T) {
	b := newGraphBuilder(t)
	b.add("preflight_a", nil)
	b.add("preflight_b", errors.New("unreachable"))
	b.barrier("barrier", "preflight_a", "preflight_b")
	for _, p := range []string{"a", "b"} {
		b.add("unload_"+p, nil, "barrier")
		b.add("copy_"+p, nil, "unload_"+p)
		b.add("cleanup_"+p, nil, "copy_"+p)
	}

	result := b.run(4)

	assert.False(t, result.Success)
	assert.Equal(t, node.StatusSucceeded, b.status(result, "preflight_a"))
	assert.Equal(t, node.StatusFailed, b.status(result, "preflight_b"))
	for _, p := range []string{"a", "b"} {
		for _, stage := range []string{"unload_", "copy_", "cleanup_"} {
			assert.Equal(t, node.StatusSkipped, b.status(result, stage+p), stage+p)
		}
	}
	assert.Len(t, result.Unsuccessful(), 7)
}

func TestRun_SiblingIsolation(t *testing.T) {
	b := newGraphBuilder(t)
	b.add("root", nil)
	b.add("bad", errors.New("boom"), "root")
	b.add("bad_child", nil, "bad")
	b.add("good", nil, "root")
	b.add("good_child", nil, "good")

	result := b.run(2)

	assert.False(t, result.Success)
	assert.Equal(t, node.StatusFailed, b.status(result, "bad"))
	assert.Equal(t, node.StatusSkipped, b.status(result, "bad_child"))
	assert.Equal(t, node.StatusSucceeded, b.status(result, "good"))
	assert.Equal(t, node.StatusSucceeded, b.status(result, "good_child"))
}

func TestRun_FanInWaitsForSlowestPredecessor(t *testing.T) {
	b := newGraphBuilder(t)
	b.addTask("fast", b.rec.Task("fast", step, nil))
	b.addTask("slow", b.rec.Task("slow", 5*step, nil))
	b.add("join", nil, "fast", "slow")

	result := b.run(3)

	require.True(t, result.Success)
	assertAfter(t, b.rec, "join", "slow")
	assertAfter(t, b.rec, "join", "fast")
}

func TestRun_BoundedConcurrency(t *testing.T) {
	for _, workers := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			b := newGraphBuilder(t)
			for i := 0; i < 12; i++ {
				b.add(fmt.Sprintf("t%d", i), nil)
			}

			result := b.run(workers)

			require.True(t, result.Success)
			assert.LessOrEqual(t, b.rec.MaxConcurrent(), workers)
			if workers > 1 {
				assert.Greater(t, b.rec.MaxConcurrent(), 1, "independent tasks should overlap")
			}
		})
	}
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	b := newGraphBuilder(t)
	b.addTask("panics", task.Func(func(context.Context) error { panic("kaboom") }))
	b.add("after", nil, "panics")
	b.add("independent", nil)

	result := b.run(2)

	assert.Equal(t, node.StatusFailed, b.status(result, "panics"))
	assert.ErrorContains(t, result.Tasks[b.handles["panics"]].Err, "task panicked: kaboom")
	assert.Equal(t, node.StatusSkipped, b.status(result, "after"))
	assert.Equal(t, node.StatusSucceeded, b.status(result, "independent"))
}

func TestRun_EmptyGraph(t *testing.T) {
	b := newGraphBuilder(t)
	result := b.run(1)
	assert.True(t, result.Success)
	assert.Empty(t, result.Tasks)
}

func TestRun_WithoutLoggerInContext(t *testing.T) {
	b := newGraphBuilder(t)
	b.add("unload", nil)
	b.add("copy", nil, "unload")

	var (
		result *Result
		err    error
	)
	require.NotPanics(t, func() {
		result, err = New(b.g, 2).Run(context.Background())
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"unload", "copy"}, b.rec.Finished())
}

func TestRun_MoreWorkersThanNodes(t *testing.T) {
	for _, workers := range []int{1_000_000, math.MaxInt} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			b := newGraphBuilder(t)
			b.add("a", nil)
			b.add("b", nil)
			b.add("c", nil, "a", "b")

			result := b.run(workers)

			require.True(t, result.Success)
			assert.LessOrEqual(t, b.rec.MaxConcurrent(), 2)
			assert.True(t, b.rec.Ran("c"))
		})
	}
}

func TestRun_Errors(t *testing.T) {
	ctx, _ := tu.LoggerContext(t)

	t.Run("invalid worker count", func(t *testing.T) {
		_, err := New(dag.New(), 0).Run(ctx)
		assert.ErrorIs(t, err, ErrInvalidWorkers)
	})

	t.Run("graph can run only once", func(t *testing.T) {
		g := dag.New()
		_, err := g.AddBarrier(nodeid.New("b"), nil, nil)
		require.NoError(t, err)

		_, err = New(g, 1).Run(ctx)
		require.NoError(t, err)
		_, err = New(g, 1).Run(ctx)
		assert.ErrorIs(t, err, dag.ErrGraphFrozen)
	})
}

func TestRun_Cancellation(t *testing.T) {
	logCtx, _ := tu.LoggerContext(t)
	ctx, cancel := context.WithCancel(logCtx)
	defer cancel()

	b := newGraphBuilder(t)
	b.addTask("first", task.Func(func(context.Context) error {
		cancel()
		return nil
	}))
	b.add("second", nil, "first")
	b.add("third", nil, "second")

	result, err := New(b.g, 1).Run(ctx)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, node.StatusSucceeded, b.status(result, "first"))
	assert.Equal(t, node.StatusSkipped, b.status(result, "second"))
	assert.Equal(t, node.StatusSkipped, b.status(result, "third"))
	assert.ErrorContains(t, result.Tasks[b.handles["third"]].Err, "context canceled")
	assert.False(t, b.rec.Ran("second"))
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := newGraphBuilder(t)
	b.add("ok", nil)
	b.add("bad", errors.New("boom"))
	b.add("child", nil, "bad")

	m := NewMetrics(reg)
	ctx, _ := tu.LoggerContext(t)
	_, err := New(b.g, 2, WithMetrics(m)).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.running))
}
