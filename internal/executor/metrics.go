package executor

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/specialistvlad/unloadcopy/internal/node"
	"github.com/specialistvlad/unloadcopy/internal/nodestore"
)

// Metrics exposes executor progress to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	running  prometheus.Gauge
}

// NewMetrics creates the executor collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "unloadcopy",
			Subsystem: "executor",
			Name:      "tasks_total",
			Help:      "Number of tasks that reached a terminal status, by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "unloadcopy",
			Subsystem: "executor",
			Name:      "task_duration_seconds",
			Help:      "Execution time of finished tasks, by stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
		}, []string{"stage"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "unloadcopy",
			Subsystem: "executor",
			Name:      "running_tasks",
			Help:      "Number of tasks currently occupying a worker.",
		}),
	}
	reg.MustRegister(m.tasks, m.duration, m.running)
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) finished(ctx context.Context, n *node.Node, status node.Status, store nodestore.Store) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(status.String()).Inc()
	if status == node.StatusSkipped {
		return
	}
	m.running.Dec()
	if timing, err := store.GetTiming(ctx, n.Handle()); err == nil {
		m.duration.WithLabelValues(n.Address().Stage()).Observe(timing.Duration().Seconds())
	}
}
