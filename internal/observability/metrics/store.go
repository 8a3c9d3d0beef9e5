package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics contains all Prometheus metrics related to feedback persistence.
type StoreMetrics struct {
	CommitsTotal        *prometheus.CounterVec
	CommitDuration      prometheus.Histogram
	IndexWriteFailures  prometheus.Counter
	LabelCommitsCounter *prometheus.CounterVec
	registry            *prometheus.Registry
}

// NewStoreMetrics creates a new instance of StoreMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewStoreMetrics(registry *prometheus.Registry) (*StoreMetrics, error) {
	m := &StoreMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize store metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register store metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for StoreMetrics.
func (m *StoreMetrics) initMetrics() error {
	m.CommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_commits_total",
		Help: "Total number of feedback commits partitioned by status.",
	}, []string{"status"})

	m.CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "store_commit_duration_seconds",
		Help:    "Duration of feedback commits in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	m.IndexWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_index_write_failures_total",
		Help: "Total number of advisory metadata index write failures.",
	})

	m.LabelCommitsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_label_commits",
		Help: "Total number of committed images partitioned by resolved label.",
	}, []string{"label"})

	return nil
}

// RecordCommit records one commit attempt with its outcome and duration.
func (m *StoreMetrics) RecordCommit(label string, durationSeconds float64, err error) {
	if err != nil {
		m.CommitsTotal.WithLabelValues("error").Inc()
		return
	}
	m.CommitsTotal.WithLabelValues("success").Inc()
	m.CommitDuration.Observe(durationSeconds)
	m.LabelCommitsCounter.WithLabelValues(label).Inc()
}

// IncrementIndexWriteFailures increases the index failure counter by one.
func (m *StoreMetrics) IncrementIndexWriteFailures() {
	m.IndexWriteFailures.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *StoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.CommitsTotal.Describe(ch)
	ch <- m.CommitDuration.Desc()
	ch <- m.IndexWriteFailures.Desc()
	m.LabelCommitsCounter.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *StoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.CommitsTotal.Collect(ch)
	ch <- m.CommitDuration
	ch <- m.IndexWriteFailures
	m.LabelCommitsCounter.Collect(ch)
}
