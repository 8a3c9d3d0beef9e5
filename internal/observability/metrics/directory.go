package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DirectoryMetrics contains all Prometheus metrics related to the species
// directory client.
type DirectoryMetrics struct {
	APICalls        *prometheus.CounterVec
	APIErrors       *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	RequestDuration *prometheus.HistogramVec
	registry        *prometheus.Registry
}

// NewDirectoryMetrics creates a new instance of DirectoryMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewDirectoryMetrics(registry *prometheus.Registry) (*DirectoryMetrics, error) {
	m := &DirectoryMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize directory metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register directory metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for DirectoryMetrics.
func (m *DirectoryMetrics) initMetrics() error {
	m.APICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_api_calls_total",
		Help: "Total number of directory API calls partitioned by endpoint.",
	}, []string{"endpoint"})

	m.APIErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "directory_api_errors_total",
		Help: "Total number of directory API call failures partitioned by endpoint.",
	}, []string{"endpoint"})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_cache_hits_total",
		Help: "Total number of directory cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_cache_misses_total",
		Help: "Total number of directory cache misses.",
	})

	m.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "directory_request_duration_seconds",
		Help:    "Duration of directory API requests in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"endpoint"})

	return nil
}

// IncrementAPICalls increases the call counter for an endpoint by one.
func (m *DirectoryMetrics) IncrementAPICalls(endpoint string) {
	m.APICalls.WithLabelValues(endpoint).Inc()
}

// IncrementAPIErrors increases the error counter for an endpoint by one.
func (m *DirectoryMetrics) IncrementAPIErrors(endpoint string) {
	m.APIErrors.WithLabelValues(endpoint).Inc()
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *DirectoryMetrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *DirectoryMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// ObserveRequestDuration records the duration of a directory API request.
// The duration should be provided in seconds.
func (m *DirectoryMetrics) ObserveRequestDuration(endpoint string, durationSeconds float64) {
	m.RequestDuration.WithLabelValues(endpoint).Observe(durationSeconds)
}

// Describe implements the prometheus.Collector interface.
func (m *DirectoryMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.APICalls.Describe(ch)
	m.APIErrors.Describe(ch)
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	m.RequestDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DirectoryMetrics) Collect(ch chan<- prometheus.Metric) {
	m.APICalls.Collect(ch)
	m.APIErrors.Collect(ch)
	ch <- m.CacheHits
	ch <- m.CacheMisses
	m.RequestDuration.Collect(ch)
}
