// Package observability provides metrics and monitoring capabilities for the
// plant identification service.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SayHoang/plantidentify/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Classifier *metrics.ClassifierMetrics
	Directory  *metrics.DirectoryMetrics
	Store      *metrics.StoreMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors. It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	classifierMetrics, err := metrics.NewClassifierMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier metrics: %w", err)
	}

	directoryMetrics, err := metrics.NewDirectoryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory metrics: %w", err)
	}

	storeMetrics, err := metrics.NewStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Classifier: classifierMetrics,
		Directory:  directoryMetrics,
		Store:      storeMetrics,
	}, nil
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
