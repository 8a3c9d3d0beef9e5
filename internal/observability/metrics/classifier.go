// Package metrics provides custom Prometheus metrics for the plant
// identification service.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// ClassifierMetrics contains all Prometheus metrics related to model inference.
type ClassifierMetrics struct {
	ClassificationCounter *prometheus.CounterVec
	PredictionDuration    *prometheus.HistogramVec
	PredictionTotal       *prometheus.CounterVec
	PredictionErrors      *prometheus.CounterVec
	ConfidenceGauge       prometheus.Gauge
	ModelLoadedGauge      prometheus.Gauge

	registry *prometheus.Registry
}

// NewClassifierMetrics creates a new instance of ClassifierMetrics and
// registers it with the provided registry.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize classifier metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() error {
	m.ClassificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_classifications",
			Help: "Total number of classifications partitioned by predicted class.",
		},
		[]string{"class"},
	)

	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plantid_prediction_duration_seconds",
			Help:    "Time taken to preprocess an image and run inference",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
		[]string{"model"},
	)

	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_predictions_total",
			Help: "Total number of prediction requests",
		},
		[]string{"model", "status"},
	)

	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plantid_prediction_errors_total",
			Help: "Total number of prediction errors",
		},
		[]string{"model", "error_type"},
	)

	m.ConfidenceGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plantid_last_confidence_percent",
			Help: "Confidence of the most recent prediction in percent.",
		},
	)

	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plantid_model_loaded",
			Help: "Whether the classifier model is currently loaded (1) or not (0)",
		},
	)

	return nil
}

// RecordPrediction records metrics for one prediction request.
func (m *ClassifierMetrics) RecordPrediction(model, class string, confidence, durationSeconds float64, err error) {
	if err != nil {
		m.PredictionTotal.WithLabelValues(model, "error").Inc()
		m.PredictionErrors.WithLabelValues(model, categorizeError(err)).Inc()
		return
	}
	m.PredictionTotal.WithLabelValues(model, "success").Inc()
	m.PredictionDuration.WithLabelValues(model).Observe(durationSeconds)
	m.ClassificationCounter.WithLabelValues(class).Inc()
	m.ConfidenceGauge.Set(confidence)
}

// SetModelLoaded flags whether the model is usable.
func (m *ClassifierMetrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoadedGauge.Set(1)
	} else {
		m.ModelLoadedGauge.Set(0)
	}
}

// categorizeError returns a category string for the error type
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "decode"):
		return "decode_error"
	case strings.Contains(errStr, "tensor"):
		return "tensor_error"
	case strings.Contains(errStr, "invoke"):
		return "invoke_error"
	case strings.Contains(errStr, "model"):
		return "model_error"
	default:
		return "unknown"
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ClassificationCounter.Describe(ch)
	m.PredictionDuration.Describe(ch)
	m.PredictionTotal.Describe(ch)
	m.PredictionErrors.Describe(ch)
	ch <- m.ConfidenceGauge.Desc()
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ClassificationCounter.Collect(ch)
	m.PredictionDuration.Collect(ch)
	m.PredictionTotal.Collect(ch)
	m.PredictionErrors.Collect(ch)
	ch <- m.ConfidenceGauge
	ch <- m.ModelLoadedGauge
}
