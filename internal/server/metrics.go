package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics exposed by serve mode.
type Metrics struct {
	GenerationTotal      *prometheus.CounterVec
	GenerationDurationMs *prometheus.HistogramVec
	ImagesSavedTotal     prometheus.Counter
}

// NewMetrics creates and registers the metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GenerationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "imgcreator_generation_total",
			Help: "Total number of generation requests processed.",
		}, []string{"model", "status"}),

		GenerationDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imgcreator_generation_duration_ms",
			Help:    "Generation duration in milliseconds, including retries.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"model"}),

		ImagesSavedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "imgcreator_images_saved_total",
			Help: "Total number of images written to disk.",
		}),
	}
}

// RecordGeneration records one completed pipeline run.
func (m *Metrics) RecordGeneration(model, status string, durationMs float64) {
	m.GenerationTotal.WithLabelValues(model, status).Inc()
	m.GenerationDurationMs.WithLabelValues(model).Observe(durationMs)
	if status == "success" {
		m.ImagesSavedTotal.Inc()
	}
}
