// Package metrics exposes Prometheus metrics for the dashboard service and API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
)

// Skip reasons reported by the density fan-out.
const (
	SkipNoEntry   = "no_entry"
	SkipNoBlob    = "no_blob"
	SkipBlobError = "blob_error"
)

// Metrics holds the collectors registered on one registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	pipelineDuration      *prometheus.HistogramVec
	observationsProcessed prometheus.Counter
	sourcesSkipped        *prometheus.CounterVec
	requestsTotal         *prometheus.CounterVec
	requestDuration       *prometheus.HistogramVec
}

// New creates the metrics and registers them, together with the Go runtime
// collectors, on a dedicated registry.
func New(namespace string) (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time taken to turn a window of readings into a result",
			// 1ms to ~4s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"pipeline"}, // pipeline: series, density, summary, markers
	)
	m.observationsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "observations_processed_total",
		Help:      "Total number of readings fed into the pipelines",
	})
	m.sourcesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "density_sources_skipped_total",
			Help:      "Camera positions left out of a density map",
		},
		[]string{"reason"},
	)
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, empty, unauthorized, bad_request, error
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	for _, c := range []prometheus.Collector{
		m.pipelineDuration,
		m.observationsProcessed,
		m.sourcesSkipped,
		m.requestsTotal,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, eris.Wrap(err, "metrics: register")
		}
	}
	return m, nil
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePipeline records how long a pipeline run took.
func (m *Metrics) ObservePipeline(pipeline string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// AddObservations counts readings fed into a pipeline.
func (m *Metrics) AddObservations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.observationsProcessed.Add(float64(n))
}

// SkipSource counts a camera position dropped from a density map.
func (m *Metrics) SkipSource(reason string) {
	if m == nil {
		return
	}
	m.sourcesSkipped.WithLabelValues(reason).Inc()
}

// RecordRequest counts an API request and its latency.
func (m *Metrics) RecordRequest(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}
