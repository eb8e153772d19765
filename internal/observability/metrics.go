// Package observability provides Prometheus metrics for the analysis pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokenlens"

// Metrics holds the Prometheus collectors used by the service.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec

	// Storage metrics
	StorageErrors  *prometheus.CounterVec
	LatestSwept    prometheus.Counter
	HistoryEntries prometheus.Gauge

	// Signal metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
}

// NewMetrics registers all collectors on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by query kind and outcome",
		}, []string{"kind", "outcome"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Analysis pipeline duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Total number of recovered failures by pipeline stage",
		}, []string{"stage"}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of storage errors by operation",
		}, []string{"operation"}),
		LatestSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "latest_swept_total",
			Help:      "Total number of expired latest results removed by the sweeper",
		}),
		HistoryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "history_entries",
			Help:      "Number of entries in the history log after the last append",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "events_published_total",
			Help:      "Total number of signal events published by type",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "events_dropped_total",
			Help:      "Total number of signal events dropped for slow subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint serving g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordRun records one finished pipeline run.
func (m *Metrics) RecordRun(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(kind, outcome).Inc()
	m.PipelineDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordStageFailure records a failure the pipeline recovered from.
func (m *Metrics) RecordStageFailure(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordStorageError records a failed storage operation.
func (m *Metrics) RecordStorageError(operation string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(operation).Inc()
}

// RecordSwept records an expired latest result removed by the sweeper.
func (m *Metrics) RecordSwept() {
	if m == nil {
		return
	}
	m.LatestSwept.Inc()
}

// SetHistoryEntries updates the history size gauge.
func (m *Metrics) SetHistoryEntries(n int) {
	if m == nil {
		return
	}
	m.HistoryEntries.Set(float64(n))
}

// RecordEvent records a published or dropped signal event.
func (m *Metrics) RecordEvent(eventType string, dropped bool) {
	if m == nil {
		return
	}
	if dropped {
		m.EventsDropped.Inc()
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}
