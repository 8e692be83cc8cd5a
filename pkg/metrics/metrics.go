// Package metrics exposes Prometheus metrics for the job pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all sitepipe metrics.
	Namespace = "sitepipe"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Job metrics
	JobsEnqueued  prometheus.Counter
	JobsFinished  *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	JobsByStatus  *prometheus.GaugeVec
	JobsRecovered prometheus.Counter

	// Stage metrics
	StagesFinished *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	// Scheduler metrics
	Ticks         prometheus.Counter
	TickProcessed prometheus.Histogram

	// Progress metrics
	ProgressSessions prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics on reg. A nil reg uses a fresh
// registry so repeated construction in one process never collides.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)
	m := &Metrics{gatherer: reg}

	m.initJobMetrics(factory)
	m.initStageMetrics(factory)
	m.initSchedulerMetrics(factory)

	return m
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) initJobMetrics(factory promauto.Factory) {
	m.JobsEnqueued = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Total jobs accepted for processing",
	})

	m.JobsFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "jobs_finished_total",
		Help:      "Total jobs that reached a terminal status",
	}, []string{"status"})

	m.JobDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "job_duration_seconds",
		Help:      "Wall time of a full pipeline run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	m.JobsByStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "jobs",
		Help:      "Jobs currently stored, by status",
	}, []string{"status"})

	m.JobsRecovered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "jobs_recovered_total",
		Help:      "Jobs requeued after their lease expired",
	})
}

func (m *Metrics) initStageMetrics(factory promauto.Factory) {
	m.StagesFinished = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "stages_total",
		Help:      "Stage attempts by stage and outcome",
	}, []string{"stage", "outcome"})

	m.StageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in a single stage",
		Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.Ticks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Scheduler passes run",
	})

	m.TickProcessed = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "tick_jobs",
		Help:      "Jobs processed per scheduler pass",
		Buckets:   []float64{0, 1, 2, 3, 4, 5, 10, 25},
	})

	m.ProgressSessions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "progress",
		Name:      "sessions",
		Help:      "Live progress sessions",
	})
}
