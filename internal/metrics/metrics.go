// Package metrics holds the prometheus collectors for experiment runs and
// batches. Each Registry owns its own prometheus registry so tests and
// multiple services never collide on registration.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the engine
type Registry struct {
	reg *prometheus.Registry

	// Runs counts finished pipeline runs by outcome (ok or an error kind).
	Runs *prometheus.CounterVec

	// Decisions counts successful runs by recommendation.
	Decisions *prometheus.CounterVec

	// StageDuration times each pipeline stage.
	StageDuration *prometheus.HistogramVec

	// ValidityStatus counts overall diagnostic statuses.
	ValidityStatus *prometheus.CounterVec

	ActiveBatches prometheus.Gauge
	BatchRuns     *prometheus.CounterVec
}

// NewRegistry creates and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geolift_runs_total",
				Help: "Experiment pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geolift_decisions_total",
				Help: "Decisions issued by recommendation",
			},
			[]string{"recommendation"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geolift_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		ValidityStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geolift_validity_overall_total",
				Help: "Overall validity status of finished runs",
			},
			[]string{"status"},
		),
		ActiveBatches: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geolift_active_batches",
				Help: "Number of batches currently running",
			},
		),
		BatchRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geolift_batch_runs_total",
				Help: "Runs executed inside batches by result",
			},
			[]string{"result"},
		),
	}
	r.reg.MustRegister(r.Runs, r.Decisions, r.StageDuration, r.ValidityStatus, r.ActiveBatches, r.BatchRuns)
	return r
}

// ObserveStage records how long a stage took since start.
func (r *Registry) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RecordRun counts a finished run. outcome is "ok" or an error code.
func (r *Registry) RecordRun(outcome, recommendation, validity string) {
	if r == nil {
		return
	}
	r.Runs.WithLabelValues(outcome).Inc()
	if recommendation != "" {
		r.Decisions.WithLabelValues(recommendation).Inc()
	}
	if validity != "" {
		r.ValidityStatus.WithLabelValues(validity).Inc()
	}
}

// Handler exposes the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry for tests and custom exporters.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
