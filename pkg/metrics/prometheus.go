// Package metrics exposes the pipeline's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics of the pipeline. A nil
// receiver is valid and records nothing, so components can carry the
// struct without caring whether metrics are wired.
type PipelineMetrics struct {
	// Training metrics
	RunsTotal       *prometheus.CounterVec
	CandidatesTotal *prometheus.CounterVec
	FitSeconds      *prometheus.HistogramVec

	// Prediction metrics
	PredictionsTotal *prometheus.CounterVec

	// Model store metrics
	ModelLoadsTotal *prometheus.CounterVec
}

// New registers the pipeline metrics on the default registry.
func New() *PipelineMetrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the pipeline metrics on reg. Tests pass their own
// registry so repeated registration never collides.
func NewWith(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defectpred_runs_total",
				Help: "Total number of training runs",
			},
			[]string{"status"},
		),

		CandidatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defectpred_candidates_total",
				Help: "Total number of evaluated model candidates",
			},
			[]string{"classifier", "normalizer", "balancer", "status"},
		),

		FitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "defectpred_fit_seconds",
				Help:    "Per-candidate fit and score latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"classifier"},
		),

		PredictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defectpred_predictions_total",
				Help: "Total number of served predictions",
			},
			[]string{"verdict"},
		),

		ModelLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defectpred_model_loads_total",
				Help: "Total number of model loads",
			},
			[]string{"source", "status"},
		),
	}
}

// RecordRun records a finished training run.
func (m *PipelineMetrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordCandidate records one evaluated candidate.
func (m *PipelineMetrics) RecordCandidate(classifier, normalizer, balancer, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CandidatesTotal.WithLabelValues(classifier, normalizer, balancer, status).Inc()
	m.FitSeconds.WithLabelValues(classifier).Observe(elapsed.Seconds())
}

// RecordPrediction records a served verdict.
func (m *PipelineMetrics) RecordPrediction(failureProne bool) {
	if m == nil {
		return
	}
	verdict := "clean"
	if failureProne {
		verdict = "failure_prone"
	}
	m.PredictionsTotal.WithLabelValues(verdict).Inc()
}

// RecordModelLoad records a model load attempt.
func (m *PipelineMetrics) RecordModelLoad(source, status string) {
	if m == nil {
		return
	}
	m.ModelLoadsTotal.WithLabelValues(source, status).Inc()
}
