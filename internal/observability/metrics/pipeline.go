package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

// PipelineMetrics is a PipelineObserver backed by prometheus collectors. It
// also records store retry waits through ObserveRetry.
type PipelineMetrics struct {
	service string

	stagesInFlight  *prometheus.GaugeVec
	stageTotal      *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	persistAttempts *prometheus.CounterVec
	retryWait       *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	stagesInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stages_in_flight",
			Help:      "Pipeline stages currently running.",
		},
		[]string{"service", "stage"},
	)
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Finished pipeline stages by status.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "stage"},
	)
	persistAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "attempts_total",
			Help:      "Store statement attempts by operation and status.",
		},
		[]string{"service", "operation", "status"},
	)
	retryWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "retry_wait_seconds",
			Help:      "Backoff waits before store retries.",
			Buckets:   []float64{0.1, 0.2, 0.4, 0.8, 1.6, 2, 3},
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(stagesInFlight, stageTotal, stageDuration, persistAttempts, retryWait)

	return &PipelineMetrics{
		service:         service,
		stagesInFlight:  stagesInFlight,
		stageTotal:      stageTotal,
		stageDuration:   stageDuration,
		persistAttempts: persistAttempts,
		retryWait:       retryWait,
	}
}

func (m *PipelineMetrics) StageStarted(_ context.Context, _ string, stage domain.Stage) {
	m.stagesInFlight.WithLabelValues(m.service, string(stage)).Inc()
}

func (m *PipelineMetrics) StageFinished(_ context.Context, _ string, stage domain.Stage, elapsed time.Duration, err error) {
	m.stagesInFlight.WithLabelValues(m.service, string(stage)).Dec()
	m.stageTotal.WithLabelValues(m.service, string(stage), status(err)).Inc()
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(elapsed.Seconds())
}

func (m *PipelineMetrics) PersistAttempt(_ context.Context, operation string, _ int, err error) {
	m.persistAttempts.WithLabelValues(m.service, operation, status(err)).Inc()
}

func (m *PipelineMetrics) ObserveRetry(operation string, _ int, _, wait time.Duration, _ error) {
	m.retryWait.WithLabelValues(m.service, operation).Observe(wait.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
