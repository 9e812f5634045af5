package telemetry

import (
	"context"
	"net/http"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors fed by engine lifecycle hooks.
// Each instance owns its registry so several engines (or tests) never collide.
type Metrics struct {
	registry *prometheus.Registry

	phaseVisits   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	objectives    *prometheus.CounterVec
	moodDelta     *prometheus.HistogramVec
	genDuration   *prometheus.HistogramVec
	genFailures   *prometheus.CounterVec
	turnsRejected *prometheus.CounterVec
}

// NewMetrics registers the collectors plus the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		phaseVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_phase_visits_total",
			Help: "Number of times a phase was entered",
		}, []string{"vignette", "phase"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_phase_transitions_total",
			Help: "Phase transitions by the trigger that fired",
		}, []string{"vignette", "trigger"}),
		objectives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_objectives_met_total",
			Help: "Objectives completed by trainees",
		}, []string{"vignette", "phase", "objective"}),
		moodDelta: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_mood_delta",
			Help:    "Per-turn movement of the persona mood",
			Buckets: []float64{-3, -1.5, -0.75, -0.25, 0, 0.25, 0.75, 1.5, 3},
		}, []string{"vignette"}),
		genDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_generation_duration_seconds",
			Help:    "Latency of persona reply generation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		genFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_generation_failures_total",
			Help: "Failed persona reply generations",
		}, []string{"provider"}),
		turnsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_turns_rejected_total",
			Help: "Trainee turns rejected before reaching the engine",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		m.phaseVisits, m.transitions, m.objectives, m.moodDelta,
		m.genDuration, m.genFailures, m.turnsRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Hooks returns lifecycle hooks that record into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseEnter: func(_ context.Context, e *domain.PhaseEvent) {
			m.phaseVisits.WithLabelValues(e.VignetteID, e.PhaseID).Inc()
			if e.Trigger != "" {
				m.transitions.WithLabelValues(e.VignetteID, e.Trigger).Inc()
			}
		},
		OnObjectiveMet: func(_ context.Context, e *domain.ObjectiveEvent) {
			m.objectives.WithLabelValues(e.VignetteID, e.PhaseID, e.ObjectiveID).Inc()
		},
		OnMoodChange: func(_ context.Context, e *domain.MoodEvent) {
			m.moodDelta.WithLabelValues(e.VignetteID).Observe(e.Current.Value - e.Previous.Value)
		},
		OnGenerate: func(_ context.Context, e *domain.GenerateEvent) {
			m.genDuration.WithLabelValues(e.Provider).Observe(e.Duration.Seconds())
			if e.IsError {
				m.genFailures.WithLabelValues(e.Provider).Inc()
			}
		},
	}
}

// RejectTurn counts an utterance refused by a transport.
func (m *Metrics) RejectTurn(reason string) {
	m.turnsRejected.WithLabelValues(reason).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
