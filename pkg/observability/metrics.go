package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
)

// Metrics holds the runtime's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	DeliverableTransitions *prometheus.CounterVec
	SessionTransitions     *prometheus.CounterVec
	WritesDenied           *prometheus.CounterVec
	ArtifactsWritten       prometheus.Counter
	BriefsRejected         *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		DeliverableTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chirality_deliverable_transitions_total",
				Help: "Deliverable state transitions by target state",
			},
			[]string{"to"},
		),
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chirality_session_transitions_total",
				Help: "Agent session state transitions by agent and target state",
			},
			[]string{"agent", "to"},
		),
		WritesDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chirality_writes_denied_total",
				Help: "Writes rejected by the write-scope guard, by scope kind",
			},
			[]string{"scope"},
		),
		ArtifactsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chirality_artifacts_written_total",
				Help: "Artifacts written through the guard",
			},
		),
		BriefsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chirality_briefs_rejected_total",
				Help: "Session briefs rejected at validation, by agent",
			},
			[]string{"agent"},
		),
	}
	m.Registry.MustRegister(
		m.DeliverableTransitions,
		m.SessionTransitions,
		m.WritesDenied,
		m.ArtifactsWritten,
		m.BriefsRejected,
	)
	return m
}

// Hooks records every lifecycle event in the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDeliverableTransition: func(_ context.Context, e *domain.DeliverableEvent) {
			m.DeliverableTransitions.WithLabelValues(string(e.To)).Inc()
		},
		OnSessionTransition: func(_ context.Context, e *domain.SessionEvent) {
			m.SessionTransitions.WithLabelValues(e.AgentName, string(e.To)).Inc()
		},
		OnWriteDenied: func(_ context.Context, e *domain.WriteEvent) {
			m.WritesDenied.WithLabelValues(e.Scope).Inc()
		},
		OnArtifactWritten: func(_ context.Context, e *domain.WriteEvent) {
			m.ArtifactsWritten.Inc()
		},
		OnBriefRejected: func(_ context.Context, e *domain.BriefEvent) {
			m.BriefsRejected.WithLabelValues(e.AgentName).Inc()
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
