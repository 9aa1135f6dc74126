package moderation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	actions       *prometheus.CounterVec
	auditFailures prometheus.Counter
	inboxItems    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_actions_total",
				Help: "Moderation actions by action type and outcome",
			},
			[]string{"action", "outcome"},
		),
		auditFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "moderation_audit_write_failures_total",
				Help: "Committed moderation actions whose audit entry could not be written",
			},
		),
		inboxItems: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moderation_inbox_items",
				Help:    "Number of items returned per inbox query",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
	}
}

func (m *Metrics) observeAction(action string, err error) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome(err)).Inc()
	if errors.Is(err, ErrAuditWriteFailed) {
		m.auditFailures.Inc()
	}
}

func (m *Metrics) observeInbox(n int) {
	if m == nil {
		return
	}
	m.inboxItems.Observe(float64(n))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuditWriteFailed):
		return "applied_unaudited"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrFinality):
		return "finality"
	case errors.Is(err, ErrPartialFailure):
		return "partial_failure"
	default:
		return "storage"
	}
}
