package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is
// safe to use everywhere; increment helpers no-op so unit tests can pass
// nil without registering collectors.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	TransitionsTotal    *prometheus.CounterVec
	FulfillmentRetries  prometheus.Counter
	FallbackTickets     prometheus.Counter
	DuplicateConflicts  prometheus.Counter
	EvaluateDurationSec prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_decisions_total",
			Help: "Eligibility decisions by outcome",
		}, []string{"outcome"}),
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "onboard_request_transitions_total",
			Help: "Provisioning request state transitions by target state",
		}, []string{"to_state"}),
		FulfillmentRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboard_fulfillment_retries_total",
			Help: "Retries issued against the external fulfillment adapter",
		}),
		FallbackTickets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboard_fallback_tickets_total",
			Help: "Fallback tickets created after exhausting fulfillment retries",
		}),
		DuplicateConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "onboard_duplicate_conflicts_total",
			Help: "Employee ingestions flagged as duplicate conflicts",
		}),
		EvaluateDurationSec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "onboard_evaluate_duration_seconds",
			Help:    "Latency of eligibility evaluation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncDecision(outcome string) {
	if m != nil {
		m.DecisionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncTransition(toState string) {
	if m != nil {
		m.TransitionsTotal.WithLabelValues(toState).Inc()
	}
}

func (m *Metrics) IncFulfillmentRetry() {
	if m != nil {
		m.FulfillmentRetries.Inc()
	}
}

func (m *Metrics) IncFallbackTicket() {
	if m != nil {
		m.FallbackTickets.Inc()
	}
}

func (m *Metrics) IncDuplicateConflict() {
	if m != nil {
		m.DuplicateConflicts.Inc()
	}
}

func (m *Metrics) ObserveEvaluate(seconds float64) {
	if m != nil {
		m.EvaluateDurationSec.Observe(seconds)
	}
}
