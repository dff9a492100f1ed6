// Package metrics exposes Prometheus collectors for the allocation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's collectors.  A nil *Metrics is valid and
// records nothing, so packages can be used without observability wiring.
type Metrics struct {
	// Allocation attempts by quota and outcome (ok, seat_unavailable, ...)
	Allocations *prometheus.CounterVec

	// Lifecycle transitions by name (fee_paid, confirmed) and outcome
	Transitions *prometheus.CounterVec

	// Document transitions by target status and outcome
	DocumentTransitions *prometheus.CounterVec

	// Observed allocated > total_seats or allocated < 0
	InvariantViolations prometheus.Counter

	// Remaining seats as last observed by the ledger
	RemainingSeats *prometheus.GaugeVec
}

// New registers all collectors on reg.  Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_allocations_total",
			Help: "Seat allocation attempts by quota and outcome",
		}, []string{"quota", "outcome"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_transitions_total",
			Help: "Admission lifecycle transitions by name and outcome",
		}, []string{"transition", "outcome"}),

		DocumentTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_document_transitions_total",
			Help: "Document checklist transitions by target status and outcome",
		}, []string{"target", "outcome"}),

		InvariantViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "admission_quota_invariant_violations_total",
			Help: "Quota counters observed outside 0 <= allocated <= total_seats",
		}),

		RemainingSeats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "admission_quota_remaining_seats",
			Help: "Remaining seats per program and quota as last observed",
		}, []string{"program_id", "quota"}),
	}
}

// ObserveAllocation records one allocation attempt.
func (m *Metrics) ObserveAllocation(quota, outcome string) {
	if m != nil {
		m.Allocations.WithLabelValues(quota, outcome).Inc()
	}
}

// ObserveTransition records one lifecycle transition attempt.
func (m *Metrics) ObserveTransition(transition, outcome string) {
	if m != nil {
		m.Transitions.WithLabelValues(transition, outcome).Inc()
	}
}

// ObserveDocumentTransition records one document status change attempt.
func (m *Metrics) ObserveDocumentTransition(target, outcome string) {
	if m != nil {
		m.DocumentTransitions.WithLabelValues(target, outcome).Inc()
	}
}

// IncInvariantViolation counts a broken capacity invariant.
func (m *Metrics) IncInvariantViolation() {
	if m != nil {
		m.InvariantViolations.Inc()
	}
}

// SetRemaining publishes the remaining capacity of a quota.
func (m *Metrics) SetRemaining(programID, quota string, remaining int) {
	if m != nil {
		m.RemainingSeats.WithLabelValues(programID, quota).Set(float64(remaining))
	}
}
