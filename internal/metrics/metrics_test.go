package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAllocation("KCET", "ok")
		m.ObserveTransition("confirmed", "ok")
		m.ObserveDocumentTransition("Verified", "ok")
		m.IncInvariantViolation()
		m.SetRemaining("1", "KCET", 3)
	})
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAllocation("KCET", "ok")
	m.ObserveAllocation("KCET", "ok")
	m.ObserveAllocation("KCET", "seat_unavailable")
	m.IncInvariantViolation()
	m.SetRemaining("1", "COMEDK", 7)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Allocations.WithLabelValues("KCET", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InvariantViolations))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.RemainingSeats.WithLabelValues("1", "COMEDK")))

	n, err := testutil.GatherAndCount(reg, "admission_allocations_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
