package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BookingOutcome("booked")
	m.BookingOutcome("booked")
	m.BookingOutcome("window_exhausted")
	m.AllocationRetry()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookings.WithLabelValues("booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookings.WithLabelValues("window_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BookingOutcome("booked")
		m.Transition("approved")
		m.ObserveHTTP("GET", "/", "200", 0.1)
	})
}
