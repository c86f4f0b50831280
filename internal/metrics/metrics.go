package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduling collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	bookings      *prometheus.CounterVec
	retries       prometheus.Counter
	transitions   *prometheus.CounterVec
	accessChanges *prometheus.CounterVec
	notifyErrors  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "booking_attempts_total",
			Help:      "Appointment requests by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "booking_allocation_retries_total",
			Help:      "Allocations retried after the store rejected a conflicting slot.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "appointment_transitions_total",
			Help:      "Appointment lifecycle transitions by target status.",
		}, []string{"status"}),
		accessChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "access_grant_changes_total",
			Help:      "Report access grants and revocations.",
		}, []string{"action"}),
		notifyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "notification_failures_total",
			Help:      "Collaborator deliveries that failed and were dropped.",
		}, []string{"channel"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telecare",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.bookings,
		m.retries,
		m.transitions,
		m.accessChanges,
		m.notifyErrors,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) BookingOutcome(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AllocationRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) AccessChange(action string) {
	if m == nil {
		return
	}
	m.accessChanges.WithLabelValues(action).Inc()
}

func (m *Metrics) NotificationFailure(channel string) {
	if m == nil {
		return
	}
	m.notifyErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, code string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
