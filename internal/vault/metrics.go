package vault

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for broker client operations.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	authTotal        *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	tokenTTL         prometheus.Gauge
	unwrapRejects    prometheus.Counter
	registerer       prometheus.Registerer
}

// NewMetrics creates a new Metrics instance registered with
// prometheus.DefaultRegisterer so they are automatically exposed on the
// default /metrics endpoint.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Metrics instance with a custom
// registerer. This is useful for testing where a private registry is
// preferred.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vaultlease"
	}

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registerer: registerer,
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Total number of broker requests",
		},
		[]string{"operation", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "request_duration_seconds",
			Help:      "Broker request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.authTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "authentications_total",
			Help:      "Total number of authentication attempts",
		},
		[]string{"method", "status"},
	)

	m.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	m.tokenTTL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "token_ttl_seconds",
			Help:      "Lease duration of the current session token in seconds",
		},
	)

	m.unwrapRejects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "unwrap_rejects_total",
			Help:      "Total number of unwrap calls rejected before reaching the broker",
		},
	)

	// Register all metrics with the provided registerer, ignoring duplicates.
	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.authTotal,
		m.stateTransitions,
		m.tokenTTL,
		m.unwrapRejects,
	}
	for _, c := range collectors {
		// Use Register instead of MustRegister so duplicate registration
		// (e.g. in tests) is not fatal.
		_ = m.registerer.Register(c)
	}

	return m
}

// RecordRequest records a broker request.
func (m *Metrics) RecordRequest(operation, status string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthentication records an authentication attempt.
func (m *Metrics) RecordAuthentication(method, status string) {
	m.authTotal.WithLabelValues(method, status).Inc()
}

// RecordTransition records a session state transition.
func (m *Metrics) RecordTransition(from, to AuthState) {
	m.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
}

// SetTokenTTL updates the session token TTL gauge.
func (m *Metrics) SetTokenTTL(seconds float64) {
	m.tokenTTL.Set(seconds)
}

// RecordUnwrapReject records an unwrap call rejected client-side before
// any HTTP request was made.
func (m *Metrics) RecordUnwrapReject() {
	m.unwrapRejects.Inc()
}
