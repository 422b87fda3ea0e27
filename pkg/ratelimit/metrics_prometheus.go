package ratelimit

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
//
// All metrics use a custom registry for better testability and isolation.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// decisionsTotal counts checks by outcome.
	// Labels:
	//   - limiter_type: "client" or "ip"
	//   - policy: policy name for client checks, "normal"/"blocked" for ip checks
	//   - status: "allowed" or "denied"
	decisionsTotal *prometheus.CounterVec

	// blocksTotal counts new IP blocks by reason.
	blocksTotal *prometheus.CounterVec

	// storeErrorsTotal counts store failures and how they were resolved.
	// Labels:
	//   - limiter_type: "client" or "ip"
	//   - fail_open: "true" or "false"
	storeErrorsTotal *prometheus.CounterVec

	// checkDuration tracks the duration of checks.
	//
	// Buckets target in-memory checks (<1ms) with headroom for a Redis round trip.
	checkDuration *prometheus.HistogramVec

	// sweptTotal counts entries removed by the sweeper per target.
	sweptTotal *prometheus.CounterVec

	// activeKeys tracks keys held per sweep target.
	activeKeys *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with a custom registry.
//
// The registry can be passed to promhttp.HandlerFor() to expose metrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total rate limit decisions by limiter type, policy, and status",
		},
		[]string{"limiter_type", "policy", "status"},
	)

	blocksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_ip_blocks_total",
			Help: "Total IP blocks imposed by reason",
		},
		[]string{"reason"},
	)

	storeErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_store_errors_total",
			Help: "Total store errors by limiter type and fail-open resolution",
		},
		[]string{"limiter_type", "fail_open"},
	)

	checkDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limit_check_duration_seconds",
			Help:    "Duration of rate limit checks",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"limiter_type"},
	)

	sweptTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_swept_entries_total",
			Help: "Total expired entries removed by the sweeper",
		},
		[]string{"target"},
	)

	activeKeys := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limit_active_keys",
			Help: "Current number of keys held by sweep target",
		},
		[]string{"target"},
	)

	registry.MustRegister(
		decisionsTotal,
		blocksTotal,
		storeErrorsTotal,
		checkDuration,
		sweptTotal,
		activeKeys,
	)

	return &PrometheusMetrics{
		registry:         registry,
		decisionsTotal:   decisionsTotal,
		blocksTotal:      blocksTotal,
		storeErrorsTotal: storeErrorsTotal,
		checkDuration:    checkDuration,
		sweptTotal:       sweptTotal,
		activeKeys:       activeKeys,
	}
}

// Registry returns the Prometheus registry containing all rate limit metrics.
//
//	metrics := NewPrometheusMetrics()
//	http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAllowed records a check that allowed the request.
func (m *PrometheusMetrics) RecordAllowed(limiterType, policy string) {
	m.decisionsTotal.WithLabelValues(limiterType, policy, "allowed").Inc()
}

// RecordDenied records a check that rejected the request.
func (m *PrometheusMetrics) RecordDenied(limiterType, policy string) {
	m.decisionsTotal.WithLabelValues(limiterType, policy, "denied").Inc()
}

// RecordBlocked records a new IP block.
func (m *PrometheusMetrics) RecordBlocked(reason string) {
	m.blocksTotal.WithLabelValues(reason).Inc()
}

// RecordStoreError records a store failure.
func (m *PrometheusMetrics) RecordStoreError(limiterType string, failOpen bool) {
	m.storeErrorsTotal.WithLabelValues(limiterType, strconv.FormatBool(failOpen)).Inc()
}

// RecordCheckDuration records the duration of a check.
func (m *PrometheusMetrics) RecordCheckDuration(limiterType string, duration time.Duration) {
	m.checkDuration.WithLabelValues(limiterType).Observe(duration.Seconds())
}

// RecordSweep records entries removed by a sweep pass.
func (m *PrometheusMetrics) RecordSweep(target string, removed int) {
	m.sweptTotal.WithLabelValues(target).Add(float64(removed))
}

// SetActiveKeys records the number of keys held by a sweep target.
func (m *PrometheusMetrics) SetActiveKeys(target string, count int) {
	m.activeKeys.WithLabelValues(target).Set(float64(count))
}
