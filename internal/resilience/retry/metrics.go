package retry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for retry sequences. A nil *Metrics is a no-op.
type Metrics struct {
	// sequencesTotal counts finished sequences by name and outcome.
	sequencesTotal *prometheus.CounterVec

	// retriesTotal counts sleeps between attempts.
	retriesTotal *prometheus.CounterVec

	// attempts records how many attempts each sequence used.
	attempts *prometheus.HistogramVec
}

// NewMetrics registers retry metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sequencesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retry_sequences_total",
				Help: "Total retry sequences by outcome",
			},
			[]string{"name", "outcome"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retry_attempts_retried_total",
				Help: "Total retries scheduled after a failed attempt",
			},
			[]string{"name"},
		),
		attempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retry_attempts_per_sequence",
				Help:    "Attempts used per retry sequence",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"name"},
		),
	}
}

func (m *Metrics) observeAttempts(name, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.sequencesTotal.WithLabelValues(name, outcome).Inc()
	m.attempts.WithLabelValues(name).Observe(float64(attempts))
}

func (m *Metrics) incRetries(name string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(name).Inc()
}
