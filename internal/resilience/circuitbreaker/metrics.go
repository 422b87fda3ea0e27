package circuitbreaker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports breaker state and call outcomes.
type PrometheusObserver struct {
	// state is 0=closed, 1=open, 2=half-open per circuit.
	state *prometheus.GaugeVec

	// transitionsTotal counts state changes by circuit and target state.
	transitionsTotal *prometheus.CounterVec

	// callsTotal counts calls by circuit and outcome.
	callsTotal *prometheus.CounterVec

	// callDuration measures guarded call latency, rejected calls included.
	callDuration *prometheus.HistogramVec
}

// NewPrometheusObserver registers breaker metrics with reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)

	return &PrometheusObserver{
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"circuit"},
		),
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_transitions_total",
				Help: "Total circuit breaker state transitions",
			},
			[]string{"circuit", "to"},
		),
		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_calls_total",
				Help: "Total calls through circuit breakers by outcome",
			},
			[]string{"circuit", "outcome"},
		),
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "circuit_breaker_call_duration_seconds",
				Help:    "Duration of calls through circuit breakers",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"circuit"},
		),
	}
}

// OnStateChange implements Observer.
func (o *PrometheusObserver) OnStateChange(name string, from, to State) {
	o.state.WithLabelValues(name).Set(float64(to))
	o.transitionsTotal.WithLabelValues(name, to.String()).Inc()
}

// OnCall implements Observer.
func (o *PrometheusObserver) OnCall(name, outcome string, duration time.Duration) {
	o.callsTotal.WithLabelValues(name, outcome).Inc()
	o.callDuration.WithLabelValues(name).Observe(duration.Seconds())
}

var _ Observer = (*PrometheusObserver)(nil)
