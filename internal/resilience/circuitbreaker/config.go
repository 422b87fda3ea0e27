package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"inkwell/pkg/clock"
)

// Config holds the configuration for a circuit breaker.
type Config struct {
	// FailureThreshold is the number of failures within MonitoringPeriod that
	// trips the breaker.
	// Default: 5
	FailureThreshold int

	// MonitoringPeriod is how long a failure counts toward FailureThreshold.
	// Default: 60 seconds
	MonitoringPeriod time.Duration

	// RecoveryTimeout is how long the breaker stays open before admitting a trial call.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of successful trials that close a
	// half-open breaker.
	// Default: 3
	SuccessThreshold int

	// HalfOpenMaxCalls bounds concurrent trials while half-open.
	// Default: 1
	HalfOpenMaxCalls int

	// CallTimeout bounds each call. Negative disables the timeout.
	// Default: 30 seconds
	CallTimeout time.Duration

	// IsFailure classifies operation errors. Errors it rejects are returned to
	// the caller but recorded as successes.
	// Default: every non-nil error
	IsFailure func(err error) bool

	// Clock timestamps failures and drives the monitoring period and the
	// recovery timeout. CallTimeout always runs on a wall-clock timer.
	// Default: SystemClock
	Clock clock.Clock

	// Logger receives state change events.
	// Default: slog.Default()
	Logger *slog.Logger

	// Observer receives state changes and call outcomes.
	// Default: none
	Observer Observer
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		MonitoringPeriod: 60 * time.Second,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
		HalfOpenMaxCalls: 1,
		CallTimeout:      30 * time.Second,
	}
}

// DatabaseConfig returns configuration for the primary database.
func DatabaseConfig() Config {
	cfg := DefaultConfig()
	cfg.CallTimeout = 10 * time.Second
	return cfg
}

// ExternalAPIConfig returns configuration for third-party HTTP APIs.
// External services get a longer cooldown and tolerate slower calls.
func ExternalAPIConfig() Config {
	cfg := DefaultConfig()
	cfg.RecoveryTimeout = 60 * time.Second
	cfg.SuccessThreshold = 2
	return cfg
}

// withDefaults fills zero fields of c from d, then from DefaultConfig.
func (c Config) withDefaults(d Config) Config {
	base := DefaultConfig()

	pickInt := func(v, fallback, last int) int {
		if v > 0 {
			return v
		}
		if fallback > 0 {
			return fallback
		}
		return last
	}
	pickDur := func(v, fallback, last time.Duration) time.Duration {
		if v != 0 {
			return v
		}
		if fallback != 0 {
			return fallback
		}
		return last
	}

	c.FailureThreshold = pickInt(c.FailureThreshold, d.FailureThreshold, base.FailureThreshold)
	c.SuccessThreshold = pickInt(c.SuccessThreshold, d.SuccessThreshold, base.SuccessThreshold)
	c.HalfOpenMaxCalls = pickInt(c.HalfOpenMaxCalls, d.HalfOpenMaxCalls, base.HalfOpenMaxCalls)
	c.MonitoringPeriod = pickDur(c.MonitoringPeriod, d.MonitoringPeriod, base.MonitoringPeriod)
	c.RecoveryTimeout = pickDur(c.RecoveryTimeout, d.RecoveryTimeout, base.RecoveryTimeout)
	c.CallTimeout = pickDur(c.CallTimeout, d.CallTimeout, base.CallTimeout)

	if c.MonitoringPeriod < 0 {
		c.MonitoringPeriod = base.MonitoringPeriod
	}
	if c.RecoveryTimeout < 0 {
		c.RecoveryTimeout = base.RecoveryTimeout
	}
	if c.IsFailure == nil {
		c.IsFailure = d.IsFailure
	}
	if c.IsFailure == nil {
		c.IsFailure = defaultIsFailure
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	c.Clock = clock.OrSystem(c.Clock)
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Observer == nil {
		c.Observer = d.Observer
	}
	return c
}

// isZero reports whether no threshold or timeout field was set.
func (c Config) isZero() bool {
	return c.FailureThreshold == 0 &&
		c.MonitoringPeriod == 0 &&
		c.RecoveryTimeout == 0 &&
		c.SuccessThreshold == 0 &&
		c.HalfOpenMaxCalls == 0 &&
		c.CallTimeout == 0
}

// sameThresholds reports whether two configs would build equivalent breakers.
func (c Config) sameThresholds(o Config) bool {
	return c.FailureThreshold == o.FailureThreshold &&
		c.MonitoringPeriod == o.MonitoringPeriod &&
		c.RecoveryTimeout == o.RecoveryTimeout &&
		c.SuccessThreshold == o.SuccessThreshold &&
		c.HalfOpenMaxCalls == o.HalfOpenMaxCalls &&
		c.CallTimeout == o.CallTimeout
}

// defaultIsFailure counts every error except a caller's own cancellation.
func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
