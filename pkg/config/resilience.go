package config

import (
	"log/slog"

	"inkwell/internal/resilience/circuitbreaker"
)

// LoadBreakerDefaults loads the registry-wide circuit breaker defaults.
//
// Environment variables:
//   - BREAKER_FAILURE_THRESHOLD: Failures within the monitoring period that open a breaker (default: 5)
//   - BREAKER_MONITORING_PERIOD: Rolling failure window (default: 60s)
//   - BREAKER_RECOVERY_TIMEOUT: Time spent open before a trial call is admitted (default: 30s)
//   - BREAKER_SUCCESS_THRESHOLD: Trial successes needed to close (default: 3)
//   - BREAKER_CALL_TIMEOUT: Per-call timeout, negative disables (default: 30s)
func LoadBreakerDefaults() circuitbreaker.Config {
	defaults := circuitbreaker.DefaultConfig()

	cfg := circuitbreaker.Config{
		FailureThreshold: positiveInt("BREAKER_FAILURE_THRESHOLD", defaults.FailureThreshold),
		MonitoringPeriod: positiveDuration("BREAKER_MONITORING_PERIOD", defaults.MonitoringPeriod),
		RecoveryTimeout:  positiveDuration("BREAKER_RECOVERY_TIMEOUT", defaults.RecoveryTimeout),
		SuccessThreshold: positiveInt("BREAKER_SUCCESS_THRESHOLD", defaults.SuccessThreshold),
		HalfOpenMaxCalls: defaults.HalfOpenMaxCalls,
		CallTimeout:      GetEnvDuration("BREAKER_CALL_TIMEOUT", defaults.CallTimeout),
	}

	if cfg.CallTimeout == 0 {
		slog.Warn("BREAKER_CALL_TIMEOUT of 0 is ambiguous, using default; set a negative value to disable",
			slog.String("default", defaults.CallTimeout.String()))
		cfg.CallTimeout = defaults.CallTimeout
	}

	return cfg
}

// RetryBudgetConfig sizes the process-wide retry budget.
type RetryBudgetConfig struct {
	// PerSecond is the sustained number of retries allowed per second. Zero disables the budget.
	PerSecond float64

	// Burst is the number of retries that may be spent at once
	Burst int
}

// LoadRetryBudgetConfig loads the retry budget.
//
// Environment variables:
//   - RETRY_BUDGET_PER_SECOND: Sustained retries per second, 0 disables (default: 10)
//   - RETRY_BUDGET_BURST: Burst size (default: 20)
func LoadRetryBudgetConfig() RetryBudgetConfig {
	cfg := RetryBudgetConfig{
		PerSecond: GetEnvFloat("RETRY_BUDGET_PER_SECOND", 10),
		Burst:     positiveInt("RETRY_BUDGET_BURST", 20),
	}
	if cfg.PerSecond < 0 {
		slog.Warn("invalid RETRY_BUDGET_PER_SECOND, using default",
			slog.Float64("value", cfg.PerSecond),
			slog.Float64("default", 10))
		cfg.PerSecond = 10
	}
	return cfg
}
