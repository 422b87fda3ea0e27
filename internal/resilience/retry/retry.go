// Package retry provides retry logic with exponential backoff and jitter.
// It helps handle transient failures gracefully by automatically retrying failed
// operations, and composes with circuit breakers so that an open breaker ends
// a retry sequence immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the total number of attempts, the first one included
	MaxAttempts int

	// BaseDelay is the delay before the second attempt
	BaseDelay time.Duration

	// MaxDelay caps the delay between attempts. The executor substitutes BaseDelay for zero.
	MaxDelay time.Duration

	// BackoffFactor is the multiplier for exponential backoff
	BackoffFactor float64

	// Jitter scales each delay by a random factor in [0.5, 1.0]
	Jitter bool

	// RetryCondition reports whether an error is worth another attempt
	RetryCondition func(err error) bool
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		RetryCondition: IsRetryable,
	}
}

// DBConfig returns configuration optimized for database operations.
// Retries connection failures and transient server conditions only.
func DBConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		RetryCondition: IsTransientDBError,
	}
}

// ExternalAPIConfig returns configuration for third-party HTTP APIs.
// Adds 5xx, 408 and 429 responses to the network failures retried.
func ExternalAPIConfig() Config {
	return Config{
		MaxAttempts:    4,
		BaseDelay:      250 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		RetryCondition: IsRetryableHTTP,
	}
}

// AuthConfig returns configuration for authentication calls.
// Only network failures are retried so a rejected credential is reported
// on the first attempt.
func AuthConfig() Config {
	return Config{
		MaxAttempts:    2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
		RetryCondition: IsNetworkError,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = c.BaseDelay
	}
	if c.RetryCondition == nil {
		c.RetryCondition = IsRetryable
	}
	return c
}

// Delay returns the un-jittered delay after the given failed attempt (1-based):
// min(MaxDelay, BaseDelay * BackoffFactor^(attempt-1)).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 || c.BaseDelay <= 0 {
		return 0
	}
	d := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return durationOf(d)
}

// durationOf converts d to a Duration, saturating at the largest Duration.
func durationOf(d float64) time.Duration {
	if math.IsNaN(d) || d <= 0 {
		return 0
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// backoff returns the delay after attempt, scaled by 0.5+0.5*r when jitter is on.
func (c Config) backoff(attempt int, r float64) time.Duration {
	d := c.Delay(attempt)
	if !c.Jitter {
		return d
	}
	return durationOf(float64(d) * (0.5 + 0.5*r))
}

// ErrRetryExhausted is matched by every *ExhaustedError.
var ErrRetryExhausted = errors.New("retry exhausted")

// Attempt records one failed attempt.
type Attempt struct {
	Number int
	// Delay is the wait that preceded this attempt.
	Delay time.Duration
	Err   error
}

// ExhaustedError is returned when a sequence ends without success. It unwraps
// to the last attempt's error, so callers can still match the original failure.
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error

	// BudgetExhausted is true when the retry budget refused another attempt.
	BudgetExhausted bool

	History []Attempt
}

func (e *ExhaustedError) Error() string {
	reason := "attempts"
	if e.BudgetExhausted {
		reason = "attempts (retry budget exhausted)"
	}
	return fmt.Sprintf("%s: retry exhausted after %d %s: %v", e.Name, e.Attempts, reason, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRetryExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// WithBackoff executes fn with retry logic and exponential backoff using a
// default executor. It returns nil if fn succeeds.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	return defaultExecutor.Do(ctx, "operation", cfg, func(context.Context) error {
		return fn()
	})
}

var defaultExecutor = NewExecutor(nil)
