package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCircuitOpen is matched by every error returned for a short-circuited call.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrOperationTimeout is matched by errors for calls that exceeded the
	// breaker's per-call timeout.
	ErrOperationTimeout = errors.New("operation timed out")
)

// OpenError is returned when a call is rejected without running the operation.
// It matches ErrCircuitOpen.
type OpenError struct {
	Name string

	// RetryAt is when the breaker will admit a trial call. Zero for HalfOpenBusy.
	RetryAt time.Time

	// HalfOpenBusy is true when the breaker is half-open and every trial slot
	// is in use.
	HalfOpenBusy bool
}

func (e *OpenError) Error() string {
	if e.HalfOpenBusy {
		return fmt.Sprintf("circuit breaker %q is half-open: trial in progress", e.Name)
	}
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

// Is reports whether target is ErrCircuitOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RetryAfter returns how long a caller should wait from now before retrying.
func (e *OpenError) RetryAfter(now time.Time) time.Duration {
	if e.RetryAt.IsZero() || !now.Before(e.RetryAt) {
		return 0
	}
	return e.RetryAt.Sub(now)
}

// TimeoutError is returned when an operation exceeded the per-call timeout.
// It matches ErrOperationTimeout and is recorded as a failure.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("circuit breaker %q: operation timed out after %s", e.Name, e.Timeout)
}

// Is reports whether target is ErrOperationTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrOperationTimeout
}

// IsOpen reports whether err was produced by a short-circuited call.
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsTimeout reports whether err was produced by a per-call timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrOperationTimeout)
}
