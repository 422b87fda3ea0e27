package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimitExceeded is matched by errors for requests over their policy quota.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrIPBlocked is matched by errors for requests from a blocked address.
	ErrIPBlocked = errors.New("ip address blocked")

	// ErrStoreUnavailable is returned when the store backend cannot be reached
	// or its guard breaker is open.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// ExceededError describes a rejected request. It matches ErrRateLimitExceeded.
type ExceededError struct {
	Key        string
	Policy     string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (policy %s), retry after %ds",
		e.Key, e.Policy, ceilSeconds(e.RetryAfter))
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfterSeconds returns the retry delay rounded up to whole seconds.
func (e *ExceededError) RetryAfterSeconds() int64 {
	return ceilSeconds(e.RetryAfter)
}

// BlockedError describes a request rejected by the IP abuse guard.
// It matches ErrIPBlocked.
type BlockedError struct {
	IP         string
	Reason     string
	RetryAfter time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("ip %s blocked (%s), retry after %ds", e.IP, e.Reason, ceilSeconds(e.RetryAfter))
}

// Is reports whether target is ErrIPBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrIPBlocked
}

// RetryAfterSeconds returns the retry delay rounded up to whole seconds.
func (e *BlockedError) RetryAfterSeconds() int64 {
	return ceilSeconds(e.RetryAfter)
}
