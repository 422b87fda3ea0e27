package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Decision represents the result of a client rate limit check.
//
// It carries everything a caller needs to set X-RateLimit-* and Retry-After
// headers. Header emission itself is the caller's responsibility.
type Decision struct {
	// Key is the client key the decision was made for (e.g. "user:42", "ip:1.2.3.4").
	Key string

	// Policy is the name of the policy that was applied.
	Policy string

	// Allowed indicates whether the request should be permitted.
	Allowed bool

	// Limit is the maximum number of requests allowed in the window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAt is the time when the current window resets.
	ResetAt time.Time

	// RetryAfter is how long the client should wait before retrying.
	// It is zero for allowed requests.
	RetryAfter time.Duration

	// LimiterType identifies which limiter made this decision.
	LimiterType string

	// Degraded is true when the decision was made without consulting the
	// store because of an internal error (fail-open or fail-closed).
	Degraded bool
}

// String returns a human-readable representation of the decision.
func (d *Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf(
			"Decision{Allowed: true, Key: %s, Policy: %s, Remaining: %d/%d, ResetAt: %s}",
			d.Key,
			d.Policy,
			d.Remaining,
			d.Limit,
			d.ResetAt.Format(time.RFC3339),
		)
	}

	return fmt.Sprintf(
		"Decision{Allowed: false, Key: %s, Policy: %s, Limit: %d, RetryAfter: %s, ResetAt: %s}",
		d.Key,
		d.Policy,
		d.Limit,
		d.RetryAfter.String(),
		d.ResetAt.Format(time.RFC3339),
	)
}

// IsDenied returns true if the request is denied.
func (d *Decision) IsDenied() bool {
	return !d.Allowed
}

// ResetAtUnix returns the reset time as a Unix timestamp.
//
// This is useful for HTTP headers like X-RateLimit-Reset.
func (d *Decision) ResetAtUnix() int64 {
	return d.ResetAt.Unix()
}

// RetryAfterSeconds returns the retry delay rounded up to whole seconds.
//
// This is useful for HTTP headers like Retry-After.
func (d *Decision) RetryAfterSeconds() int64 {
	return ceilSeconds(d.RetryAfter)
}

// Err returns ErrRateLimitExceeded for denied decisions and nil otherwise.
func (d *Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Key: d.Key, Policy: d.Policy, RetryAfter: d.RetryAfter}
}

func newAllowedDecision(key, policy string, limit, remaining int, resetAt time.Time) *Decision {
	if remaining < 0 {
		remaining = 0
	}
	return &Decision{
		Key:         key,
		Policy:      policy,
		Allowed:     true,
		Limit:       limit,
		Remaining:   remaining,
		ResetAt:     resetAt,
		LimiterType: LimiterTypeClient,
	}
}

func newDeniedDecision(key, policy string, limit int, resetAt, now time.Time) *Decision {
	retryAfter := resetAt.Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return &Decision{
		Key:         key,
		Policy:      policy,
		Allowed:     false,
		Limit:       limit,
		Remaining:   0,
		ResetAt:     resetAt,
		RetryAfter:  retryAfter,
		LimiterType: LimiterTypeClient,
	}
}

// ceilSeconds rounds d up to whole seconds, never returning a negative value.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
