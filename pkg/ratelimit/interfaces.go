// Package ratelimit provides framework-agnostic rate limiting functionality.
//
// This package implements fixed-window request counting over pluggable storage
// backends, a per-client limiter driven by a named policy table, and an IP abuse
// guard that hard-blocks addresses exceeding a threshold. It is designed to be
// reusable across different contexts (HTTP, gRPC, CLI, background jobs).
package ratelimit

import (
	"context"
	"time"
)

// RateWindow is the fixed-window counter stored for a single key.
type RateWindow struct {
	// Count is the number of requests recorded in the current window.
	Count int

	// ResetAt is the time at which the window expires and the count restarts.
	// The zero value means no live window exists.
	ResetAt time.Time
}

// Expired reports whether the window is no longer live at now.
//
// A window is live strictly before ResetAt; at ResetAt a fresh window starts.
func (w RateWindow) Expired(now time.Time) bool {
	return !now.Before(w.ResetAt)
}

// Store defines the interface for storing and retrieving rate limit windows.
//
// Implementations can use in-memory storage, Redis, or other backends.
// All methods must be thread-safe, and Increment/Acquire must be atomic per key.
type Store interface {
	// Get returns the current window for key.
	//
	// If no window exists or the stored one has expired, a zero-count window
	// is returned. Get never mutates state.
	Get(ctx context.Context, key string) (RateWindow, error)

	// Increment records one request for key.
	//
	// If no live window exists, one is created with Count=1 and
	// ResetAt=now+window. Otherwise Count is incremented and ResetAt is left
	// unchanged. This is a fixed (not sliding) window.
	Increment(ctx context.Context, key string, window time.Duration) (RateWindow, error)

	// Acquire atomically increments the window for key only if its live count
	// is below max.
	//
	// Returns the window after the operation and whether the request was
	// counted. When denied, the returned window carries the live count and
	// ResetAt of the window that caused the denial.
	Acquire(ctx context.Context, key string, window time.Duration, max int) (RateWindow, bool, error)

	// Delete removes the window for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Sweep deletes every window that has expired and returns how many
	// entries were removed.
	Sweep(ctx context.Context) (int, error)

	// KeyCount returns the number of keys currently held by the store.
	KeyCount(ctx context.Context) (int, error)
}

// Metrics defines the interface for recording rate limiting metrics.
//
// Implementations can use Prometheus, StatsD, or custom metrics systems.
type Metrics interface {
	// RecordAllowed records a check that allowed the request.
	RecordAllowed(limiterType, policy string)

	// RecordDenied records a check that rejected the request.
	RecordDenied(limiterType, policy string)

	// RecordBlocked records a new IP block.
	RecordBlocked(reason string)

	// RecordStoreError records an internal store failure.
	// failOpen reports whether the request was allowed regardless.
	RecordStoreError(limiterType string, failOpen bool)

	// RecordCheckDuration records how long a check took.
	RecordCheckDuration(limiterType string, duration time.Duration)

	// RecordSweep records a sweep pass over a named target.
	RecordSweep(target string, removed int)

	// SetActiveKeys records the number of keys held by a named target.
	SetActiveKeys(target string, count int)
}

// Limiter type labels used in logs and metrics.
const (
	LimiterTypeClient = "client"
	LimiterTypeIP     = "ip"
)

// StoreKey builds the composite key under which a policy's window for a
// client is stored.
func StoreKey(policyName, clientKey string) string {
	return policyName + ":" + clientKey
}
