package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// GuardedStoreConfig configures the breaker placed in front of a store backend.
type GuardedStoreConfig struct {
	// Name is used in logs.
	// Default: "ratelimit-store"
	Name string

	// ConsecutiveFailures trips the guard after this many backend errors in a row.
	// Default: 5
	ConsecutiveFailures uint32

	// OpenTimeout is how long the guard stays open before probing the backend.
	// Default: 10 seconds
	OpenTimeout time.Duration

	// Logger receives state change events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// GuardedStore wraps a Store with a gobreaker circuit breaker.
//
// When the backend (typically Redis) fails repeatedly, the guard opens and
// every call returns ErrStoreUnavailable immediately instead of paying a
// network timeout per request. Limiters treat that error like any other store
// failure and fail open or closed according to their configuration.
type GuardedStore struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedStore wraps next with a breaker configured by config.
func NewGuardedStore(next Store, config GuardedStoreConfig) *GuardedStore {
	if config.Name == "" {
		config.Name = "ratelimit-store"
	}
	if config.ConsecutiveFailures == 0 {
		config.ConsecutiveFailures = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	threshold := config.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("rate limit store guard state changed",
				slog.String("event_type", "store_guard_state_change"),
				slog.String("guard", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &GuardedStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State returns the guard's current state.
func (g *GuardedStore) State() gobreaker.State {
	return g.breaker.State()
}

// Get reads through the guard.
func (g *GuardedStore) Get(ctx context.Context, key string) (RateWindow, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Get(ctx, key)
	})
	if err != nil {
		return RateWindow{}, guardErr(err)
	}
	return res.(RateWindow), nil
}

// Increment writes through the guard.
func (g *GuardedStore) Increment(ctx context.Context, key string, window time.Duration) (RateWindow, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Increment(ctx, key, window)
	})
	if err != nil {
		return RateWindow{}, guardErr(err)
	}
	return res.(RateWindow), nil
}

type acquireResult struct {
	window   RateWindow
	admitted bool
}

// Acquire writes through the guard.
func (g *GuardedStore) Acquire(ctx context.Context, key string, window time.Duration, max int) (RateWindow, bool, error) {
	res, err := g.breaker.Execute(func() (interface{}, error) {
		w, ok, err := g.next.Acquire(ctx, key, window, max)
		if err != nil {
			return nil, err
		}
		return acquireResult{window: w, admitted: ok}, nil
	})
	if err != nil {
		return RateWindow{}, false, guardErr(err)
	}
	r := res.(acquireResult)
	return r.window, r.admitted, nil
}

// Delete writes through the guard.
func (g *GuardedStore) Delete(ctx context.Context, key string) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.next.Delete(ctx, key)
	})
	return guardErr(err)
}

// Sweep is passed through without the guard; a failing sweep is not on the
// request path.
func (g *GuardedStore) Sweep(ctx context.Context) (int, error) {
	return g.next.Sweep(ctx)
}

// KeyCount is passed through without the guard.
func (g *GuardedStore) KeyCount(ctx context.Context) (int, error) {
	return g.next.KeyCount(ctx)
}

func guardErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
