// Package circuitbreaker provides the circuit breaker guarding calls to
// downstream dependencies (database, external APIs) and a registry holding one
// breaker per dependency name.
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"inkwell/pkg/clock"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls run normally.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is admitting a bounded number of
	// trial calls to test recovery.
	StateHalfOpen
)

// String returns a string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Call outcomes reported to the Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// Observer receives breaker events. Implementations must be safe for
// concurrent use. OnStateChange is called with the breaker's lock held, in
// transition order, and must not call back into the breaker. OnCall is called
// outside the lock.
type Observer interface {
	OnStateChange(name string, from, to State)
	OnCall(name, outcome string, duration time.Duration)
}

// Operation is the unit of work guarded by a breaker. It receives a context
// that is cancelled when the per-call timeout fires.
type Operation func(ctx context.Context) (any, error)

// Failure is a failure recorded inside the monitoring period.
type Failure struct {
	At  time.Time `json:"at"`
	Err string    `json:"error"`

	// Timeout is true when the per-call timeout ended the call.
	Timeout bool `json:"timeout"`
}

// CircuitBreaker implements a three-state circuit breaker over a rolling
// failure window.
//
// Closed: failures are recorded with their timestamp and pruned to the
// monitoring period; reaching FailureThreshold opens the circuit.
// Open: calls are rejected with an *OpenError until RecoveryTimeout has passed;
// the first call after that moves the circuit to half-open.
// Half-open: up to HalfOpenMaxCalls trials run concurrently; SuccessThreshold
// successes close the circuit and clear the failure history, and any failure
// reopens it.
//
// Every state change bumps a generation counter. A call that completes after
// the generation it started in has ended is discarded, so a late result can
// never undo a later transition.
type CircuitBreaker struct {
	name     string
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	observer Observer

	mu               sync.Mutex
	state            State
	generation       uint64
	failures         []Failure
	lastFailureTime  time.Time
	openedAt         time.Time
	nextAttemptTime  time.Time
	successCount     int
	halfOpenInFlight int

	totalRequests   uint64
	totalSuccesses  uint64
	totalFailures   uint64
	totalRejections uint64
}

// New creates a circuit breaker. Zero config fields take DefaultConfig values.
func New(name string, cfg Config) *CircuitBreaker {
	cfg = cfg.withDefaults(Config{})
	return &CircuitBreaker{
		name:     name,
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Config returns the effective configuration.
func (cb *CircuitBreaker) Config() Config {
	return cb.cfg
}

// State returns the stored state. An open breaker whose recovery timeout has
// elapsed still reports StateOpen until the next call moves it to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs op through the breaker.
//
// Rejected calls return an *OpenError without invoking op. Otherwise op's own
// result and error are returned, or a *TimeoutError when the per-call timeout
// fires first. A timed-out operation keeps running in its goroutine with a
// cancelled context; its eventual result is dropped.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation) (any, error) {
	start := time.Now()

	gen, err := cb.admit()
	if err != nil {
		cb.report(OutcomeRejected, time.Since(start))
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		cb.complete(gen, err, true)
		cb.report(OutcomeCancelled, time.Since(start))
		return nil, err
	}

	r := cb.run(ctx, op)
	cb.complete(gen, r.err, r.cancelled)

	switch err := r.err; {
	case r.cancelled:
		cb.report(OutcomeCancelled, time.Since(start))
	case errors.Is(err, ErrOperationTimeout):
		cb.report(OutcomeTimeout, time.Since(start))
	case err != nil && cb.cfg.IsFailure(err):
		cb.report(OutcomeFailure, time.Since(start))
	default:
		cb.report(OutcomeSuccess, time.Since(start))
	}
	return r.value, r.err
}

// Do runs op through cb and returns its typed result.
func Do[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	var zero T
	if v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, err
	}
	return t, err
}

type callResult struct {
	value any
	err   error

	// cancelled is true when the caller's own context ended the call.
	cancelled bool
}

// run races op against the per-call timeout and the caller's context. The
// timeout is a wall-clock timer; the Clock only stamps recorded events.
func (cb *CircuitBreaker) run(ctx context.Context, op Operation) callResult {
	if cb.cfg.CallTimeout < 0 {
		v, err := op(ctx)
		return callResult{value: v, err: err, cancelled: err != nil && ctx.Err() != nil}
	}

	callCtx, cancel := context.WithTimeout(ctx, cb.cfg.CallTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		v, err := op(callCtx)
		done <- callResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			r.cancelled = true
		} else if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			r.value, r.err = nil, &TimeoutError{Name: cb.name, Timeout: cb.cfg.CallTimeout}
		}
		return r
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return callResult{err: err, cancelled: true}
		}
		return callResult{err: &TimeoutError{Name: cb.name, Timeout: cb.cfg.CallTimeout}}
	}
}

// admit decides whether a call may run and returns the generation it runs in.
func (cb *CircuitBreaker) admit() (uint64, error) {
	cb.mu.Lock()

	now := cb.clock.Now()
	cb.totalRequests++

	if cb.state == StateOpen && !now.Before(cb.nextAttemptTime) {
		cb.setState(StateHalfOpen, now)
	}

	switch cb.state {
	case StateOpen:
		cb.totalRejections++
		retryAt := cb.nextAttemptTime
		cb.mu.Unlock()
		return 0, &OpenError{Name: cb.name, RetryAt: retryAt}

	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxCalls {
			cb.totalRejections++
			cb.mu.Unlock()
			return 0, &OpenError{Name: cb.name, HalfOpenBusy: true}
		}
		cb.halfOpenInFlight++
	}

	gen := cb.generation
	cb.mu.Unlock()
	return gen, nil
}

// complete records the outcome of a call admitted in generation gen.
func (cb *CircuitBreaker) complete(gen uint64, err error, cancelled bool) {
	cb.mu.Lock()

	if gen != cb.generation {
		cb.mu.Unlock()
		return
	}

	now := cb.clock.Now()
	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	switch {
	case cancelled:
		// The caller gave up; the dependency's health is unknown.

	case err != nil && cb.cfg.IsFailure(err):
		cb.totalFailures++
		cb.lastFailureTime = now
		switch cb.state {
		case StateClosed:
			cb.failures = append(cb.failures, Failure{
				At:      now,
				Err:     err.Error(),
				Timeout: errors.Is(err, ErrOperationTimeout),
			})
			cb.prune(now)
			if len(cb.failures) >= cb.cfg.FailureThreshold {
				cb.setState(StateOpen, now)
			}
		case StateHalfOpen:
			cb.setState(StateOpen, now)
		}

	default:
		cb.totalSuccesses++
		if cb.state == StateHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.cfg.SuccessThreshold {
				cb.setState(StateClosed, now)
			}
		}
	}

	cb.mu.Unlock()
}

// prune drops failures older than the monitoring period. Must hold mu.
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.cfg.MonitoringPeriod)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].At.After(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
}

// setState moves the breaker to s, starts a new generation and notifies the
// observer. Must hold mu.
func (cb *CircuitBreaker) setState(s State, now time.Time) {
	from := cb.state
	cb.state = s
	cb.generation++
	cb.halfOpenInFlight = 0
	cb.successCount = 0

	switch s {
	case StateOpen:
		cb.openedAt = now
		cb.nextAttemptTime = now.Add(cb.cfg.RecoveryTimeout)
	case StateClosed:
		cb.failures = nil
		cb.nextAttemptTime = time.Time{}
	}

	cb.logger.Warn("circuit breaker state changed",
		slog.String("event_type", "circuit_breaker_state_change"),
		slog.String("circuit", cb.name),
		slog.String("from", from.String()),
		slog.String("to", s.String()),
		slog.Int("failures", len(cb.failures)),
		slog.Int("failure_threshold", cb.cfg.FailureThreshold),
		slog.Uint64("total_requests", cb.totalRequests),
		slog.Time("next_attempt_at", cb.nextAttemptTime))

	if cb.observer != nil {
		cb.observer.OnStateChange(cb.name, from, s)
	}
}

func (cb *CircuitBreaker) report(outcome string, d time.Duration) {
	if cb.observer != nil {
		cb.observer.OnCall(cb.name, outcome, d)
	}
}

// Reset returns the breaker to closed with an empty failure history.
// Calls in flight when Reset runs are discarded on completion.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()

	if cb.state != StateClosed {
		cb.setState(StateClosed, cb.clock.Now())
	} else {
		cb.generation++
		cb.failures = nil
	}
	cb.lastFailureTime = time.Time{}
	cb.mu.Unlock()

	cb.logger.Info("circuit breaker reset", slog.String("circuit", cb.name))
}

// Status is a point-in-time snapshot of a breaker.
type Status struct {
	Name            string     `json:"name"`
	State           string     `json:"state"`
	Failures        int        `json:"failures"`
	Timeouts        int        `json:"timeouts"`
	RecentFailures  []Failure  `json:"recent_failures,omitempty"`
	SuccessCount    int        `json:"success_count"`
	TotalRequests   uint64     `json:"total_requests"`
	TotalSuccesses  uint64     `json:"total_successes"`
	TotalFailures   uint64     `json:"total_failures"`
	TotalRejections uint64     `json:"total_rejections"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	NextAttemptTime *time.Time `json:"next_attempt_time,omitempty"`
}

// Status returns a snapshot. Failures counts only failures inside the
// monitoring period.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.prune(cb.clock.Now())

	s := Status{
		Name:            cb.name,
		State:           cb.state.String(),
		Failures:        len(cb.failures),
		SuccessCount:    cb.successCount,
		TotalRequests:   cb.totalRequests,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
	}
	if len(cb.failures) > 0 {
		s.RecentFailures = append([]Failure(nil), cb.failures...)
		for _, f := range cb.failures {
			if f.Timeout {
				s.Timeouts++
			}
		}
	}
	if !cb.lastFailureTime.IsZero() {
		t := cb.lastFailureTime
		s.LastFailureTime = &t
	}
	if cb.state == StateOpen {
		opened, next := cb.openedAt, cb.nextAttemptTime
		s.OpenedAt = &opened
		s.NextAttemptTime = &next
	}
	return s
}
