package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"inkwell/internal/observability/tracing"
	"inkwell/internal/resilience/circuitbreaker"
)

// Executor runs operations with retries. When built with a breaker registry,
// every attempt goes through the named breaker.
type Executor struct {
	registry *circuitbreaker.Registry
	logger   *slog.Logger
	metrics  *Metrics
	budget   *Budget
	tracer   trace.Tracer
	sleep    func(ctx context.Context, d time.Duration) error
	random   func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithBudget shares a retry budget across all sequences run by the executor.
func WithBudget(b *Budget) Option {
	return func(e *Executor) { e.budget = b }
}

// WithTracer overrides the application tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithSleep replaces the context-aware sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(e *Executor) { e.random = f }
}

// NewExecutor creates an Executor. registry may be nil, in which case
// attempts run without a circuit breaker.
func NewExecutor(registry *circuitbreaker.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		sleep:    sleepContext,
		random:   rand.Float64, // #nosec G404 -- jitter does not need crypto randomness
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = tracing.GetTracer()
	}
	return e
}

// Do runs op until it succeeds, the retry condition rejects its error,
// attempts run out, the breaker is open or ctx is done.
func (e *Executor) Do(ctx context.Context, name string, cfg Config, op func(ctx context.Context) error) error {
	_, err := e.ExecuteWithRetry(ctx, name, cfg, func(ctx context.Context) (any, error) {
		return nil, op(ctx)
	})
	return err
}

// DoValue is the typed form of ExecuteWithRetry.
func DoValue[T any](ctx context.Context, e *Executor, name string, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := e.ExecuteWithRetry(ctx, name, cfg, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

// ExecuteWithRetry runs op with retries, each attempt through the breaker
// registered under name. An open breaker ends the sequence at once with
// its *circuitbreaker.OpenError. Other terminal failures are returned as
// *ExhaustedError; context errors are returned as they are.
func (e *Executor) ExecuteWithRetry(ctx context.Context, name string, cfg Config, op circuitbreaker.Operation) (any, error) {
	cfg = cfg.withDefaults()

	ctx, span := e.tracer.Start(ctx, "retry."+name, trace.WithAttributes(
		attribute.String("retry.name", name),
		attribute.Int("retry.max_attempts", cfg.MaxAttempts),
	))
	defer span.End()

	var cb *circuitbreaker.CircuitBreaker
	if e.registry != nil {
		cb = e.registry.Breaker(name)
	}

	var (
		history []Attempt
		delay   time.Duration
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			e.finish(span, name, attempt-1, "cancelled", err)
			return nil, err
		}

		var (
			value any
			err   error
		)
		if cb != nil {
			span.SetAttributes(tracing.BreakerAttributes(name, cb.State().String())...)
			value, err = cb.Execute(ctx, op)
		} else {
			value, err = op(ctx)
		}

		if err == nil {
			if attempt > 1 {
				e.logger.Info("operation succeeded after retry",
					slog.String("name", name),
					slog.Int("attempt", attempt))
			}
			e.metrics.observeAttempts(name, "success", attempt)
			span.SetAttributes(attribute.Int("retry.attempts", attempt))
			span.SetStatus(codes.Ok, "")
			return value, nil
		}

		history = append(history, Attempt{Number: attempt, Delay: delay, Err: err})
		failed := []attribute.KeyValue{
			attribute.Int("retry.attempt", attempt),
			attribute.String("error", err.Error()),
		}
		if cb != nil {
			failed = append(failed, tracing.AttrBreakerState.String(cb.State().String()))
		}
		span.AddEvent("attempt_failed", trace.WithAttributes(failed...))

		if circuitbreaker.IsOpen(err) {
			e.logger.Warn("circuit open, aborting retry",
				slog.String("name", name),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			e.finish(span, name, attempt, "circuit_open", err)
			return nil, err
		}

		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			e.finish(span, name, attempt, "cancelled", err)
			return nil, err
		}

		if !cfg.RetryCondition(err) {
			e.logger.Warn("non-retryable error, aborting",
				slog.String("name", name),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return nil, e.exhausted(span, name, attempt, err, false, history)
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if err := ctx.Err(); err != nil {
			e.finish(span, name, attempt, "cancelled", err)
			return nil, err
		}

		if !e.budget.Allow() {
			return nil, e.exhausted(span, name, attempt, err, true, history)
		}

		delay = cfg.backoff(attempt, e.random())
		e.logger.Warn("operation failed, retrying",
			slog.String("name", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		e.metrics.incRetries(name)

		if err := e.sleep(ctx, delay); err != nil {
			e.finish(span, name, attempt, "cancelled", err)
			return nil, err
		}
	}

	last := history[len(history)-1]
	return nil, e.exhausted(span, name, last.Number, last.Err, false, history)
}

func (e *Executor) exhausted(span trace.Span, name string, attempts int, err error, budget bool, history []Attempt) error {
	exErr := &ExhaustedError{
		Name:            name,
		Attempts:        attempts,
		Err:             err,
		BudgetExhausted: budget,
		History:         history,
	}
	e.logger.Error("retry exhausted",
		slog.String("event_type", "retry_exhausted"),
		slog.String("name", name),
		slog.Int("attempts", attempts),
		slog.Bool("budget_exhausted", budget),
		slog.Any("error", err))
	e.finish(span, name, attempts, "exhausted", exErr)
	return exErr
}

func (e *Executor) finish(span trace.Span, name string, attempts int, outcome string, err error) {
	e.metrics.observeAttempts(name, outcome, attempts)
	span.SetAttributes(
		attribute.Int("retry.attempts", attempts),
		attribute.String("retry.outcome", outcome),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
