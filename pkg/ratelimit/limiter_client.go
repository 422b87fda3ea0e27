package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"inkwell/pkg/clock"
)

// failClosedRetryAfter is the retry delay reported when a store error forces
// a fail-closed denial.
const failClosedRetryAfter = 1 * time.Second

// Identity is the client making a request.
type Identity struct {
	// UserID is the authenticated user, or empty for anonymous requests.
	UserID string

	// IP is the source address of the request.
	IP string
}

// ClientKey returns "user:<id>" for authenticated clients and "ip:<addr>"
// otherwise.
func (id Identity) ClientKey() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	return "ip:" + id.IP
}

// ClientLimiterConfig configures a ClientLimiter.
type ClientLimiterConfig struct {
	Store    Store
	Policies PolicyTable
	Clock    clock.Clock
	Metrics  Metrics
	Logger   *slog.Logger

	// FailOpen allows requests when the store returns an error.
	FailOpen bool
}

// ClientLimiter applies named fixed-window policies per client.
type ClientLimiter struct {
	store    Store
	policies PolicyTable
	clock    clock.Clock
	metrics  Metrics
	logger   *slog.Logger
	failOpen bool
}

// NewClientLimiter creates a limiter. A nil policy table uses DefaultPolicies.
func NewClientLimiter(config ClientLimiterConfig) *ClientLimiter {
	if config.Policies == nil {
		config.Policies = DefaultPolicies()
	}
	if config.Metrics == nil {
		config.Metrics = &NoOpMetrics{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &ClientLimiter{
		store:    config.Store,
		policies: config.Policies,
		clock:    clock.OrSystem(config.Clock),
		metrics:  config.Metrics,
		logger:   config.Logger,
		failOpen: config.FailOpen,
	}
}

// Policy resolves a policy name, falling back to the "api" policy for
// unknown names.
func (l *ClientLimiter) Policy(name string) Policy {
	if p, ok := l.policies.Lookup(name); ok {
		return p
	}
	l.logger.Warn("unknown rate limit policy, using fallback",
		slog.String("policy", name),
		slog.String("fallback", PolicyAPI))
	p, _ := l.policies.Lookup(PolicyAPI)
	return p
}

// Check counts one request from id against the named policy.
//
// The quota check and the increment are a single atomic store operation, so
// concurrent requests for the same client can never be admitted past Max.
// Store errors never surface to the caller: the decision is allowed (fail
// open) or denied with a short retry-after (fail closed) and marked Degraded.
func (l *ClientLimiter) Check(ctx context.Context, policyName string, id Identity) *Decision {
	start := time.Now()
	defer func() {
		l.metrics.RecordCheckDuration(LimiterTypeClient, time.Since(start))
	}()

	policy := l.Policy(policyName)
	clientKey := id.ClientKey()

	w, admitted, err := l.store.Acquire(ctx, StoreKey(policy.Name, clientKey), policy.Window, policy.Max)
	now := l.clock.Now()
	if err != nil {
		return l.degraded(clientKey, policy, now, err)
	}

	if !admitted {
		d := newDeniedDecision(clientKey, policy.Name, policy.Max, w.ResetAt, now)
		l.metrics.RecordDenied(LimiterTypeClient, policy.Name)
		l.logger.Warn("rate limit exceeded",
			slog.String("event_type", "rate_limit_rejected"),
			slog.String("key", clientKey),
			slog.String("policy", policy.Name),
			slog.Int("count", w.Count),
			slog.Int("limit", policy.Max),
			slog.Time("reset_at", w.ResetAt),
			slog.Int64("retry_after_seconds", d.RetryAfterSeconds()))
		return d
	}

	l.metrics.RecordAllowed(LimiterTypeClient, policy.Name)
	return newAllowedDecision(clientKey, policy.Name, policy.Max, policy.Max-w.Count, w.ResetAt)
}

// Peek reports what Check would decide without counting a request.
func (l *ClientLimiter) Peek(ctx context.Context, policyName string, id Identity) (*Decision, error) {
	policy := l.Policy(policyName)
	clientKey := id.ClientKey()

	w, err := l.store.Get(ctx, StoreKey(policy.Name, clientKey))
	if err != nil {
		return nil, err
	}

	now := l.clock.Now()
	if w.Count >= policy.Max {
		return newDeniedDecision(clientKey, policy.Name, policy.Max, w.ResetAt, now), nil
	}
	resetAt := w.ResetAt
	if resetAt.IsZero() {
		resetAt = now.Add(policy.Window)
	}
	return newAllowedDecision(clientKey, policy.Name, policy.Max, policy.Max-w.Count, resetAt), nil
}

func (l *ClientLimiter) degraded(clientKey string, policy Policy, now time.Time, err error) *Decision {
	l.metrics.RecordStoreError(LimiterTypeClient, l.failOpen)
	l.logger.Error("rate limit store error",
		slog.String("event_type", "rate_limit_store_error"),
		slog.String("key", clientKey),
		slog.String("policy", policy.Name),
		slog.Bool("fail_open", l.failOpen),
		slog.Any("error", err))

	if l.failOpen {
		d := newAllowedDecision(clientKey, policy.Name, policy.Max, policy.Max, now.Add(policy.Window))
		d.Degraded = true
		return d
	}

	d := newDeniedDecision(clientKey, policy.Name, policy.Max, now.Add(failClosedRetryAfter), now)
	d.Degraded = true
	return d
}
