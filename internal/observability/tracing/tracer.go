package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"inkwell/pkg/ratelimit"
)

// Span attribute keys for resilience decisions.
const (
	AttrRateLimitPolicy    = attribute.Key("ratelimit.policy")
	AttrRateLimitKey       = attribute.Key("ratelimit.key")
	AttrRateLimitAllowed   = attribute.Key("ratelimit.allowed")
	AttrRateLimitRemaining = attribute.Key("ratelimit.remaining")
	AttrRateLimitDegraded  = attribute.Key("ratelimit.degraded")
	AttrIPGuardBlocked     = attribute.Key("ipguard.blocked")
	AttrIPGuardReason      = attribute.Key("ipguard.reason")
	AttrBreakerName        = attribute.Key("breaker.name")
	AttrBreakerState       = attribute.Key("breaker.state")
	AttrRequestID          = attribute.Key("request.id")
)

const instrumentationName = "inkwell"

// GetTracer returns the application tracer from the current global provider.
// It is looked up on every call so a provider installed after package init
// (tests, late SDK setup) is honoured.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// RecordRateLimit annotates the request span with a client limiter decision.
// A nil decision or a context without a recording span is ignored.
func RecordRateLimit(ctx context.Context, d *ratelimit.Decision) {
	span := trace.SpanFromContext(ctx)
	if d == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(
		AttrRateLimitPolicy.String(d.Policy),
		AttrRateLimitKey.String(d.Key),
		AttrRateLimitAllowed.Bool(d.Allowed),
		AttrRateLimitRemaining.Int(d.Remaining),
		AttrRateLimitDegraded.Bool(d.Degraded),
	)
	if !d.Allowed {
		span.AddEvent("rate_limit_exceeded", trace.WithAttributes(
			attribute.Int64("retry_after_seconds", d.RetryAfterSeconds()),
		))
	}
}

// RecordIPGuard annotates the request span with an IP guard decision.
func RecordIPGuard(ctx context.Context, d *ratelimit.GuardDecision) {
	span := trace.SpanFromContext(ctx)
	if d == nil || !span.IsRecording() {
		return
	}
	span.SetAttributes(AttrIPGuardBlocked.Bool(d.Blocked))
	if !d.Allowed {
		span.SetAttributes(AttrIPGuardReason.String(d.Reason))
		span.AddEvent("ip_blocked", trace.WithAttributes(
			attribute.Int64("retry_after_seconds", d.RetryAfterSeconds()),
		))
	}
}

// BreakerAttributes describes the breaker guarding a span's work.
func BreakerAttributes(name, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBreakerName.String(name),
		AttrBreakerState.String(state),
	}
}
