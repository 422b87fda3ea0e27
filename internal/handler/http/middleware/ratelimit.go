package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"inkwell/internal/handler/http/pathutil"
	"inkwell/internal/handler/http/respond"
	"inkwell/internal/observability/metrics"
	"inkwell/internal/observability/tracing"
	"inkwell/pkg/ratelimit"
)

// Rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderPolicy    = "X-RateLimit-Policy"
)

// RateLimiterConfig wires the middleware to the rate limiting components.
type RateLimiterConfig struct {
	// Limiter applies per-client policies. Required.
	Limiter *ratelimit.ClientLimiter

	// Guard blocks abusive IPs. Nil disables the guard.
	Guard *ratelimit.IPGuard

	// Identity resolves the client when no upstream middleware stored one.
	// Default: RemoteAddr only, no tokens.
	Identity *Identity

	Logger *slog.Logger
}

// RateLimiter exposes the IP guard and the per-route client limits as
// middleware. Both read the identity stored by Identity.Middleware.
type RateLimiter struct {
	limiter  *ratelimit.ClientLimiter
	guard    *ratelimit.IPGuard
	identity *Identity
	logger   *slog.Logger
}

// NewRateLimiter creates the rate limit middleware set.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Identity == nil {
		config.Identity = NewIdentity(nil, nil, config.Logger)
	}
	return &RateLimiter{
		limiter:  config.Limiter,
		guard:    config.Guard,
		identity: config.Identity,
		logger:   config.Logger,
	}
}

func (rl *RateLimiter) identityOf(r *http.Request) ratelimit.Identity {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return id
	}
	return rl.identity.Resolve(r)
}

// GuardIP rejects requests from blocked IPs with 429 before any route work.
// It counts every request it sees, so mount it once, in front of all routes.
func (rl *RateLimiter) GuardIP(next http.Handler) http.Handler {
	if rl.guard == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rl.identityOf(r)
		d := rl.guard.Check(r.Context(), id.IP)
		tracing.RecordIPGuard(r.Context(), d)
		if !d.Allowed {
			metrics.RecordThrottled("ip_blocked", pathutil.NormalizePath(r.URL.Path))
			rl.logger.Warn("request from blocked IP rejected",
				slog.String("event_type", "ip_blocked_rejected"),
				slog.String("ip", id.IP),
				slog.String("reason", d.Reason),
				slog.Int64("retry_after", d.RetryAfterSeconds()),
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method))
			respond.FromError(w, d.Err())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Limit applies the named policy to the route it wraps. Every response
// carries X-RateLimit-* headers; denials are 429 with Retry-After.
func (rl *RateLimiter) Limit(policy string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := rl.limiter.Check(r.Context(), policy, rl.identityOf(r))
			tracing.RecordRateLimit(r.Context(), d)
			setRateLimitHeaders(w, d)

			if !d.Allowed {
				metrics.RecordThrottled("rate_limited", pathutil.NormalizePath(r.URL.Path))
				respond.FromError(w, d.Err())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimitFunc is Limit for a handler function.
func (rl *RateLimiter) LimitFunc(policy string, fn http.HandlerFunc) http.Handler {
	return rl.Limit(policy)(fn)
}

func setRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAtUnix(), 10))
	h.Set(HeaderPolicy, d.Policy)
}
