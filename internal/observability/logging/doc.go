// Package logging builds the slog loggers used across inkwell.
//
// Output is JSON unless LOG_FORMAT=text, at the level named by LOG_LEVEL.
// Middleware stores a request-scoped logger carrying request_id in the
// context; handlers and middleware retrieve it with FromContext.
//
// Resilience components log with a stable event_type attribute so that
// operators can filter on it:
//
//	rate_limit_denied               a client limiter denied a request
//	rate_limit_store_error          a counter store call failed
//	ip_blocked, ip_unblocked        the abuse guard changed an address's block
//	circuit_breaker_state_change    a breaker changed state
//	store_guard_state_change        the store guard opened or closed
//	retry_exhausted                 a retried operation gave up
//
// Example:
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//	handler := logging.Middleware(logger)(mux)
package logging
