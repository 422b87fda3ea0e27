// Package tracing provides OpenTelemetry tracing integration.
//
// It exposes the application tracer and an HTTP middleware that extracts
// W3C trace context, starts a server span per request and echoes the trace id
// in the X-Trace-Id response header. The retry executor uses the same tracer
// for its per-sequence spans.
//
// Example usage:
//
//	import "inkwell/internal/observability/tracing"
//
//	func processRequest(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "process-request")
//	    defer span.End()
//	    // ... process request ...
//	}
package tracing
