package tracing

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"inkwell/internal/handler/http/pathutil"
	"inkwell/internal/handler/http/requestid"
	"inkwell/internal/handler/http/responsewriter"
)

// TraceIDHeader echoes the trace id back to the client.
const TraceIDHeader = "X-Trace-Id"

// Middleware starts a server span per request.
//
// The span continues any W3C trace context on the request and is named after
// the normalized route ("GET /posts/:id"), so post ids do not explode span
// cardinality. Throttling middleware further down adds its decision to the same
// span through RecordRateLimit and RecordIPGuard. Responses of 429 and 503 are
// marked with an event; 5xx responses set the span status to Error.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := pathutil.NormalizePath(r.URL.Path)
		ctx, span := GetTracer().Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.path", r.URL.Path),
			),
		)
		defer span.End()

		if id := requestid.FromContext(ctx); id != "" {
			span.SetAttributes(AttrRequestID.String(id))
		}
		w.Header().Set(TraceIDHeader, span.SpanContext().TraceID().String())

		rw := responsewriter.Wrap(w)
		next.ServeHTTP(rw, r.WithContext(ctx))

		status := rw.StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", status))
		switch {
		case status == http.StatusTooManyRequests:
			span.AddEvent("throttled", trace.WithAttributes(
				attribute.String("retry_after", rw.Header().Get("Retry-After")),
			))
		case status == http.StatusServiceUnavailable:
			span.AddEvent("dependency_unavailable", trace.WithAttributes(
				attribute.String("retry_after", rw.Header().Get("Retry-After")),
			))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
		}
	})
}
