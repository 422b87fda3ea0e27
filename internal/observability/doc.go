// Package observability provides structured logging, Prometheus metrics
// and OpenTelemetry tracing for the API.
//
// Subpackages:
//   - logging: slog construction, request-scoped loggers and the logger middleware
//   - metrics: HTTP, publishing and database metrics on the default registry
//   - tracing: server spans and the shared tracer
//
// Example usage:
//
//	import (
//	    "inkwell/internal/observability/logging"
//	    "inkwell/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//
//	    metrics.RecordPostCreated(true)
//	}
package observability
