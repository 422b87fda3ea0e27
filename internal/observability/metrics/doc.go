// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the application's HTTP, database, and publishing
// metrics. Metrics are registered with the Prometheus default registry and
// exposed via the /metrics endpoint together with the rate limiter, circuit
// breaker, and retry collectors.
//
// Example usage:
//
//	start := time.Now()
//	post, err := repo.Get(ctx, id)
//	metrics.RecordDBQuery("select_post", time.Since(start), err)
package metrics
