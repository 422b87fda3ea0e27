package metrics

import (
	"time"
)

// RecordPostCreated records the result of a post creation.
func RecordPostCreated(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	PostsCreatedTotal.WithLabelValues(status).Inc()
}

// RecordThrottled records a request rejected by the rate limit middleware.
// Reason is "rate_limited" or "ip_blocked".
func RecordThrottled(reason, path string) {
	ThrottledRequestsTotal.WithLabelValues(reason, path).Inc()
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_posts", "insert_post").
func RecordDBQuery(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DBQueryDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
