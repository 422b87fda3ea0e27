// Package http provides HTTP handlers and middleware for the web application.
// It includes health check endpoints, metrics collection, and the middleware
// chain shared by every route.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"inkwell/internal/handler/http/respond"
	"inkwell/internal/resilience/circuitbreaker"
	"inkwell/pkg/ratelimit"
)

// Health check statuses.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy", "degraded" or "unhealthy"
	Timestamp string                 `json:"timestamp"` // ISO 8601 format
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// KeyCounter is implemented by rate limit stores and the IP guard.
type KeyCounter interface {
	KeyCount(ctx context.Context) (int, error)
}

// HealthHandler handles health check endpoint requests.
//
// The database check decides between 200 and 503. Open circuit breakers and a
// tripped rate limit store guard only mark the response "degraded": the
// process still serves traffic, either failing fast or failing open.
type HealthHandler struct {
	DB      *sql.DB
	Version string

	// Breakers is optional.
	Breakers *circuitbreaker.Registry

	// Rate limiting components (optional)
	RateLimitStore KeyCounter
	StoreGuard     *ratelimit.GuardedStore
	IPGuard        KeyCounter
	FailOpen       bool
}

// ServeHTTP performs health checks and returns the application health status.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)

	// データベース接続チェック
	if h.DB != nil {
		checks["database"] = h.checkDatabase(ctx)
	} else {
		checks["database"] = CheckStatus{Status: statusUnhealthy, Message: "not configured"}
	}

	if h.Breakers != nil {
		checks["circuit_breakers"] = h.checkBreakers()
	}

	if h.RateLimitStore != nil {
		checks["rate_limiter"] = h.checkRateLimiter(ctx)
	}

	status := overallStatus(checks)
	code := http.StatusOK
	if status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

// overallStatus is "unhealthy" when the database is down and "degraded" when
// a breaker or the rate limiter is not in its normal state. Pool pressure on
// the database check stays informational.
func overallStatus(checks map[string]CheckStatus) string {
	if checks["database"].Status == statusUnhealthy {
		return statusUnhealthy
	}
	for name, c := range checks {
		if name != "database" && c.Status != statusHealthy {
			return statusDegraded
		}
	}
	return statusHealthy
}

// checkDatabase checks database connectivity and returns connection pool statistics.
func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if err := h.DB.PingContext(ctx); err != nil {
		return CheckStatus{
			Status:  statusUnhealthy,
			Message: respond.SanitizeError(err),
		}
	}

	stats := h.DB.Stats()
	details := map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}

	// MaxOpenConnections が 0 (無制限) の場合はゼロ除算を避ける
	if stats.MaxOpenConnections == 0 {
		return CheckStatus{
			Status:  statusDegraded,
			Message: "connection pool max connections not configured",
			Details: details,
		}
	}

	utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	details["utilization_percent"] = utilization
	if utilization >= 80.0 {
		return CheckStatus{
			Status:  statusDegraded,
			Message: "connection pool utilization above 80%",
			Details: details,
		}
	}

	return CheckStatus{Status: statusHealthy, Details: details}
}

// checkBreakers reports every breaker's state. Any breaker that is not
// closed degrades the check.
func (h *HealthHandler) checkBreakers() CheckStatus {
	details := make(map[string]any)
	status := statusHealthy
	for name, s := range h.Breakers.Status() {
		details[name] = s.State
		if s.State != circuitbreaker.StateClosed.String() {
			status = statusDegraded
		}
	}
	return CheckStatus{Status: status, Details: details}
}

// checkRateLimiter reports tracked key counts and the store guard state.
// A tripped store guard degrades the check; the limiter keeps answering
// according to its fail-open setting.
func (h *HealthHandler) checkRateLimiter(ctx context.Context) CheckStatus {
	details := map[string]any{"fail_open": h.FailOpen}
	status := statusHealthy

	if n, err := h.RateLimitStore.KeyCount(ctx); err == nil {
		details["active_keys"] = n
	} else {
		details["active_keys_error"] = respond.SanitizeError(err)
		status = statusDegraded
	}

	if h.IPGuard != nil {
		if n, err := h.IPGuard.KeyCount(ctx); err == nil {
			details["blocked_ips"] = n
		}
	}

	if h.StoreGuard != nil {
		state := h.StoreGuard.State().String()
		details["store_guard"] = state
		if state != "closed" {
			status = statusDegraded
		}
	}

	return CheckStatus{Status: status, Details: details}
}

// BreakersHandler serves a snapshot of every registered circuit breaker.
type BreakersHandler struct {
	Registry *circuitbreaker.Registry
}

// BreakersResponse is the body of GET /health/breakers.
type BreakersResponse struct {
	Timestamp string                           `json:"timestamp"`
	Breakers  map[string]circuitbreaker.Status `json:"breakers"`
}

// ServeHTTP writes the registry snapshot.
func (h *BreakersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		respond.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	breakers := map[string]circuitbreaker.Status{}
	if h.Registry != nil {
		breakers = h.Registry.Status()
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, http.StatusOK, BreakersResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Breakers:  breakers,
	})
}

// ReadyHandler handles Kubernetes readiness check requests.
type ReadyHandler struct {
	DB *sql.DB
}

// ServeHTTP returns 200 OK if the database answers a ping, 503 otherwise.
func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB == nil {
		http.Error(w, "database not configured", http.StatusServiceUnavailable)
		return
	}

	if err := h.DB.PingContext(ctx); err != nil {
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}

	writeText(w, "ready")
}

// LiveHandler handles Kubernetes liveness check requests.
type LiveHandler struct{}

// ServeHTTP always returns 200 OK while the process can respond.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeText(w, "alive")
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Default().Warn("failed to write health response", slog.Any("error", err))
	}
}
