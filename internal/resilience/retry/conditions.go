package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/internal/resilience/circuitbreaker"
)

// IsRetryable determines if an error is worth retrying: network failures,
// breaker call timeouts and retryable HTTP responses.
func IsRetryable(err error) bool {
	return IsRetryableHTTP(err)
}

// IsNetworkError reports connection-level failures: refused or reset
// connections, unreachable networks, network timeouts and broken streams.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, circuitbreaker.ErrOperationTimeout) {
		return true
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}

// IsRetryableHTTP reports network failures plus HTTP 5xx, 408 and 429 responses.
func IsRetryableHTTP(err error) bool {
	if IsNetworkError(err) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		// 5xx server errors are retryable
		if httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
			return true
		}
		// 429 Too Many Requests is retryable
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		// 408 Request Timeout is retryable
		if httpErr.StatusCode == http.StatusRequestTimeout {
			return true
		}
	}

	return false
}

// transientSQLStates are Postgres SQLSTATE codes worth retrying.
var transientSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"55P03": true, // lock_not_available
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// IsTransientDBError reports connection failures and transient Postgres
// conditions (serialization failures, deadlocks, connection exhaustion).
// Constraint violations and syntax errors are never retried.
func IsTransientDBError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return true
		}
		return transientSQLStates[pgErr.Code]
	}

	// Failed before any bytes reached the server
	if pgconn.SafeToRetry(err) {
		return true
	}

	return IsNetworkError(err)
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
