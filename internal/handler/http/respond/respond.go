// Package respond provides utilities for sending HTTP responses in JSON format.
// It includes error handling with sanitization to prevent leaking sensitive information,
// and maps resilience errors (rate limits, open circuits) to their HTTP status codes.
package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/domain/entity"
	"inkwell/internal/resilience/circuitbreaker"
	"inkwell/internal/resilience/retry"
	"inkwell/pkg/ratelimit"
)

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Log the error but cannot send error response as headers already sent
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes a JSON error response with the given status code and error message.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, map[string]string{"error": err.Error()})
}

// ErrorBody is the JSON body for throttling and availability errors.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

// safeFragments mark messages that may be shown to users as-is.
var safeFragments = []string{
	"required",
	"invalid",
	"not found",
	"already exists",
	"must be",
	"cannot be",
	"too long",
	"too short",
}

// SafeError sanitizes error messages before returning them to users.
// Internal errors (e.g., database errors) are returned as "internal server error",
// with details logged for debugging. Safe errors (validation errors) are returned as-is.
// An *AppError always returns its user message.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			slog.Default().Error("application error",
				slog.String("status", http.StatusText(appErr.Code)),
				slog.Int("code", appErr.Code),
				slog.String("user_message", appErr.UserMsg),
				slog.String("error", SanitizeError(appErr.Err)))
		}
		JSON(w, appErr.Code, map[string]string{"error": appErr.UserMsg})
		return
	}

	msg := err.Error()
	isSafe := false
	lowerMsg := strings.ToLower(msg)
	for _, safe := range safeFragments {
		if strings.Contains(lowerMsg, safe) {
			isSafe = true
			break
		}
	}

	// 500エラーは常に内部エラーとして扱う
	if code >= 500 {
		isSafe = false
	}

	if isSafe {
		JSON(w, code, map[string]string{"error": msg})
		return
	}

	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, map[string]string{"error": "internal server error"})
}

// FromError maps err to an HTTP response:
//   - rate limit exceeded or IP blocked: 429 with Retry-After
//   - circuit open: 503 with Retry-After
//   - retry exhausted: the mapping of the last attempt's error
//   - breaker call timeout or deadline exceeded: 504
//   - entity.ErrNotFound: 404, validation errors: 400
//
// Anything else goes through SafeError as a 500.
func FromError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var exErr *retry.ExhaustedError
	if errors.As(err, &exErr) && exErr.Err != nil {
		FromError(w, exErr.Err)
		return
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		retryAfter := atLeastOneSecond(exceeded.RetryAfterSeconds())
		setRetryAfter(w, retryAfter)
		JSON(w, http.StatusTooManyRequests, ErrorBody{
			Error:      "rate_limit_exceeded",
			Message:    fmt.Sprintf("Too many requests. Please try again in %d seconds.", retryAfter),
			RetryAfter: retryAfter,
		})
		return
	}

	var blocked *ratelimit.BlockedError
	if errors.As(err, &blocked) {
		retryAfter := atLeastOneSecond(blocked.RetryAfterSeconds())
		setRetryAfter(w, retryAfter)
		JSON(w, http.StatusTooManyRequests, ErrorBody{
			Error:      "ip_blocked",
			Message:    fmt.Sprintf("Too many requests from this address. Please try again in %d seconds.", retryAfter),
			RetryAfter: retryAfter,
		})
		return
	}

	var openErr *circuitbreaker.OpenError
	if errors.As(err, &openErr) {
		retryAfter := atLeastOneSecond(durationSeconds(openErr.RetryAfter(time.Now())))
		setRetryAfter(w, retryAfter)
		JSON(w, http.StatusServiceUnavailable, ErrorBody{
			Error:      "service_unavailable",
			Message:    "The service is temporarily unavailable. Please try again later.",
			RetryAfter: retryAfter,
		})
		return
	}

	switch {
	case circuitbreaker.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		JSON(w, http.StatusGatewayTimeout, map[string]string{"error": "request timeout"})
	case errors.Is(err, entity.ErrNotFound):
		JSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case isValidation(err):
		SafeError(w, http.StatusBadRequest, err)
	default:
		SafeError(w, http.StatusInternalServerError, err)
	}
}

func isValidation(err error) bool {
	return errors.Is(err, entity.ErrInvalid)
}

func setRetryAfter(w http.ResponseWriter, seconds int64) {
	w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
}

func durationSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// atLeastOneSecond keeps Retry-After meaningful when a window is about to reset.
func atLeastOneSecond(s int64) int64 {
	if s < 1 {
		return 1
	}
	return s
}

// AppError is an error type that carries a user-facing message.
type AppError struct {
	UserMsg string // Message to display to users
	Err     error  // Internal error (logged for debugging)
	Code    int    // HTTP status code
}

// Error returns the error message, implementing the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMsg
}

// Unwrap returns the underlying error, implementing the errors.Unwrap interface.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given parameters.
func NewAppError(code int, userMsg string, err error) *AppError {
	return &AppError{Code: code, UserMsg: userMsg, Err: err}
}
