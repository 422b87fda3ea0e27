package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"inkwell/internal/resilience/circuitbreaker"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
		RetryCondition: IsRetryable,
	}
}

func TestWithBackoff_Success(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return nil // Success on first attempt
	}

	err := WithBackoff(context.Background(), fastConfig(), fn)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestWithBackoff_SuccessAfterRetry(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return &HTTPError{StatusCode: 500, Message: "Server Error"}
		}
		return nil // Success on 3rd attempt
	}

	err := WithBackoff(context.Background(), fastConfig(), fn)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithBackoff_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	testErr := &HTTPError{StatusCode: 500, Message: "Server Error"}
	fn := func() error {
		attempts++
		return testErr // Always fail
	}

	err := WithBackoff(context.Background(), fastConfig(), fn)

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("expected wrapped error to contain original error")
	}

	var exErr *ExhaustedError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if exErr.Attempts != 3 {
		t.Errorf("expected Attempts=3, got %d", exErr.Attempts)
	}
	if len(exErr.History) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(exErr.History))
	}
}

func TestWithBackoff_NonRetryableError(t *testing.T) {
	attempts := 0
	testErr := &HTTPError{StatusCode: 400, Message: "Bad Request"}
	fn := func() error {
		attempts++
		return testErr // Non-retryable error
	}

	err := WithBackoff(context.Background(), fastConfig(), fn)

	if attempts != 1 {
		t.Errorf("expected 1 attempt (non-retryable), got %d", attempts)
	}
	var exErr *ExhaustedError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	if exErr.Attempts != 1 {
		t.Errorf("expected Attempts=1, got %d", exErr.Attempts)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("expected wrapped error to contain original error")
	}
}

func TestWithBackoff_ContextCanceled(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 5
	cfg.BaseDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	fn := func() error {
		attempts++
		if attempts == 2 {
			cancel() // Cancel context after 2nd attempt
		}
		return &HTTPError{StatusCode: 500, Message: "Server Error"}
	}

	err := WithBackoff(ctx, cfg, fn)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Errorf("cancellation should not be reported as exhaustion")
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestConfig_Delay(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := cfg.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestConfig_DelayUncappedSaturates(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, BackoffFactor: 2}

	for _, attempt := range []int{40, 100, 5000} {
		got := cfg.Delay(attempt)
		if got != time.Duration(math.MaxInt64) {
			t.Errorf("Delay(%d) = %v, want saturated max duration", attempt, got)
		}
		if b := cfg.backoff(attempt, 0.5); b <= 0 {
			t.Errorf("backoff(%d) = %v, want positive", attempt, b)
		}
	}

	if got := cfg.Delay(3); got != 4*time.Second {
		t.Errorf("Delay(3) = %v, want 4s", got)
	}
}

func TestConfig_BackoffJitterBounds(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2, Jitter: true}

	if got := cfg.backoff(2, 0); got != 100*time.Millisecond {
		t.Errorf("expected lower bound 100ms, got %v", got)
	}
	if got := cfg.backoff(2, 0.999999); got > 200*time.Millisecond || got < 199*time.Millisecond {
		t.Errorf("expected upper bound near 200ms, got %v", got)
	}

	cfg.Jitter = false
	if got := cfg.backoff(2, 0); got != 200*time.Millisecond {
		t.Errorf("expected 200ms without jitter, got %v", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "nil error",
			err:       nil,
			retryable: false,
		},
		{
			name:      "context canceled",
			err:       context.Canceled,
			retryable: false,
		},
		{
			name:      "context deadline exceeded",
			err:       context.DeadlineExceeded,
			retryable: false,
		},
		{
			name:      "HTTP 500 error",
			err:       &HTTPError{StatusCode: 500, Message: "Internal Server Error"},
			retryable: true,
		},
		{
			name:      "HTTP 503 error",
			err:       &HTTPError{StatusCode: 503, Message: "Service Unavailable"},
			retryable: true,
		},
		{
			name:      "HTTP 429 error",
			err:       &HTTPError{StatusCode: 429, Message: "Too Many Requests"},
			retryable: true,
		},
		{
			name:      "HTTP 408 error",
			err:       &HTTPError{StatusCode: 408, Message: "Request Timeout"},
			retryable: true,
		},
		{
			name:      "HTTP 400 error",
			err:       &HTTPError{StatusCode: 400, Message: "Bad Request"},
			retryable: false,
		},
		{
			name:      "HTTP 404 error",
			err:       &HTTPError{StatusCode: 404, Message: "Not Found"},
			retryable: false,
		},
		{
			name:      "ECONNREFUSED",
			err:       syscall.ECONNREFUSED,
			retryable: true,
		},
		{
			name:      "ECONNRESET",
			err:       syscall.ECONNRESET,
			retryable: true,
		},
		{
			name:      "ETIMEDOUT",
			err:       syscall.ETIMEDOUT,
			retryable: true,
		},
		{
			name:      "ENETUNREACH",
			err:       syscall.ENETUNREACH,
			retryable: true,
		},
		{
			name:      "dial error",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			retryable: true,
		},
		{
			name:      "unexpected EOF",
			err:       io.ErrUnexpectedEOF,
			retryable: true,
		},
		{
			name:      "breaker call timeout",
			err:       &circuitbreaker.TimeoutError{Name: "database", Timeout: time.Second},
			retryable: true,
		},
		{
			name:      "circuit open",
			err:       &circuitbreaker.OpenError{Name: "database"},
			retryable: false,
		},
		{
			name:      "generic error",
			err:       errors.New("some error"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryable(tt.err)
			if result != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", result, tt.retryable)
			}
		})
	}
}

func TestIsNetworkError_IgnoresHTTPStatus(t *testing.T) {
	if IsNetworkError(&HTTPError{StatusCode: 503, Message: "Service Unavailable"}) {
		t.Error("AuthConfig predicate must not retry HTTP responses")
	}
	if IsNetworkError(&HTTPError{StatusCode: 401, Message: "Unauthorized"}) {
		t.Error("credential errors must never be retried")
	}
	if !IsNetworkError(fmt.Errorf("login: %w", syscall.ECONNRESET)) {
		t.Error("expected wrapped ECONNRESET to be retryable")
	}
}

func TestIsTransientDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"wrapped connection exception", fmt.Errorf("insert post: %w", &pgconn.PgError{Code: "08003"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("no rows"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransientDBError(tt.err); got != tt.retryable {
				t.Errorf("IsTransientDBError() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay != 1*time.Second {
		t.Errorf("expected BaseDelay=1s, got %v", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay=30s, got %v", cfg.MaxDelay)
	}
	if cfg.BackoffFactor != 2.0 {
		t.Errorf("expected BackoffFactor=2.0, got %f", cfg.BackoffFactor)
	}
	if !cfg.Jitter {
		t.Error("expected Jitter=true")
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		maxAttempts int
	}{
		{"db", DBConfig(), 3},
		{"external api", ExternalAPIConfig(), 4},
		{"auth", AuthConfig(), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.MaxAttempts != tt.maxAttempts {
				t.Errorf("expected MaxAttempts=%d, got %d", tt.maxAttempts, tt.cfg.MaxAttempts)
			}
			if tt.cfg.RetryCondition == nil {
				t.Error("expected a retry condition")
			}
		})
	}

	if ExternalAPIConfig().BaseDelay >= DefaultConfig().BaseDelay {
		t.Error("expected external API preset to use a shorter base delay")
	}
	if !ExternalAPIConfig().RetryCondition(&HTTPError{StatusCode: 502}) {
		t.Error("expected external API preset to retry 502")
	}
	if AuthConfig().RetryCondition(&HTTPError{StatusCode: 502}) {
		t.Error("expected auth preset to retry network errors only")
	}
}

func TestHTTPError_Error(t *testing.T) {
	err := &HTTPError{StatusCode: 500, Message: "Internal Server Error"}
	expected := "HTTP 500: Internal Server Error"

	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestExhaustedError_Error(t *testing.T) {
	err := &ExhaustedError{Name: "database", Attempts: 3, Err: errors.New("boom")}
	expected := "database: retry exhausted after 3 attempts: boom"

	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}
