package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/handler/http/requestid"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	logger := NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	logger = NewLogger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewTextLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	logger := NewTextLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestLogger_JSONStructure(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelInfo, true)

	logger.Info("rate limit exceeded", slog.String("event_type", "rate_limit_denied"), slog.Int("limit", 5))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rate limit exceeded", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "rate_limit_denied", entry["event_type"])
	assert.Equal(t, float64(5), entry["limit"])
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, slog.LevelInfo, true)

	ctx := requestid.WithRequestID(context.Background(), "req-123")
	WithRequestID(ctx, base).Info("handled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-123", entry["request_id"])
}

func TestWithRequestID_EmptyRequestID(t *testing.T) {
	base := slog.Default()
	assert.Same(t, base, WithRequestID(context.Background(), base))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, slog.LevelInfo, true)

	WithFields(base, map[string]any{"breaker": "database", "state": "open"}).Info("transition")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "database", entry["breaker"])
	assert.Equal(t, "open", entry["state"])
}

func TestFromContext(t *testing.T) {
	t.Run("logger in context", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, FromContext(ctx))
	})

	t.Run("no logger", func(t *testing.T) {
		assert.Same(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), loggerContextKey, "not a logger")
		assert.Same(t, slog.Default(), FromContext(ctx))
	})
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := newLogger(&buf, slog.LevelInfo, true)

	handler := requestid.Middleware(Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set(requestid.RequestIDHeader, "req-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-abc", entry["request_id"])
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func BenchmarkLogger_WithRequestID(b *testing.B) {
	logger := newLogger(&bytes.Buffer{}, slog.LevelInfo, true)
	ctx := requestid.WithRequestID(context.Background(), "benchmark-req-id")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		WithRequestID(ctx, logger).Info("message")
	}
}
