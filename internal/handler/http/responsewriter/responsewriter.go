// Package responsewriter records what a handler sent: status, body size and
// any Retry-After hint from the rate limiter or breaker responses.
//
// The logging, metrics, tracing and recovery middleware all call Wrap; the
// first call wraps and later calls reuse the same recorder.
package responsewriter

import (
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter and records the response line.
type ResponseWriter struct {
	http.ResponseWriter
	status     int
	bytes      int
	wrote      bool
	retryAfter string
}

// Wrap returns w itself when it is already a *ResponseWriter.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader forwards the first status code and ignores the rest.
func (w *ResponseWriter) WriteHeader(statusCode int) {
	if w.wrote {
		return
	}
	w.status = statusCode
	w.wrote = true
	w.retryAfter = w.Header().Get("Retry-After")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// StatusCode is 200 until a header is written.
func (w *ResponseWriter) StatusCode() int { return w.status }

// BytesWritten is the body size sent so far.
func (w *ResponseWriter) BytesWritten() int { return w.bytes }

// Written reports whether the status line has been sent.
func (w *ResponseWriter) Written() bool { return w.wrote }

// RetryAfter is the Retry-After header as it was when the status line was sent.
func (w *ResponseWriter) RetryAfter() string { return w.retryAfter }

// Unwrap supports http.ResponseController.
func (w *ResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Flush sends buffered data when the underlying writer supports it.
func (w *ResponseWriter) Flush() {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
