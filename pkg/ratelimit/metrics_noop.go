package ratelimit

import "time"

// NoOpMetrics implements the Metrics interface with no-op implementations.
//
// This implementation is useful for:
// - Testing environments where metrics are not needed
// - Disabling metrics collection (e.g., development mode)
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new NoOpMetrics instance.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

// RecordAllowed is a no-op implementation.
func (m *NoOpMetrics) RecordAllowed(limiterType, policy string) {}

// RecordDenied is a no-op implementation.
func (m *NoOpMetrics) RecordDenied(limiterType, policy string) {}

// RecordBlocked is a no-op implementation.
func (m *NoOpMetrics) RecordBlocked(reason string) {}

// RecordStoreError is a no-op implementation.
func (m *NoOpMetrics) RecordStoreError(limiterType string, failOpen bool) {}

// RecordCheckDuration is a no-op implementation.
func (m *NoOpMetrics) RecordCheckDuration(limiterType string, duration time.Duration) {}

// RecordSweep is a no-op implementation.
func (m *NoOpMetrics) RecordSweep(target string, removed int) {}

// SetActiveKeys is a no-op implementation.
func (m *NoOpMetrics) SetActiveKeys(target string, count int) {}

var (
	_ Metrics = (*NoOpMetrics)(nil)
	_ Metrics = (*PrometheusMetrics)(nil)
)
