package circuitbreaker

import (
	"log/slog"
	"sort"
	"sync"
)

// Well-known dependency names.
const (
	NameDatabase    = "database"
	NameExternalAPI = "external-api"
	NameAuth        = "auth"
)

// Registry holds one breaker per dependency name. It is safe for concurrent use.
//
// Breakers are created lazily on first lookup. The first config supplied for a
// name wins: later Get calls with a different config return the existing
// breaker unchanged and log the mismatch at debug level.
type Registry struct {
	defaults Config
	logger   *slog.Logger

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates an empty registry. Zero fields of configs passed to Get
// are filled from defaults.
func NewRegistry(defaults Config) *Registry {
	logger := defaults.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defaults: defaults,
		logger:   logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for name, creating it with cfg if absent.
func (r *Registry) Get(name string, cfg Config) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		r.logMismatch(cb, cfg)
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		r.logMismatch(cb, cfg)
		return cb
	}

	cb = New(name, cfg.withDefaults(r.defaults))
	r.breakers[name] = cb
	r.logger.Debug("circuit breaker created",
		slog.String("circuit", name),
		slog.Int("failure_threshold", cb.cfg.FailureThreshold),
		slog.Duration("monitoring_period", cb.cfg.MonitoringPeriod),
		slog.Duration("recovery_timeout", cb.cfg.RecoveryTimeout))
	return cb
}

// logMismatch logs a config that differs from the existing breaker's. A zero
// config asks for whatever the breaker already has and is never a mismatch.
func (r *Registry) logMismatch(cb *CircuitBreaker, cfg Config) {
	if cfg.isZero() || cb.cfg.sameThresholds(cfg.withDefaults(r.defaults)) {
		return
	}
	r.logger.Debug("circuit breaker config ignored: breaker already exists",
		slog.String("circuit", cb.name))
}

// Breaker returns the breaker for name, creating it with the registry defaults.
// An existing breaker is returned with its own config.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	return r.Get(name, Config{})
}

// Lookup returns the breaker for name without creating it.
func (r *Registry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Reset resets the named breaker and reports whether it exists.
func (r *Registry) Reset(name string) bool {
	cb, ok := r.Lookup(name)
	if ok {
		cb.Reset()
	}
	return ok
}

// ResetAll resets every breaker.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.RUnlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}

// Names returns the registered breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a snapshot of every breaker keyed by name.
func (r *Registry) Status() map[string]Status {
	r.mu.RLock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for name, cb := range r.breakers {
		breakers[name] = cb
	}
	r.mu.RUnlock()

	out := make(map[string]Status, len(breakers))
	for name, cb := range breakers {
		out[name] = cb.Status()
	}
	return out
}
