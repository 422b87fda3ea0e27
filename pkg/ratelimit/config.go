package ratelimit

import (
	"fmt"
	"time"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config contains the configuration for rate limiting.
//
// This struct holds all settings needed to build the store, the client
// limiter, the IP abuse guard and the sweeper.
type Config struct {
	// Feature flag to enable/disable rate limiting
	Enabled bool

	// FailOpen allows requests through when the store fails.
	// A stricter deployment may set this to false to deny instead.
	FailOpen bool

	// Backend selects the store: "memory" or "redis"
	Backend string

	// RedisURL is required when Backend is "redis"
	RedisURL string

	// How often the sweeper removes expired windows and blocks
	SweepInterval time.Duration

	// Named client policies
	Policies PolicyTable

	// IP abuse guard settings
	IPGuard IPGuardSettings

	// Store guard settings (breaker in front of the backend)
	StoreGuardFailures uint32
	StoreGuardTimeout  time.Duration
}

// IPGuardSettings configures the IP abuse guard.
type IPGuardSettings struct {
	Enabled bool

	// Threshold is the number of requests allowed per Window before blocking
	Threshold int

	// Window is the counting window
	Window time.Duration

	// BlockDuration is how long a block lasts; it is never extended
	BlockDuration time.Duration
}

// Validate checks if the Config is valid.
//
// Returns an error if any configuration values are invalid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("RedisURL is required for the redis backend")
		}
	default:
		return fmt.Errorf("Backend must be %q or %q, got %q", BackendMemory, BackendRedis, c.Backend)
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("SweepInterval must be positive, got %s", c.SweepInterval)
	}

	if err := c.Policies.Validate(); err != nil {
		return fmt.Errorf("Policies: %w", err)
	}

	if c.IPGuard.Threshold < 0 {
		return fmt.Errorf("IPGuard.Threshold must be non-negative, got %d", c.IPGuard.Threshold)
	}
	if c.IPGuard.Window < 0 {
		return fmt.Errorf("IPGuard.Window must be non-negative, got %s", c.IPGuard.Window)
	}
	if c.IPGuard.BlockDuration < 0 {
		return fmt.Errorf("IPGuard.BlockDuration must be non-negative, got %s", c.IPGuard.BlockDuration)
	}

	if c.StoreGuardTimeout < 0 {
		return fmt.Errorf("StoreGuardTimeout must be non-negative, got %s", c.StoreGuardTimeout)
	}

	return nil
}

// ApplyDefaults sets safe default values for any missing or zero configuration values.
//
// Boolean flags are left alone; callers that build Config by hand should use
// DefaultConfig as a starting point.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 1 * time.Minute
	}
	if c.Policies == nil {
		c.Policies = DefaultPolicies()
	}

	if c.IPGuard.Threshold == 0 {
		c.IPGuard.Threshold = 300 // 300 requests per minute from one address
	}
	if c.IPGuard.Window == 0 {
		c.IPGuard.Window = 1 * time.Minute
	}
	if c.IPGuard.BlockDuration == 0 {
		c.IPGuard.BlockDuration = 15 * time.Minute
	}

	if c.StoreGuardFailures == 0 {
		c.StoreGuardFailures = 5
	}
	if c.StoreGuardTimeout == 0 {
		c.StoreGuardTimeout = 10 * time.Second
	}
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	config := &Config{
		Enabled:  true,
		FailOpen: true,
		IPGuard:  IPGuardSettings{Enabled: true},
	}
	config.ApplyDefaults()
	return config
}
