package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"inkwell/pkg/ratelimit"
)

// LoadRateLimitConfig loads rate limiting configuration from environment variables.
//
// This function reads all rate limiting configuration from environment variables
// and returns a validated Config. Invalid numeric or duration values log a
// warning and fall back to safe defaults. An unreadable or invalid policy file
// is an error, since it was explicitly requested.
//
// Environment variables:
//   - RATELIMIT_ENABLED: Enable/disable rate limiting (default: true)
//   - RATELIMIT_FAIL_OPEN: Allow requests when the store fails (default: true)
//   - RATELIMIT_BACKEND: "memory" or "redis" (default: memory)
//   - RATELIMIT_REDIS_URL: Redis URL, required for the redis backend
//   - RATELIMIT_SWEEP_INTERVAL: Sweep interval (default: 1m)
//   - RATELIMIT_POLICY_FILE: YAML file with policy overrides (optional)
//   - RATELIMIT_IP_GUARD_ENABLED: Enable the IP abuse guard (default: true)
//   - RATELIMIT_IP_GUARD_THRESHOLD: Requests per window before blocking (default: 300)
//   - RATELIMIT_IP_GUARD_WINDOW: Counting window (default: 1m)
//   - RATELIMIT_IP_GUARD_BLOCK_DURATION: Block duration (default: 15m)
//   - RATELIMIT_STORE_CB_FAILURES: Consecutive store failures before failing fast (default: 5)
//   - RATELIMIT_STORE_CB_TIMEOUT: Store breaker open timeout (default: 10s)
//
// Example:
//
//	config, err := LoadRateLimitConfig()
//	if err != nil {
//	    return fmt.Errorf("failed to load rate limit config: %w", err)
//	}
func LoadRateLimitConfig() (*ratelimit.Config, error) {
	defaults := ratelimit.DefaultConfig()
	config := &ratelimit.Config{}

	// Feature flags
	config.Enabled = GetEnvBool("RATELIMIT_ENABLED", defaults.Enabled)
	config.FailOpen = GetEnvBool("RATELIMIT_FAIL_OPEN", defaults.FailOpen)

	// Backend
	config.Backend = GetEnvString("RATELIMIT_BACKEND", defaults.Backend)
	if config.Backend != ratelimit.BackendMemory && config.Backend != ratelimit.BackendRedis {
		slog.Warn("invalid RATELIMIT_BACKEND, using default",
			slog.String("value", config.Backend),
			slog.String("default", defaults.Backend))
		config.Backend = defaults.Backend
	}
	config.RedisURL = GetEnvString("RATELIMIT_REDIS_URL", "")

	config.SweepInterval = positiveDuration("RATELIMIT_SWEEP_INTERVAL", defaults.SweepInterval)

	// Policies
	config.Policies = defaults.Policies
	if path := GetEnvString("RATELIMIT_POLICY_FILE", ""); path != "" {
		policies, err := ratelimit.LoadPolicyFile(path)
		if err != nil {
			return nil, fmt.Errorf("load policy file: %w", err)
		}
		config.Policies = policies
	}

	// IP abuse guard
	config.IPGuard.Enabled = GetEnvBool("RATELIMIT_IP_GUARD_ENABLED", defaults.IPGuard.Enabled)
	config.IPGuard.Threshold = positiveInt("RATELIMIT_IP_GUARD_THRESHOLD", defaults.IPGuard.Threshold)
	config.IPGuard.Window = positiveDuration("RATELIMIT_IP_GUARD_WINDOW", defaults.IPGuard.Window)
	config.IPGuard.BlockDuration = positiveDuration("RATELIMIT_IP_GUARD_BLOCK_DURATION", defaults.IPGuard.BlockDuration)

	// Store guard
	// #nosec G115 -- positiveInt never returns a negative value
	config.StoreGuardFailures = uint32(positiveInt("RATELIMIT_STORE_CB_FAILURES", int(defaults.StoreGuardFailures)))
	config.StoreGuardTimeout = positiveDuration("RATELIMIT_STORE_CB_TIMEOUT", defaults.StoreGuardTimeout)

	// Validate the entire configuration
	if err := config.Validate(); err != nil {
		if config.Backend == ratelimit.BackendRedis && config.RedisURL == "" {
			slog.Warn("RATELIMIT_REDIS_URL not set, falling back to memory backend")
			config.Backend = ratelimit.BackendMemory
		}
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rate limit config: %w", err)
		}
	}

	return config, nil
}

// positiveInt reads an integer that must be greater than zero.
func positiveInt(key string, defaultValue int) int {
	value := GetEnvInt(key, defaultValue)
	if value <= 0 {
		slog.Warn("invalid "+key+", using default",
			slog.Int("value", value),
			slog.Int("default", defaultValue))
		return defaultValue
	}
	return value
}

// positiveDuration reads a duration that must be greater than zero.
func positiveDuration(key string, defaultValue time.Duration) time.Duration {
	value := GetEnvDuration(key, defaultValue)
	if value <= 0 {
		slog.Warn("invalid "+key+", using default",
			slog.String("value", value.String()),
			slog.String("default", defaultValue.String()))
		return defaultValue
	}
	return value
}

// TrustedProxies holds the reverse proxies whose forwarding headers are
// believed when resolving a client IP.
type TrustedProxies struct {
	Enabled  bool
	Prefixes []netip.Prefix
}

// LoadTrustedProxies reads RATE_LIMIT_TRUST_PROXY (default: false) and
// RATE_LIMIT_TRUSTED_PROXIES (comma-separated IPs or CIDR ranges).
// Enabling trust without a valid proxy list is an error so that a typo
// cannot silently make forwarded headers trusted or ignored.
func LoadTrustedProxies() (TrustedProxies, error) {
	tp := TrustedProxies{Enabled: GetEnvBool("RATE_LIMIT_TRUST_PROXY", false)}
	if !tp.Enabled {
		return tp, nil
	}

	entries := GetEnvStringList("RATE_LIMIT_TRUSTED_PROXIES", nil)
	if len(entries) == 0 {
		return TrustedProxies{}, fmt.Errorf("RATE_LIMIT_TRUST_PROXY is enabled but RATE_LIMIT_TRUSTED_PROXIES is empty")
	}

	prefixes, err := ParseTrustedProxies(entries)
	if err != nil {
		return TrustedProxies{}, err
	}
	tp.Prefixes = prefixes
	return tp, nil
}

// ParseTrustedProxies parses IPs and CIDR ranges. A bare IP becomes a /32
// (IPv4) or /128 (IPv6) prefix.
//
// Example:
//
//	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if entry == "" {
			return nil, fmt.Errorf("trusted proxy entry cannot be empty")
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid IP or CIDR %q: %w", entry, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
