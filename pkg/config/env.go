package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString returns the variable's value, or defaultValue when it is unset or empty.
func GetEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt parses the variable as a base-10 integer.
//
// Example:
//
//	limit := GetEnvInt("PAGINATION_MAX_LIMIT", 100)
func GetEnvInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, "integer", strconv.Atoi)
}

// GetEnvBool parses the variable with strconv.ParseBool ("1", "t", "true", "0", "f", "false", ...).
func GetEnvBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, "boolean", strconv.ParseBool)
}

// GetEnvDuration parses the variable with time.ParseDuration, e.g. "30s" or "1h30m".
//
// Example:
//
//	window := GetEnvDuration("RATELIMIT_IP_GUARD_WINDOW", time.Minute)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, "duration", time.ParseDuration)
}

// GetEnvFloat parses the variable as a float64.
func GetEnvFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, "float", func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// GetEnvStringList splits a comma-separated variable, trimming whitespace and
// dropping empty entries. If nothing is left, defaultValue is returned.
//
// Example:
//
//	// RATE_LIMIT_TRUSTED_PROXIES="10.0.0.0/8, 192.168.1.1"
//	proxies := GetEnvStringList("RATE_LIMIT_TRUSTED_PROXIES", nil)
func GetEnvStringList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// parseEnv returns defaultValue for an unset variable, and also for an
// unparsable one after logging a warning.
func parseEnv[T any](key string, defaultValue T, kind string, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	value, err := parse(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("invalid "+kind+" value for environment variable, using default",
			slog.String("key", key),
			slog.String("value", raw),
			slog.Any("default", defaultValue),
			slog.String("error", err.Error()))
		return defaultValue
	}
	return value
}
