package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inkwell/pkg/clock"
)

// incrementScript increments a fixed-window counter and starts its expiry on
// first use. Returns {count, pttl_ms}.
var incrementScript = redis.NewScript(`
local c = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if c == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// acquireScript increments the counter only while it is below ARGV[2].
// Returns {count, pttl_ms, admitted}.
var acquireScript = redis.NewScript(`
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
local ttl = redis.call('PTTL', KEYS[1])
if c > 0 and ttl < 0 then
  redis.call('DEL', KEYS[1])
  c = 0
end
if c >= tonumber(ARGV[2]) then
  return {c, ttl, 0}
end
c = redis.call('INCR', KEYS[1])
if c == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl, 1}
`)

// RedisStore is a Store backed by Redis, suitable for deployments running more
// than one API instance.
//
// Each window is a single integer key with a millisecond expiry; Redis expires
// windows on its own, so Sweep has nothing to do. Read-modify-write operations
// run as Lua scripts and are therefore atomic per key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	// Prefix is prepended to every key.
	// Default: "ratelimit:"
	Prefix string

	// Clock converts TTLs into absolute reset times.
	// Default: SystemClock
	Clock clock.Clock
}

// NewRedisStore creates a Redis-backed store using client.
func NewRedisStore(client redis.UniversalClient, config RedisStoreConfig) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = "ratelimit:"
	}
	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		clock:  clock.OrSystem(config.Clock),
	}
}

// NewRedisClient parses url and returns a pinged client.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Get returns the live window for key, or a zero-count window.
func (s *RedisStore) Get(ctx context.Context, key string) (RateWindow, error) {
	k := s.prefix + key

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return RateWindow{}, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}

	count, err := getCmd.Int()
	if errors.Is(err, redis.Nil) {
		return RateWindow{}, nil
	}
	if err != nil {
		return RateWindow{}, fmt.Errorf("decode window %s: %w", key, err)
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return RateWindow{}, nil
	}
	return RateWindow{Count: count, ResetAt: s.clock.Now().Add(ttl)}, nil
}

// Increment records one request for key.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (RateWindow, error) {
	vals, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateWindow{}, fmt.Errorf("%w: increment %s: %v", ErrStoreUnavailable, key, err)
	}
	if len(vals) != 2 {
		return RateWindow{}, fmt.Errorf("increment %s: unexpected script reply %v", key, vals)
	}
	return s.window(vals[0], vals[1]), nil
}

// Acquire increments the window for key only if its live count is below max.
func (s *RedisStore) Acquire(ctx context.Context, key string, window time.Duration, max int) (RateWindow, bool, error) {
	vals, err := acquireScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return RateWindow{}, false, fmt.Errorf("%w: acquire %s: %v", ErrStoreUnavailable, key, err)
	}
	if len(vals) != 3 {
		return RateWindow{}, false, fmt.Errorf("acquire %s: unexpected script reply %v", key, vals)
	}
	return s.window(vals[0], vals[1]), vals[2] == 1, nil
}

func (s *RedisStore) window(count, ttlMillis int64) RateWindow {
	now := s.clock.Now()
	if ttlMillis < 0 {
		return RateWindow{Count: int(count), ResetAt: now}
	}
	return RateWindow{Count: int(count), ResetAt: now.Add(time.Duration(ttlMillis) * time.Millisecond)}
}

// Delete removes the window for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires windows itself.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// KeyCount returns the number of window keys under the store's prefix.
func (s *RedisStore) KeyCount(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("%w: scan: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}
