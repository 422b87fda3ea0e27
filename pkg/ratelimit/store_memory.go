package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"inkwell/pkg/clock"
)

// InMemoryStore is a thread-safe in-memory implementation of Store.
//
// Windows are spread over a fixed number of shards, each guarded by its own
// mutex, so that concurrent requests for different keys rarely contend while
// every read-modify-write on a single key is serialized.
//
// The fixed-window counter is an approximation: a burst straddling a window
// boundary can briefly admit up to 2x the policy maximum. In exchange each key
// costs O(1) memory.
type InMemoryStore struct {
	shards []*windowShard
	clock  clock.Clock
}

type windowShard struct {
	mu      sync.Mutex
	windows map[string]*RateWindow
}

// InMemoryStoreConfig holds configuration for InMemoryStore.
type InMemoryStoreConfig struct {
	// Shards is the number of independently locked partitions.
	// Default: 32
	Shards int

	// Clock provides time operations for testing.
	// Default: SystemClock
	Clock clock.Clock
}

// DefaultInMemoryStoreConfig returns the default configuration.
func DefaultInMemoryStoreConfig() InMemoryStoreConfig {
	return InMemoryStoreConfig{
		Shards: 32,
		Clock:  &clock.SystemClock{},
	}
}

// NewInMemoryStore creates a new in-memory store with the given configuration.
func NewInMemoryStore(config InMemoryStoreConfig) *InMemoryStore {
	if config.Shards <= 0 {
		config.Shards = 32
	}

	shards := make([]*windowShard, config.Shards)
	for i := range shards {
		shards[i] = &windowShard{windows: make(map[string]*RateWindow)}
	}

	return &InMemoryStore{
		shards: shards,
		clock:  clock.OrSystem(config.Clock),
	}
}

func (s *InMemoryStore) shardFor(key string) *windowShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Get returns the live window for key, or a zero-count window.
func (s *InMemoryStore) Get(ctx context.Context, key string) (RateWindow, error) {
	now := s.clock.Now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || w.Expired(now) {
		return RateWindow{}, nil
	}
	return *w, nil
}

// Increment records one request for key.
func (s *InMemoryStore) Increment(ctx context.Context, key string, window time.Duration) (RateWindow, error) {
	now := s.clock.Now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w := sh.live(key, now, window)
	w.Count++
	return *w, nil
}

// Acquire increments the window for key only if its live count is below max.
//
// The check and the increment happen under one shard lock, which prevents two
// concurrent requests from both observing count=max-1 and both being admitted.
func (s *InMemoryStore) Acquire(ctx context.Context, key string, window time.Duration, max int) (RateWindow, bool, error) {
	now := s.clock.Now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w := sh.live(key, now, window)
	if w.Count >= max {
		return *w, false, nil
	}
	w.Count++
	return *w, true, nil
}

// live returns the live window for key, replacing an absent or expired one
// with a fresh zero-count window. Must be called with the shard lock held.
func (sh *windowShard) live(key string, now time.Time, window time.Duration) *RateWindow {
	w, ok := sh.windows[key]
	if !ok || w.Expired(now) {
		w = &RateWindow{ResetAt: now.Add(window)}
		sh.windows[key] = w
	}
	return w
}

// Delete removes the window for key.
func (s *InMemoryStore) Delete(ctx context.Context, key string) error {
	sh := s.shardFor(key)

	sh.mu.Lock()
	delete(sh.windows, key)
	sh.mu.Unlock()
	return nil
}

// Sweep removes every expired window.
func (s *InMemoryStore) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	removed := 0

	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		sh.mu.Lock()
		for key, w := range sh.windows {
			if w.Expired(now) {
				delete(sh.windows, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed, nil
}

// KeyCount returns the number of keys currently held, live or not yet swept.
func (s *InMemoryStore) KeyCount(ctx context.Context) (int, error) {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.windows)
		sh.mu.Unlock()
	}
	return total, nil
}
