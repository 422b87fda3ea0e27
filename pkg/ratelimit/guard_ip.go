package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"inkwell/pkg/clock"
)

// BlockReasonThreshold is recorded when an address exceeds the abuse threshold.
const BlockReasonThreshold = "request threshold exceeded"

// BlockRecord is an active hard block on an address.
type BlockRecord struct {
	IP        string
	Reason    string
	BlockedAt time.Time
	UnblockAt time.Time
}

// Active reports whether the block still applies at now.
func (b BlockRecord) Active(now time.Time) bool {
	return now.Before(b.UnblockAt)
}

// GuardDecision is the result of an IP abuse check.
type GuardDecision struct {
	IP         string
	Allowed    bool
	Blocked    bool
	Reason     string
	RetryAfter time.Duration
	UnblockAt  time.Time

	// Degraded is true when the store failed and the decision fell back to
	// the configured fail-open or fail-closed behavior.
	Degraded bool
}

// RetryAfterSeconds returns the retry delay rounded up to whole seconds.
func (d *GuardDecision) RetryAfterSeconds() int64 {
	return ceilSeconds(d.RetryAfter)
}

// Err returns a *BlockedError for denied decisions and nil otherwise.
func (d *GuardDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &BlockedError{IP: d.IP, Reason: d.Reason, RetryAfter: d.RetryAfter}
}

// IPGuardConfig configures an IPGuard.
type IPGuardConfig struct {
	// Threshold is the number of requests allowed per Window. The request that
	// pushes the count past Threshold triggers the block.
	// Default: 300
	Threshold int

	// Window is the counting window.
	Window time.Duration

	// BlockDuration is fixed per block and never extended.
	// Default: 15 minutes
	BlockDuration time.Duration

	Store    Store
	Clock    clock.Clock
	Metrics  Metrics
	Logger   *slog.Logger
	FailOpen bool

	// Shards is the number of block table partitions.
	// Default: 16
	Shards int
}

// IPGuard hard-blocks addresses that exceed a request threshold.
//
// Per address the guard is a two-state machine, NORMAL and BLOCKED. While
// BLOCKED every request is denied before any window is consulted, and further
// requests neither extend the block nor count toward the window.
type IPGuard struct {
	threshold     int
	window        time.Duration
	blockDuration time.Duration

	store    Store
	clock    clock.Clock
	metrics  Metrics
	logger   *slog.Logger
	failOpen bool

	shards []*blockShard
}

type blockShard struct {
	mu     sync.Mutex
	blocks map[string]BlockRecord
}

// NewIPGuard creates a guard with the given configuration.
func NewIPGuard(config IPGuardConfig) *IPGuard {
	if config.Threshold <= 0 {
		config.Threshold = 300
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = 15 * time.Minute
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.Shards <= 0 {
		config.Shards = 16
	}
	if config.Metrics == nil {
		config.Metrics = &NoOpMetrics{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	shards := make([]*blockShard, config.Shards)
	for i := range shards {
		shards[i] = &blockShard{blocks: make(map[string]BlockRecord)}
	}

	return &IPGuard{
		threshold:     config.Threshold,
		window:        config.Window,
		blockDuration: config.BlockDuration,
		store:         config.Store,
		clock:         clock.OrSystem(config.Clock),
		metrics:       config.Metrics,
		logger:        config.Logger,
		failOpen:      config.FailOpen,
		shards:        shards,
	}
}

func (g *IPGuard) shardFor(ip string) *blockShard {
	return g.shards[xxhash.Sum64String(ip)%uint64(len(g.shards))]
}

func abuseKey(ip string) string {
	return "abuse:ip:" + ip
}

// Check counts one request from ip and reports whether it may proceed.
func (g *IPGuard) Check(ctx context.Context, ip string) *GuardDecision {
	start := time.Now()
	defer func() {
		g.metrics.RecordCheckDuration(LimiterTypeIP, time.Since(start))
	}()

	now := g.clock.Now()
	if rec, ok := g.Blocked(ip); ok {
		g.metrics.RecordDenied(LimiterTypeIP, "blocked")
		return blockedDecision(rec, now)
	}

	w, err := g.store.Increment(ctx, abuseKey(ip), g.window)
	if err != nil {
		return g.degraded(ip, now, err)
	}

	if w.Count <= g.threshold {
		g.metrics.RecordAllowed(LimiterTypeIP, "normal")
		return &GuardDecision{IP: ip, Allowed: true}
	}

	rec := g.block(ctx, ip, BlockReasonThreshold, now, w.Count, 0)
	g.metrics.RecordDenied(LimiterTypeIP, "blocked")
	return blockedDecision(rec, now)
}

// Block places a manual block on ip for d, or for the configured duration
// when d <= 0. An existing active block is left unchanged.
func (g *IPGuard) Block(ip, reason string, d time.Duration) BlockRecord {
	return g.block(context.Background(), ip, reason, g.clock.Now(), 0, d)
}

// block records a new block and restarts the address's abuse window, so the
// first request after UnblockAt is counted from zero.
func (g *IPGuard) block(ctx context.Context, ip, reason string, now time.Time, count int, d time.Duration) BlockRecord {
	if d <= 0 {
		d = g.blockDuration
	}

	sh := g.shardFor(ip)

	sh.mu.Lock()
	if rec, ok := sh.blocks[ip]; ok && rec.Active(now) {
		sh.mu.Unlock()
		return rec
	}
	rec := BlockRecord{
		IP:        ip,
		Reason:    reason,
		BlockedAt: now,
		UnblockAt: now.Add(d),
	}
	sh.blocks[ip] = rec
	sh.mu.Unlock()

	if g.store != nil {
		if err := g.store.Delete(ctx, abuseKey(ip)); err != nil {
			g.logger.Warn("ip guard window reset failed",
				slog.String("event_type", "rate_limit_store_error"),
				slog.String("ip", ip),
				slog.Any("error", err))
		}
	}

	g.metrics.RecordBlocked(reason)
	g.logger.Error("ip address blocked",
		slog.String("event_type", "ip_blocked"),
		slog.String("ip", ip),
		slog.String("reason", reason),
		slog.Int("count", count),
		slog.Int("threshold", g.threshold),
		slog.Time("blocked_at", rec.BlockedAt),
		slog.Time("unblock_at", rec.UnblockAt))
	return rec
}

// Unblock removes any block on ip and reports whether one was active.
func (g *IPGuard) Unblock(ip string) bool {
	now := g.clock.Now()
	sh := g.shardFor(ip)

	sh.mu.Lock()
	rec, ok := sh.blocks[ip]
	delete(sh.blocks, ip)
	sh.mu.Unlock()

	active := ok && rec.Active(now)
	if active {
		g.logger.Info("ip address unblocked",
			slog.String("event_type", "ip_unblocked"),
			slog.String("ip", ip))
	}
	return active
}

// Blocked returns the active block on ip, if any.
func (g *IPGuard) Blocked(ip string) (BlockRecord, bool) {
	now := g.clock.Now()
	sh := g.shardFor(ip)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.blocks[ip]
	if !ok || !rec.Active(now) {
		return BlockRecord{}, false
	}
	return rec, true
}

// Sweep deletes expired block records.
func (g *IPGuard) Sweep(ctx context.Context) (int, error) {
	now := g.clock.Now()
	removed := 0

	for _, sh := range g.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		sh.mu.Lock()
		for ip, rec := range sh.blocks {
			if !rec.Active(now) {
				delete(sh.blocks, ip)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed, nil
}

// KeyCount returns the number of block records held.
func (g *IPGuard) KeyCount(ctx context.Context) (int, error) {
	total := 0
	for _, sh := range g.shards {
		sh.mu.Lock()
		total += len(sh.blocks)
		sh.mu.Unlock()
	}
	return total, nil
}

func (g *IPGuard) degraded(ip string, now time.Time, err error) *GuardDecision {
	g.metrics.RecordStoreError(LimiterTypeIP, g.failOpen)
	g.logger.Error("ip guard store error",
		slog.String("event_type", "rate_limit_store_error"),
		slog.String("ip", ip),
		slog.Bool("fail_open", g.failOpen),
		slog.Any("error", err))

	if g.failOpen {
		return &GuardDecision{IP: ip, Allowed: true, Degraded: true}
	}
	return &GuardDecision{
		IP:         ip,
		Allowed:    false,
		Reason:     "store unavailable",
		RetryAfter: failClosedRetryAfter,
		UnblockAt:  now.Add(failClosedRetryAfter),
		Degraded:   true,
	}
}

func blockedDecision(rec BlockRecord, now time.Time) *GuardDecision {
	return &GuardDecision{
		IP:         rec.IP,
		Allowed:    false,
		Blocked:    true,
		Reason:     rec.Reason,
		RetryAfter: rec.UnblockAt.Sub(now),
		UnblockAt:  rec.UnblockAt,
	}
}
