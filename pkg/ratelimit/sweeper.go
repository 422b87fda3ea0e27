package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweepable is anything holding expiring entries.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
	KeyCount(ctx context.Context) (int, error)
}

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval between sweeps.
	// Default: 1 minute
	Interval time.Duration

	// Timeout bounds a single sweep pass.
	// Default: 30 seconds
	Timeout time.Duration

	Metrics Metrics
	Logger  *slog.Logger
}

// Sweeper periodically removes expired windows and blocks from its targets,
// bounding memory to the number of keys active within one window.
type Sweeper struct {
	mu      sync.Mutex
	targets map[string]Sweepable
	order   []string

	interval time.Duration
	timeout  time.Duration
	metrics  Metrics
	logger   *slog.Logger

	cron    *cron.Cron
	started bool
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(config SweeperConfig) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = &NoOpMetrics{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Sweeper{
		targets:  make(map[string]Sweepable),
		interval: config.Interval,
		timeout:  config.Timeout,
		metrics:  config.Metrics,
		logger:   config.Logger,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Register adds a named target. Registering a name twice replaces the target.
func (s *Sweeper) Register(name string, target Sweepable) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[name]; !ok {
		s.order = append(s.order, name)
	}
	s.targets[name] = target
}

// Start schedules periodic sweeps. Calling Start twice is an error.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("sweeper already started")
	}

	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	}))
	s.cron.Start()
	s.started = true

	s.logger.Info("rate limit sweeper started",
		slog.Duration("interval", s.interval),
		slog.Int("targets", len(s.order)))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or for ctx
// to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("rate limit sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sweeps every target and returns the total number of removed entries.
// Errors are logged per target and do not stop the pass.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	targets := make([]Sweepable, len(names))
	for i, name := range names {
		targets[i] = s.targets[name]
	}
	s.mu.Unlock()

	total := 0
	for i, name := range names {
		removed, err := targets[i].Sweep(ctx)
		total += removed
		s.metrics.RecordSweep(name, removed)
		if err != nil {
			s.logger.Warn("rate limit sweep failed",
				slog.String("target", name),
				slog.Int("removed", removed),
				slog.Any("error", err))
			continue
		}

		if count, err := targets[i].KeyCount(ctx); err == nil {
			s.metrics.SetActiveKeys(name, count)
		}

		if removed > 0 {
			s.logger.Debug("rate limit sweep completed",
				slog.String("target", name),
				slog.Int("removed", removed))
		}
	}
	return total
}
