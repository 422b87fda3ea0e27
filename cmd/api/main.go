package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"inkwell/internal/common/pagination"
	hhttp "inkwell/internal/handler/http"
	"inkwell/internal/handler/http/middleware"
	hpost "inkwell/internal/handler/http/post"
	"inkwell/internal/handler/http/requestid"
	pgRepo "inkwell/internal/infra/adapter/persistence/postgres"
	"inkwell/internal/infra/db"
	"inkwell/internal/observability/logging"
	"inkwell/internal/observability/tracing"
	"inkwell/internal/resilience/circuitbreaker"
	"inkwell/internal/resilience/retry"
	postUC "inkwell/internal/usecase/post"
	"inkwell/pkg/config"
	"inkwell/pkg/ratelimit"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secret, err := loadJWTSecret(logger)
	if err != nil {
		return err
	}

	database, err := initDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	components, err := setupServer(ctx, logger, database, secret)
	if err != nil {
		return err
	}
	defer components.Close()

	return serve(ctx, logger, database, components)
}

// loadJWTSecret returns the HMAC key for bearer identities. An empty
// JWT_SECRET disables user identities and every client is keyed by IP.
func loadJWTSecret(logger *slog.Logger) ([]byte, error) {
	secret := config.GetEnvString("JWT_SECRET", "")
	if secret == "" {
		logger.Warn("JWT_SECRET not set: bearer tokens are ignored and clients are rate limited by IP")
		return nil, nil
	}
	// セキュリティ: 最小32文字（256ビット）を強制
	if len(secret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 characters (256 bits)")
	}
	return []byte(secret), nil
}

// initDatabase opens the database connection and runs migrations.
func initDatabase(ctx context.Context, logger *slog.Logger) (*sql.DB, error) {
	database, err := db.Open(ctx, config.GetEnvString("DATABASE_URL", ""), db.LoadConnectionConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(ctx, database); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return database, nil
}

// ServerComponents holds components needed for server operation and cleanup.
type ServerComponents struct {
	Handler  http.Handler
	Sweeper  *ratelimit.Sweeper
	Breakers *circuitbreaker.Registry

	closers []func() error
}

// Close releases backend clients opened during setup.
func (c *ServerComponents) Close() {
	for _, closeFn := range c.closers {
		_ = closeFn()
	}
}

// setupServer builds the resilience components and the routed handler.
func setupServer(ctx context.Context, logger *slog.Logger, database *sql.DB, secret []byte) (*ServerComponents, error) {
	components := &ServerComponents{}

	// Circuit breakers and retries
	breakerDefaults := config.LoadBreakerDefaults()
	breakerDefaults.Logger = logger
	breakerDefaults.Observer = circuitbreaker.NewPrometheusObserver(prometheus.DefaultRegisterer)
	registry := circuitbreaker.NewRegistry(breakerDefaults)
	registry.Get(circuitbreaker.NameDatabase, circuitbreaker.DatabaseConfig())
	components.Breakers = registry

	executorOpts := []retry.Option{
		retry.WithLogger(logger),
		retry.WithMetrics(retry.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if budgetCfg := config.LoadRetryBudgetConfig(); budgetCfg.PerSecond > 0 {
		executorOpts = append(executorOpts, retry.WithBudget(retry.NewBudget(budgetCfg.PerSecond, budgetCfg.Burst)))
	}
	executor := retry.NewExecutor(registry, executorOpts...)

	// Rate limiting
	rateLimitCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return nil, fmt.Errorf("load rate limit configuration: %w", err)
	}
	proxies, err := config.LoadTrustedProxies()
	if err != nil {
		return nil, fmt.Errorf("load trusted proxy configuration: %w", err)
	}
	if proxies.Enabled {
		logger.Info("rate limiting: trusted proxy mode enabled",
			slog.Int("trusted_proxies_count", len(proxies.Prefixes)))
	} else {
		logger.Info("rate limiting: using RemoteAddr (proxy headers ignored)")
	}
	identity := middleware.NewIdentity(middleware.NewIPExtractor(proxies), secret, logger)

	rlMetrics := ratelimit.NewPrometheusMetrics()
	var (
		rl         *middleware.RateLimiter
		store      ratelimit.Store
		storeGuard *ratelimit.GuardedStore
		ipGuard    *ratelimit.IPGuard
	)
	if rateLimitCfg.Enabled {
		store, err = newRateLimitStore(ctx, rateLimitCfg, components)
		if err != nil {
			return nil, err
		}
		storeGuard = ratelimit.NewGuardedStore(store, ratelimit.GuardedStoreConfig{
			Name:                "ratelimit-" + rateLimitCfg.Backend,
			ConsecutiveFailures: rateLimitCfg.StoreGuardFailures,
			OpenTimeout:         rateLimitCfg.StoreGuardTimeout,
			Logger:              logger,
		})

		limiter := ratelimit.NewClientLimiter(ratelimit.ClientLimiterConfig{
			Store:    storeGuard,
			Policies: rateLimitCfg.Policies,
			Metrics:  rlMetrics,
			Logger:   logger,
			FailOpen: rateLimitCfg.FailOpen,
		})

		sweeper := ratelimit.NewSweeper(ratelimit.SweeperConfig{
			Interval: rateLimitCfg.SweepInterval,
			Metrics:  rlMetrics,
			Logger:   logger,
		})
		sweeper.Register("client", store)

		if rateLimitCfg.IPGuard.Enabled {
			ipGuard = ratelimit.NewIPGuard(ratelimit.IPGuardConfig{
				Threshold:     rateLimitCfg.IPGuard.Threshold,
				Window:        rateLimitCfg.IPGuard.Window,
				BlockDuration: rateLimitCfg.IPGuard.BlockDuration,
				Store:         ratelimit.NewInMemoryStore(ratelimit.DefaultInMemoryStoreConfig()),
				Metrics:       rlMetrics,
				Logger:        logger,
				FailOpen:      true,
			})
			sweeper.Register("ip_guard", ipGuard)
		}
		components.Sweeper = sweeper

		rl = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Limiter:  limiter,
			Guard:    ipGuard,
			Identity: identity,
			Logger:   logger,
		})

		logger.Info("rate limiting initialized",
			slog.String("backend", rateLimitCfg.Backend),
			slog.Bool("fail_open", rateLimitCfg.FailOpen),
			slog.Bool("ip_guard", ipGuard != nil),
			slog.Int("policies", len(rateLimitCfg.Policies)))
	} else {
		logger.Warn("rate limiting is DISABLED - not recommended for production")
	}

	// Routes
	postSvc := &postUC.Service{Repo: pgRepo.NewPostRepo(database, executor)}

	appMux := http.NewServeMux()
	hpost.Register(appMux, postSvc, rl, pagination.LoadFromEnv())

	var app http.Handler = appMux
	if rl != nil {
		app = rl.GuardIP(app)
	}

	health := &hhttp.HealthHandler{
		DB:       database,
		Version:  config.GetEnvString("VERSION", "dev"),
		Breakers: registry,
		FailOpen: rateLimitCfg.FailOpen,
	}
	if store != nil {
		health.RateLimitStore = store
		health.StoreGuard = storeGuard
	}
	if ipGuard != nil {
		health.IPGuard = ipGuard
	}

	rootMux := http.NewServeMux()
	rootMux.Handle("/health", health)
	rootMux.Handle("/health/breakers", &hhttp.BreakersHandler{Registry: registry})
	rootMux.Handle("/ready", &hhttp.ReadyHandler{DB: database})
	rootMux.Handle("/live", &hhttp.LiveHandler{})
	rootMux.Handle("/metrics", hhttp.MetricsHandler(rlMetrics.Registry()))
	rootMux.Handle("/", app)

	// Outermost first: request id → tracing → request logger → recovery →
	// access log → metrics → identity → body limit
	components.Handler = hhttp.Chain(rootMux,
		requestid.Middleware,
		tracing.Middleware,
		logging.Middleware(logger),
		hhttp.Recover(logger),
		hhttp.Logging(logger),
		hhttp.MetricsMiddleware,
		identity.Middleware,
		hhttp.LimitRequestBody(1<<20),
	)
	return components, nil
}

func newRateLimitStore(ctx context.Context, cfg *ratelimit.Config, components *ServerComponents) (ratelimit.Store, error) {
	if cfg.Backend != ratelimit.BackendRedis {
		return ratelimit.NewInMemoryStore(ratelimit.DefaultInMemoryStoreConfig()), nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client, err := ratelimit.NewRedisClient(pingCtx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect rate limit redis: %w", err)
	}
	components.closers = append(components.closers, client.Close)
	return ratelimit.NewRedisStore(client, ratelimit.RedisStoreConfig{}), nil
}

// serve runs the HTTP server and background jobs until ctx is cancelled,
// then shuts everything down.
func serve(ctx context.Context, logger *slog.Logger, database *sql.DB, components *ServerComponents) error {
	addr := ":" + config.GetEnvString("PORT", "8080")
	srv := &http.Server{
		Addr:              addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	if components.Sweeper != nil {
		if err := components.Sweeper.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return db.WatchPoolStats(gctx, database, 15*time.Second)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if components.Sweeper != nil {
			if err := components.Sweeper.Stop(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("sweeper stop: %w", err))
			}
		}
		logger.Info("server stopped")
		return errors.Join(errs...)
	})

	return g.Wait()
}
