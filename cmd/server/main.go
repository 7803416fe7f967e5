package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/app"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/broadcast"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/database"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/domain"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/config"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/logging"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/retry"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/platform/version"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/redis"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/server"
	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/store/memory"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout   = 10 * time.Second
	migrationTimeout  = 30 * time.Second
	readinessInterval = 2 * time.Second
	readinessAttempts = 15
	attemptTimeout    = 5 * time.Second
)

// stores bundles the persistence collaborators. Each one is backed by
// Postgres or Redis when configured and by memory otherwise.
type stores struct {
	runs    domain.RunRepository
	tracker domain.ActiveRunTracker
	stats   domain.StatsStore
	prices  domain.PriceHistory

	healthChecks []server.HealthCheck
	closers      []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func waitFor(ctx context.Context, clock clockwork.Clock, name string, cond retry.Condition) error {
	outcome, err := retry.Poll(ctx, retry.PollPolicy{
		Interval:    readinessInterval,
		MaxAttempts: readinessAttempts,
		Clock:       clock,
	}, cond)
	if outcome != retry.Resolved {
		return fmt.Errorf("%s not ready (%s): %w", name, outcome, err)
	}
	return nil
}

func setupDB(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := waitFor(ctx, clock, "postgres", func(ctx context.Context) (bool, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		p, err := database.Connect(attemptCtx, cfg.DatabaseURL)
		if err != nil {
			slog.Warn("Database not ready", "error", err)
			return false, err
		}
		pool = p
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	migrateCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if err := database.RunMigrations(migrateCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func setupRedis(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*goredis.Client, error) {
	var client *goredis.Client
	err := waitFor(ctx, clock, "redis", func(ctx context.Context) (bool, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		c, err := redis.NewClient(attemptCtx, cfg.RedisURL)
		if err != nil {
			slog.Warn("Redis not ready", "error", err)
			return false, err
		}
		client = c
		return true, nil
	})
	return client, err
}

func setupStores(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*stores, error) {
	st := &stores{
		runs:    memory.NewRunStore(),
		tracker: memory.NewActiveRunTracker(),
		stats:   memory.NewStatsStore(),
		prices:  memory.NewPriceHistory(app.PriceRetention),
	}

	if cfg.DatabaseURL != "" {
		pool, err := setupDB(ctx, cfg, clock)
		if err != nil {
			return nil, err
		}
		repo := database.NewRunRepo(pool)
		st.runs = repo
		st.closers = append(st.closers, pool.Close)
		st.healthChecks = append(st.healthChecks, server.HealthCheck{Name: "postgres", Check: repo.Ping})
	} else {
		slog.Warn("DATABASE_URL not set, run logs are kept in memory")
	}

	if cfg.RedisURL != "" {
		client, err := setupRedis(ctx, cfg, clock)
		if err != nil {
			st.close()
			return nil, err
		}
		st.tracker = redis.NewActiveRunTracker(client, redis.DefaultActiveRunTTL)
		st.stats = redis.NewStatsStore(client)
		st.prices = redis.NewPriceHistory(client, app.PriceRetention)
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.healthChecks = append(st.healthChecks, server.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	} else {
		slog.Warn("REDIS_URL not set, active runs, stats and prices are kept in memory")
	}

	return st, nil
}

func run() int {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)
	slog.Info("Application starting", "env", cfg.AppEnv, "addr", cfg.Addr(), "version", info.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := setupStores(ctx, cfg, clock)
	if err != nil {
		slog.Error("Failed to set up stores", "error", err)
		return 1
	}
	defer st.close()

	registry := broadcast.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(registry, clock)
	bus := broadcast.NewBus(broadcaster, clock, cfg.BusQueueSize)
	heartbeat := broadcast.NewHeartbeatMonitor(registry, broadcaster, clock, cfg.HeartbeatInterval, cfg.HeartbeatMaxMisses)

	coordinator := app.NewRunCoordinator(st.runs, st.tracker, st.stats, bus, clock)
	ticker := app.NewPriceTicker(st.prices, st.stats, bus, clock, cfg.PriceTickInterval, cfg.PriceBase)

	limits := server.NewConnectionLimits(clock, cfg.MaxWebSocketConnections, cfg.MaxConnectionsPerIP, cfg.ConnectRatePerSecond, cfg.ConnectBurst)
	socket := server.NewSocketHandler(registry, broadcaster, limits, clock, cfg.AllowedOrigins, server.SocketOptions{
		BufferSize:     cfg.SendBufferSize,
		WriteTimeout:   cfg.WriteTimeout,
		SubscribeRate:  rate.Limit(cfg.SubscribeRatePerSecond),
		SubscribeBurst: cfg.SubscribeBurst,
	})
	srv := server.NewServer(cfg, clock, coordinator, ticker, bus, registry, socket, st.healthChecks)

	// Tickers get their own context so they outlive the HTTP server during
	// shutdown and stop before the bus does.
	tickCtx, cancelTickers := context.WithCancel(context.Background())
	defer cancelTickers()
	var tickers errgroup.Group
	tickers.Go(func() error {
		heartbeat.Run(tickCtx)
		return nil
	})
	tickers.Go(func() error {
		ticker.Run(tickCtx)
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelTickers()
		_ = tickers.Wait()

		bus.Stop()
		closed := registry.CloseAll("Server shutting down")
		slog.Info("Shutdown complete", "closed_connections", closed)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
