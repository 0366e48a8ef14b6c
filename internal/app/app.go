package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"stokpintar/backend/internal/cache"
	"stokpintar/backend/internal/config"
	"stokpintar/backend/internal/forecast"
	"stokpintar/backend/internal/httpapi"
	"stokpintar/backend/internal/jobs"
	"stokpintar/backend/internal/ledger"
	"stokpintar/backend/internal/rollup"
	"stokpintar/backend/internal/sales"
	"stokpintar/backend/internal/service"
	"stokpintar/backend/internal/store"
	"stokpintar/backend/internal/store/memory"
	pgstore "stokpintar/backend/internal/store/postgres"
)

// App holds the wired engine shared by the server, worker and CLI binaries.
type App struct {
	Repo      store.Repository
	Users     httpapi.UserStore
	Rollups   *rollup.Engine
	RollupJob *jobs.RollupJob
	Service   *service.Service

	// Inline is set when no Redis is configured; its Run loop must be started.
	Inline *jobs.InlineQueue

	redisOpts asynq.RedisClientOpt
	hasRedis  bool
	closers   []func() error
	logger    *slog.Logger
}

// New opens storage and optional Redis, then wires the ledger, processor,
// rollup engine, advisor and service. registerer receives sale metrics.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, registerer prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}

	repo, err := a.openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Repo = repo

	loc, err := cfg.Location()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	dashboards := cache.DashboardCache(cache.NoopDashboardCache{})
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		redisCache := cache.NewRedisDashboardCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop dashboard cache", slog.Any("error", err))
			_ = client.Close()
		} else {
			dashboards = redisCache
			a.closers = append(a.closers, redisCache.Close)
			a.redisOpts = asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
			a.hasRedis = true
			logger.Info("cache: redis", slog.String("addr", cfg.RedisAddr))
		}
	}

	a.Rollups = rollup.NewEngine(repo, dashboards, cfg.DashboardCacheTTL, logger).WithLocation(loc)
	a.RollupJob = jobs.NewRollupJob(a.Rollups, logger, jobs.NewMetrics(nil))

	var scheduler sales.RollupScheduler
	if a.hasRedis {
		client := jobs.NewClient(a.redisOpts)
		a.closers = append(a.closers, client.Close)
		scheduler = client
		logger.Info("rollup queue: asynq")
	} else {
		a.Inline = jobs.NewInlineQueue(a.RollupJob, cfg.RollupQueueSize, logger)
		scheduler = a.Inline
		logger.Info("rollup queue: inline")
	}

	stock := ledger.New()
	processor := sales.NewProcessor(repo, stock, scheduler, logger)
	advisor := forecast.NewAdvisor(repo)
	a.Service = service.New(repo, stock, processor, a.Rollups, advisor, service.NewMetrics(registerer), logger)
	return a, nil
}

func (a *App) openRepository(ctx context.Context, cfg config.Config) (store.Repository, error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = a.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		a.Users = pg
		a.logger.Info("repository: postgres")
		return pg, nil
	}

	if cfg.CatalogPath != "" {
		products, err := memory.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		repo := memory.NewWithCatalog(products)
		a.Users = repo
		a.logger.Info("repository: in-memory", slog.String("catalog", cfg.CatalogPath), slog.Int("products", len(products)))
		return repo, nil
	}

	repo := memory.NewSeeded()
	a.Users = repo
	a.logger.Info("repository: in-memory")
	return repo, nil
}

// RedisOpts reports the asynq connection when Redis is reachable.
func (a *App) RedisOpts() (asynq.RedisClientOpt, bool) {
	return a.redisOpts, a.hasRedis
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close error", slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}
