package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"stokpintar/backend/internal/app"
	"stokpintar/backend/internal/config"
	"stokpintar/backend/internal/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if cfg.RedisAddr == "" {
		logger.Error("REDIS_ADDR is required for the worker")
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	engine, err := app.New(startCtx, cfg, logger, prometheus.DefaultRegisterer)
	cancel()
	if err != nil {
		logger.Error("init engine", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	redisOpts, ok := engine.RedisOpts()
	if !ok {
		logger.Error("redis unreachable", slog.String("addr", cfg.RedisAddr))
		os.Exit(1)
	}

	// An empty date rolls up yesterday at execution time.
	nightly, err := jobs.NewRollupDailyTask("")
	if err != nil {
		logger.Error("build rollup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRollupDaily, Handler: engine.RollupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RollupCron, Task: nightly, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
