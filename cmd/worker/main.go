package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-console/internal/app"
	"github.com/odyssey-erp/odyssey-console/internal/calendar"
	jobmetrics "github.com/odyssey-erp/odyssey-console/internal/jobs"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/platform/db"
	"github.com/odyssey-erp/odyssey-console/internal/roles"
	"github.com/odyssey-erp/odyssey-console/jobs"
)

func main() {
	if app.SkipStartup("worker") {
		return
	}

	if err := app.LoadDotEnv(); err != nil {
		slog.Default().Error("load .env", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "odyssey-worker"})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.Open(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Warn("redis unavailable, caches will miss", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	roleService := roles.NewService(roles.NewRepository(pool), roles.ServiceConfig{
		Cache:   cache.NewVersioned(redisClient, "roles", cfg.CacheTTL),
		Logger:  logger,
		Metrics: metrics,
	})
	calendarService := calendar.NewService(calendar.NewRepository(pool), calendar.ServiceConfig{
		Cache:       cache.NewVersioned(redisClient, "offices", cfg.CacheTTL),
		Results:     cache.NewVersioned(redisClient, "deadlines", cfg.BatchResultTTL),
		Logger:      logger,
		Metrics:     metrics,
		HoursPerDay: cfg.DeadlineHoursPerDay,
		Concurrency: cfg.BatchConcurrency,
		ResultTTL:   cfg.BatchResultTTL,
	})

	warmJob := jobs.NewPermissionsWarmJob(roleService, logger, jobMetrics)
	batchJob := jobs.NewDeadlineBatchJob(calendarService, logger, jobMetrics)

	warmTask, err := jobs.NewPermissionsWarmTask("scheduled")
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionsWarm, Handler: warmJob.Handle},
			{Type: jobs.TaskDeadlineBatch, Handler: batchJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PermissionWarmupCron, Task: warmTask},
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
