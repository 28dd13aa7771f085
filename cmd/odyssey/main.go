package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-console/internal/app"
	"github.com/odyssey-erp/odyssey-console/internal/auth"
	"github.com/odyssey-erp/odyssey-console/internal/calendar"
	"github.com/odyssey-erp/odyssey-console/internal/observability"
	"github.com/odyssey-erp/odyssey-console/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-console/internal/platform/db"
	"github.com/odyssey-erp/odyssey-console/internal/rbac"
	"github.com/odyssey-erp/odyssey-console/internal/roles"
	"github.com/odyssey-erp/odyssey-console/internal/shared"
	"github.com/odyssey-erp/odyssey-console/jobs"
)

func main() {
	if app.SkipStartup("api") {
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, ApplicationName: "odyssey-api"})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	auditLogger := shared.NewAuditLogger(dbpool)

	roleCache := cache.NewVersioned(redisClient, "roles", cfg.CacheTTL)
	officeCache := cache.NewVersioned(redisClient, "offices", cfg.CacheTTL)
	for _, c := range []*cache.Versioned{roleCache, officeCache} {
		if err := c.ListenForInvalidation(ctx); err != nil {
			logger.Warn("cache invalidation listener", slog.Any("error", err))
		}
	}

	roleService := roles.NewService(roles.NewRepository(dbpool), roles.ServiceConfig{
		Cache:   roleCache,
		Audit:   auditLogger,
		Logger:  logger,
		Metrics: metrics,
	})

	rbacService := rbac.NewService(rbac.NewStore(dbpool), roleService, auditLogger, logger)
	rbacMiddleware := rbac.Middleware{Source: rbacService, Logger: logger}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	calendarService := calendar.NewService(calendar.NewRepository(dbpool), calendar.ServiceConfig{
		Cache:       officeCache,
		Results:     cache.NewVersioned(redisClient, "deadlines", cfg.BatchResultTTL),
		Enqueuer:    jobClient,
		Audit:       auditLogger,
		Logger:      logger,
		Metrics:     metrics,
		HoursPerDay: cfg.DeadlineHoursPerDay,
		Concurrency: cfg.BatchConcurrency,
		ResultTTL:   cfg.BatchResultTTL,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool)).WithLogger(logger)),
		RolesHandler:    roles.NewHandler(logger, roleService, rbacMiddleware),
		CalendarHandler: calendar.NewHandler(logger, calendarService, rbacMiddleware),
		RBACHandler:     rbac.NewHandler(logger, rbacService, rbacMiddleware),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
