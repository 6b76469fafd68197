package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/printhub/backoffice/internal/app"
	jobmetrics "github.com/printhub/backoffice/internal/jobs"
	"github.com/printhub/backoffice/internal/observability"
	"github.com/printhub/backoffice/internal/platform/cache"
	"github.com/printhub/backoffice/internal/platform/db"
	"github.com/printhub/backoffice/internal/shared"
	"github.com/printhub/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "backoffice-worker")

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	queue := jobs.NewClient(redisOpts.AsynqOpt(), jobs.DefaultEffectRetries)
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	services := app.BuildServices(app.ServiceDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Queue:   queue,
	})

	effectJob := jobs.NewEffectJob(services.Dispatcher, logger, jobMetrics)
	sweepJob := jobs.NewSweepJob(services.Dispatcher, logger, jobMetrics, cfg.SweepLimit)
	overdueJob := jobs.NewOverdueJob(services.Ledgers, logger, jobMetrics)
	orphanJob := jobs.NewOrphanJob(services.Ledgers, logger, jobMetrics)
	orphanJob.Keys = shared.NewIdempotencyStore(pool)
	integrityJob := jobs.NewIntegrityJob(services.Journals, logger, jobMetrics)

	sweepTask, err := jobs.NewSweepTask(cfg.SweepLimit)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewIntegrityTask(24)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts.AsynqOpt(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconcileEffect, Handler: effectJob.Handle},
			{Type: jobs.TaskReconcileSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskLedgerOverdue, Handler: overdueJob.Handle},
			{Type: jobs.TaskLedgerOrphans, Handler: orphanJob.Handle},
			{Type: jobs.TaskJournalIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(0), asynq.Unique(4 * time.Minute)}},
			{Spec: cfg.OverdueCron, Task: jobs.NewOverdueTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.OrphanCron, Task: jobs.NewOrphanCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Method(http.MethodGet, "/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metricsRouter, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
