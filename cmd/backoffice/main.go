package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/printhub/backoffice/internal/app"
	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/observability"
	"github.com/printhub/backoffice/internal/orders"
	"github.com/printhub/backoffice/internal/platform/cache"
	"github.com/printhub/backoffice/internal/platform/db"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/reporting"
	"github.com/printhub/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "backoffice-api")

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

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
	services := app.BuildServices(app.ServiceDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
		Queue:   queue,
	})

	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		OrdersHandler:    orders.NewHandler(logger, services.Orders, app.BulkLimiter(cfg)),
		LedgerHandler:    ledger.NewHandler(logger, services.Ledgers),
		JournalHandler:   journal.NewHandler(logger, services.Journals),
		ClientsHandler:   clients.NewHandler(logger, services.Clients),
		ReportsHandler:   reporting.NewHTTPHandler(logger, services.Reports),
		ReconcileHandler: reconcile.NewHTTPHandler(logger, services.Dispatcher),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr), slog.String("timezone", cfg.Location().String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
