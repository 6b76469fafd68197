package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/files"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/observability"
	"github.com/printhub/backoffice/internal/orders"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/reporting"
	"github.com/printhub/backoffice/internal/sequence"
	"github.com/printhub/backoffice/internal/shared"
)

// ServiceDeps are the process-level resources both binaries share.
type ServiceDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	// Queue receives dispatched effects. Nil runs them inline.
	Queue reconcile.Queue
}

// Services is the wired domain graph.
type Services struct {
	Dispatcher *reconcile.Dispatcher
	Clients    *clients.Service
	Journals   *journal.Service
	Ledgers    *ledger.Service
	Orders     *orders.Service
	Reports    *reporting.Service
	Relocator  *files.Relocator
}

// BuildServices wires repositories, services and effect handlers. Every
// effect kind is registered on the dispatcher so the API and the worker can
// both execute any effect.
func BuildServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	logger := deps.Logger
	seq := sequence.NewAllocator(cfg.Location())
	audit := shared.NewAuditLogger(deps.Pool)

	dispatcher := reconcile.NewDispatcher(
		reconcile.NewPGStore(deps.Pool),
		deps.Queue,
		logger,
		reconcile.NewMetrics(deps.Metrics.Registerer()),
		reconcile.Config{MaxAttempts: cfg.ReconcileMaxAttempts},
	)

	clientRepo := clients.NewRepository(deps.Pool)
	journals := journal.NewService(journal.NewRepository(deps.Pool), seq, audit, logger)

	var reportCache *reporting.Cache
	if deps.Redis != nil {
		reportCache = reporting.NewCache(deps.Redis, cfg.ReportCacheTTL)
	}
	reports := reporting.NewService(reporting.NewRepository(deps.Pool), reporting.Options{
		Cache:    reportCache,
		Pending:  dispatcher,
		Location: cfg.Location(),
		Logger:   logger,
	})

	ledgers := ledger.NewService(ledger.NewRepository(deps.Pool), seq, journals, dispatcher, ledger.Options{
		Clients: clientRepo,
		Cache:   reports,
		Audit:   audit,
		Logger:  logger,
		TaxRate: cfg.Rate(),
	})
	ledgers.RegisterEffects(dispatcher)

	ords := orders.NewService(orders.Deps{
		Repo:        orders.NewRepository(deps.Pool),
		Sequences:   seq,
		Clients:     clientRepo,
		Ledgers:     ledgers,
		Effects:     dispatcher,
		Idempotency: shared.NewIdempotencyStore(deps.Pool),
		Audit:       audit,
		Logger:      logger,
	}, orders.Config{
		TaxRate:             cfg.Rate(),
		BatchSize:           cfg.BulkBatchSize,
		DuplicateWindowDays: cfg.DuplicateWindowDays,
	})
	ords.RegisterEffects(dispatcher)

	relocator := files.NewRelocator(cfg.StorageRoot, logger)
	dispatcher.Register(reconcile.KindFileRelocation, relocator.Handle)

	return &Services{
		Dispatcher: dispatcher,
		Clients:    clients.NewService(clientRepo),
		Journals:   journals,
		Ledgers:    ledgers,
		Orders:     ords,
		Reports:    reports,
		Relocator:  relocator,
	}
}
