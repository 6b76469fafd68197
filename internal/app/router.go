package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/observability"
	"github.com/printhub/backoffice/internal/orders"
	"github.com/printhub/backoffice/internal/platform/httpx"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/reporting"
	"github.com/printhub/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	OrdersHandler    *orders.Handler
	LedgerHandler    *ledger.Handler
	JournalHandler   *journal.Handler
	ClientsHandler   *clients.Handler
	ReportsHandler   *reporting.HTTPHandler
	ReconcileHandler *reconcile.HTTPHandler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with back office defaults. Nil handlers
// leave their prefix unmounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.OrdersHandler != nil {
		r.Route("/orders", params.OrdersHandler.MountRoutes)
	}
	if params.LedgerHandler != nil {
		r.Route("/ledgers", params.LedgerHandler.MountRoutes)
	}
	if params.JournalHandler != nil {
		r.Route("/journals", params.JournalHandler.MountRoutes)
	}
	if params.ClientsHandler != nil {
		r.Route("/clients", params.ClientsHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.ReconcileHandler != nil {
		r.Route("/reconciliations", params.ReconcileHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
