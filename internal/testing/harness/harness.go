// Package harness wires the order, ledger and journal services over memdb with
// effects running inline, the way cmd/backoffice wires them over PostgreSQL.
package harness

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/printhub/backoffice/internal/files"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/orders"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/reporting"
	"github.com/printhub/backoffice/internal/sequence"
	"github.com/printhub/backoffice/internal/shared"
	"github.com/printhub/backoffice/internal/testing/memdb"
)

// Clock is a settable time source shared by every service of a harness.
type Clock struct {
	t time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time { return c.t }

// Set moves the clock.
func (c *Clock) Set(t time.Time) { c.t = t }

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// Harness exposes the wired services.
type Harness struct {
	DB         *memdb.DB
	Clock      *Clock
	Location   *time.Location
	Sequences  *sequence.Allocator
	Journals   *journal.Service
	Ledgers    *ledger.Service
	Orders     *orders.Service
	Dispatcher *reconcile.Dispatcher
	Relocator  *files.Relocator
	Reports    *reporting.Service
	Metrics    *reconcile.Metrics
	Logger     *slog.Logger
}

// Options adjusts the harness.
type Options struct {
	Start       time.Time
	BatchSize   int
	MaxAttempts int
	// WrapLedgers, when set, wraps the ledger writer the order manager calls.
	WrapLedgers func(orders.Ledgers) orders.Ledgers
}

// Seoul is the business timezone used by tests.
var Seoul = time.FixedZone("KST", 9*60*60)

// New builds a harness. The clock starts at opts.Start or 2024-01-15 10:00 KST.
func New(t testing.TB, opts Options) *Harness {
	t.Helper()
	start := opts.Start
	if start.IsZero() {
		start = time.Date(2024, 1, 15, 10, 0, 0, 0, Seoul)
	}
	clock := &Clock{t: start}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := memdb.New().WithNow(clock.Now)
	seq := sequence.NewAllocator(Seoul)

	metrics := reconcile.NewMetrics(prometheus.NewRegistry())
	dispatcher := reconcile.NewDispatcher(db.Reconcile(), nil, logger, metrics, reconcile.Config{MaxAttempts: opts.MaxAttempts})
	dispatcher.WithNow(clock.Now)

	journals := journal.NewService(db.Journals(), seq, nil, logger)
	journals.WithNow(clock.Now)

	reports := reporting.NewService(db.Reports(), reporting.Options{
		Pending:  dispatcher,
		Location: Seoul,
		Logger:   logger,
	})

	ledgers := ledger.NewService(db.Ledgers(), seq, journals, dispatcher, ledger.Options{
		Clients: db.Clients(),
		Cache:   reports,
		Logger:  logger,
		TaxRate: shared.DefaultTaxRate,
	})
	ledgers.WithNow(clock.Now)
	ledgers.RegisterEffects(dispatcher)

	var orderLedgers orders.Ledgers = ledgers
	if opts.WrapLedgers != nil {
		orderLedgers = opts.WrapLedgers(ledgers)
	}
	ords := orders.NewService(orders.Deps{
		Repo:        db.Orders(),
		Sequences:   seq,
		Clients:     db.Clients(),
		Ledgers:     orderLedgers,
		Effects:     dispatcher,
		Idempotency: db.Idempotency(),
		Logger:      logger,
	}, orders.Config{BatchSize: opts.BatchSize})
	ords.WithNow(clock.Now)
	ords.RegisterEffects(dispatcher)

	relocator := files.NewRelocator(t.TempDir(), logger)
	dispatcher.Register(reconcile.KindFileRelocation, relocator.Handle)

	return &Harness{
		DB:         db,
		Clock:      clock,
		Location:   Seoul,
		Sequences:  seq,
		Journals:   journals,
		Ledgers:    ledgers,
		Orders:     ords,
		Dispatcher: dispatcher,
		Relocator:  relocator,
		Reports:    reports,
		Metrics:    metrics,
		Logger:     logger,
	}
}
