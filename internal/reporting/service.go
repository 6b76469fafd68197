package reporting

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/printhub/backoffice/internal/reconcile"
)

// Repository exposes the aggregate reads the reports are built from.
type Repository interface {
	OpenReceivables(ctx context.Context, asOf time.Time) ([]Receivable, error)
	// MonthlySales and MonthlyReceipts cover [from, to).
	MonthlySales(ctx context.Context, from, to time.Time) ([]MonthAmount, error)
	MonthlyReceipts(ctx context.Context, from, to time.Time) ([]MonthAmount, error)
	ClientLedgers(ctx context.Context, clientID int64, asOf time.Time) ([]ClientLedger, error)
	Totals(ctx context.Context, asOf time.Time) (Totals, error)
}

// PendingLister counts open reconciliation rows for the dashboard.
type PendingLister interface {
	List(ctx context.Context, status reconcile.Status, limit, offset int) ([]reconcile.Pending, int, error)
}

// Options configures the service.
type Options struct {
	Cache    *Cache
	Pending  PendingLister
	Location *time.Location
	Logger   *slog.Logger
}

// Service coordinates report queries with the cache layer.
type Service struct {
	repo    Repository
	cache   *Cache
	pending PendingLister
	loc     *time.Location
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService wires a Repository with its cache.
func NewService(repo Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		cache:   opts.Cache,
		pending: opts.Pending,
		loc:     opts.Location,
		logger:  opts.Logger.With(slog.String("component", "reporting")),
	}
}

// Location is the business timezone reports are bucketed in.
func (s *Service) Location() *time.Location { return s.loc }

// Invalidate drops cached reports. Ledger mutations call it after commit.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

// cached serves parts from the report cache, collapsing concurrent misses
// for the same key into one load.
func cached[T any](ctx context.Context, s *Service, load func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return zero, err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out T
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return load(ctx)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Aging buckets outstanding receivables by days past due as of asOf.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	day := dateOnly(asOf, s.loc)
	return cached(ctx, s, func(ctx context.Context) (AgingReport, error) {
		rows, err := s.repo.OpenReceivables(ctx, day)
		if err != nil {
			return AgingReport{}, err
		}
		return buildAging(rows, day, s.loc), nil
	}, "aging", dayToken(day))
}

// MonthlyTrend returns sales and receipts per month from the month of from
// through the month of to, with empty months reported as zero.
func (s *Service) MonthlyTrend(ctx context.Context, from, to time.Time) ([]TrendPoint, error) {
	months, err := monthRange(from, to, s.loc)
	if err != nil {
		return nil, err
	}
	start := monthStart(from, s.loc)
	end := monthStart(to, s.loc).AddDate(0, 1, 0)
	return cached(ctx, s, func(ctx context.Context) ([]TrendPoint, error) {
		var sales, receipts []MonthAmount
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			sales, err = s.repo.MonthlySales(gctx, start, end)
			return err
		})
		g.Go(func() error {
			var err error
			receipts, err = s.repo.MonthlyReceipts(gctx, start, end)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return zeroFill(months, sales, receipts), nil
	}, "trend", months[0], months[len(months)-1])
}

// CreditScore grades how reliably a client pays.
func (s *Service) CreditScore(ctx context.Context, clientID int64, asOf time.Time) (CreditReport, error) {
	day := dateOnly(asOf, s.loc)
	return cached(ctx, s, func(ctx context.Context) (CreditReport, error) {
		rows, err := s.repo.ClientLedgers(ctx, clientID, day)
		if err != nil {
			return CreditReport{}, err
		}
		return scoreCredit(clientID, rows, day, s.loc), nil
	}, "credit", strconv.FormatInt(clientID, 10), dayToken(day))
}

// Dashboard gathers totals, aging and the open reconciliation count. The
// reconciliation count is always read live.
func (s *Service) Dashboard(ctx context.Context, asOf time.Time) (Dashboard, error) {
	day := dateOnly(asOf, s.loc)
	out := Dashboard{AsOf: day}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := cached(gctx, s, func(ctx context.Context) (Totals, error) {
			return s.repo.Totals(ctx, day)
		}, "totals", dayToken(day))
		out.Totals = totals
		return err
	})
	g.Go(func() error {
		aging, err := s.Aging(gctx, day)
		out.Aging = aging
		return err
	})
	if s.pending != nil {
		g.Go(func() error {
			_, total, err := s.pending.List(gctx, reconcile.StatusPending, 1, 0)
			out.PendingReconciliations = total
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("build dashboard", slog.Any("error", err))
		return Dashboard{}, err
	}
	return out, nil
}
