package reporting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/reconcile"
)

type mockRepo struct {
	mu           sync.Mutex
	receivables  []Receivable
	sales        []MonthAmount
	receipts     []MonthAmount
	ledgers      []ClientLedger
	totals       Totals
	totalsErr    error
	agingCalls   int
	trendCalls   int
	creditCalls  int
	totalsCalls  int
	salesRange   [2]time.Time
	creditClient int64
}

func (m *mockRepo) OpenReceivables(ctx context.Context, asOf time.Time) ([]Receivable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agingCalls++
	return m.receivables, nil
}

func (m *mockRepo) MonthlySales(ctx context.Context, from, to time.Time) ([]MonthAmount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trendCalls++
	m.salesRange = [2]time.Time{from, to}
	return m.sales, nil
}

func (m *mockRepo) MonthlyReceipts(ctx context.Context, from, to time.Time) ([]MonthAmount, error) {
	return m.receipts, nil
}

func (m *mockRepo) ClientLedgers(ctx context.Context, clientID int64, asOf time.Time) ([]ClientLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditCalls++
	m.creditClient = clientID
	return m.ledgers, nil
}

func (m *mockRepo) Totals(ctx context.Context, asOf time.Time) (Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalsCalls++
	return m.totals, m.totalsErr
}

type fakePending struct{ total int }

func (f *fakePending) List(ctx context.Context, status reconcile.Status, limit, offset int) ([]reconcile.Pending, int, error) {
	return nil, f.total, nil
}

func newTestService(t *testing.T, repo Repository, pending PendingLister) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, Options{
		Cache:    NewCache(client, time.Minute),
		Pending:  pending,
		Location: kst,
	})
	return svc, mr
}

func TestAgingCachesUntilInvalidated(t *testing.T) {
	repo := &mockRepo{receivables: []Receivable{
		{LedgerID: 1, SalesDate: day(2024, 3, 1), DueDate: ptr(day(2024, 3, 10)), Outstanding: 5000},
	}}
	svc, mr := newTestService(t, repo, nil)
	ctx := context.Background()
	asOf := day(2024, 3, 31)

	first, err := svc.Aging(ctx, asOf)
	require.NoError(t, err)
	require.EqualValues(t, 5000, first.Total)
	require.EqualValues(t, 5000, first.Buckets[1].Amount)

	second, err := svc.Aging(ctx, asOf.Add(5*time.Hour))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.agingCalls)
	require.True(t, mr.Exists("reports:aging:2024-03-31:1"))

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Aging(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 2, repo.agingCalls)
	require.True(t, mr.Exists("reports:aging:2024-03-31:2"))

	_, err = svc.Aging(ctx, day(2024, 4, 1))
	require.NoError(t, err)
	require.Equal(t, 3, repo.agingCalls)
}

func TestMonthlyTrendZeroFillsAndBoundsQuery(t *testing.T) {
	repo := &mockRepo{
		sales:    []MonthAmount{{Month: "2024-01", Amount: 14000}},
		receipts: []MonthAmount{{Month: "2024-03", Amount: 3000}},
	}
	svc, _ := newTestService(t, repo, nil)

	points, err := svc.MonthlyTrend(context.Background(), day(2024, 1, 15), day(2024, 3, 2))
	require.NoError(t, err)
	require.Equal(t, []TrendPoint{
		{Month: "2024-01", Sales: 14000},
		{Month: "2024-02"},
		{Month: "2024-03", Receipts: 3000},
	}, points)
	require.Equal(t, [2]time.Time{day(2024, 1, 1), day(2024, 4, 1)}, repo.salesRange)

	_, err = svc.MonthlyTrend(context.Background(), day(2024, 1, 1), day(2024, 3, 31))
	require.NoError(t, err)
	require.Equal(t, 1, repo.trendCalls)

	_, err = svc.MonthlyTrend(context.Background(), day(2024, 3, 1), day(2024, 1, 1))
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestCreditScoreKeyedPerClient(t *testing.T) {
	repo := &mockRepo{ledgers: []ClientLedger{
		{SalesDate: day(2024, 1, 5), Total: 1000, Received: 1000, PaymentStatus: "paid"},
	}}
	svc, _ := newTestService(t, repo, nil)
	ctx := context.Background()

	report, err := svc.CreditScore(ctx, 7, day(2024, 3, 31))
	require.NoError(t, err)
	require.Equal(t, int64(7), report.ClientID)
	require.Equal(t, GradeA, report.Grade)

	_, err = svc.CreditScore(ctx, 7, day(2024, 3, 31))
	require.NoError(t, err)
	_, err = svc.CreditScore(ctx, 8, day(2024, 3, 31))
	require.NoError(t, err)
	require.Equal(t, 2, repo.creditCalls)
	require.Equal(t, int64(8), repo.creditClient)
}

func TestDashboardReadsPendingLive(t *testing.T) {
	repo := &mockRepo{
		totals: Totals{Sales: 30000, Received: 10000, Outstanding: 20000, OverdueCount: 1, OverdueAmount: 5000},
		receivables: []Receivable{
			{LedgerID: 1, SalesDate: day(2024, 3, 1), Outstanding: 15000},
			{LedgerID: 2, SalesDate: day(2024, 1, 1), DueDate: ptr(day(2024, 2, 1)), Outstanding: 5000},
		},
	}
	pending := &fakePending{total: 2}
	svc, _ := newTestService(t, repo, pending)
	ctx := context.Background()

	dash, err := svc.Dashboard(ctx, day(2024, 3, 31))
	require.NoError(t, err)
	require.Equal(t, repo.totals, dash.Totals)
	require.Equal(t, dash.Totals.Outstanding, dash.Aging.Total)
	require.Equal(t, 2, dash.PendingReconciliations)

	pending.total = 0
	dash, err = svc.Dashboard(ctx, day(2024, 3, 31))
	require.NoError(t, err)
	require.Zero(t, dash.PendingReconciliations)
	require.Equal(t, 1, repo.totalsCalls)
}

func TestDashboardPropagatesErrors(t *testing.T) {
	repo := &mockRepo{totalsErr: errors.New("db down")}
	svc, _ := newTestService(t, repo, nil)

	_, err := svc.Dashboard(context.Background(), day(2024, 3, 31))
	require.EqualError(t, err, "db down")
}

func TestServiceWithoutCacheAlwaysLoads(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, Options{Location: kst})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Aging(ctx, day(2024, 3, 31))
		require.NoError(t, err)
	}
	require.Equal(t, 3, repo.agingCalls)
	require.NoError(t, svc.Invalidate(ctx))
}

func TestHTTPHandlerRoutes(t *testing.T) {
	repo := &mockRepo{
		receivables: []Receivable{{LedgerID: 1, SalesDate: day(2024, 3, 1), Outstanding: 900}},
		sales:       []MonthAmount{{Month: "2024-02", Amount: 100}},
	}
	svc, _ := newTestService(t, repo, &fakePending{})
	h := NewHTTPHandler(nil, svc)
	h.now = func() time.Time { return day(2024, 3, 31) }
	r := chi.NewRouter()
	r.Route("/reports", h.MountRoutes)

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/reports/aging?as_of=2024-03-31", http.StatusOK, `"total":900`},
		{"/reports/aging?as_of=31-03-2024", http.StatusBadRequest, ""},
		{"/reports/trend?from=2024-01&to=2024-03", http.StatusOK, `{"month":"2024-02","sales":100,"receipts":0}`},
		{"/reports/trend?from=2024-1", http.StatusBadRequest, ""},
		{"/reports/trend?from=2024-04&to=2024-01", http.StatusBadRequest, ""},
		{"/reports/credit/abc", http.StatusBadRequest, ""},
		{"/reports/credit/5", http.StatusOK, `"grade":"A"`},
		{"/reports/dashboard", http.StatusOK, `"pending_reconciliations":0`},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.body != "" {
				require.True(t, strings.Contains(rec.Body.String(), tc.body), rec.Body.String())
			}
		})
	}
}
