package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	rows   []Pending
	nextID int64
}

func (m *memStore) Record(ctx context.Context, e Effect, cause string, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Kind == e.Kind && m.rows[i].RefID == e.RefID && m.rows[i].Status == StatusPending {
			m.rows[i].Attempts++
			m.rows[i].LastError = cause
			m.rows[i].NextAttemptAt = next
			return nil
		}
	}
	m.nextID++
	m.rows = append(m.rows, Pending{ID: m.nextID, Kind: e.Kind, RefID: e.RefID, Payload: e.Payload, Status: StatusPending, Attempts: 1, LastError: cause, NextAttemptAt: next})
	return nil
}

func (m *memStore) Resolve(ctx context.Context, kind Kind, refID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].Kind == kind && m.rows[i].RefID == refID && m.rows[i].Status == StatusPending {
			m.rows[i].Status = StatusResolved
		}
	}
	return nil
}

func (m *memStore) Due(ctx context.Context, now time.Time, limit int) ([]Pending, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Pending
	for _, p := range m.rows {
		if p.Status == StatusPending && !p.NextAttemptAt.After(now) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) update(id int64, fn func(*Pending)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			fn(&m.rows[i])
			return nil
		}
	}
	return errors.New("not found")
}

func (m *memStore) Reschedule(ctx context.Context, id int64, cause string, next time.Time) error {
	return m.update(id, func(p *Pending) {
		p.Attempts++
		p.LastError = cause
		p.NextAttemptAt = next
	})
}

func (m *memStore) Abandon(ctx context.Context, id int64, cause string) error {
	return m.update(id, func(p *Pending) {
		p.Attempts++
		p.LastError = cause
		p.Status = StatusAbandoned
	})
}

func (m *memStore) MarkResolved(ctx context.Context, id int64) error {
	return m.update(id, func(p *Pending) { p.Status = StatusResolved })
}

func (m *memStore) List(ctx context.Context, status Status, limit, offset int) ([]Pending, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Pending
	for _, p := range m.rows {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type failingQueue struct{ err error }

func (q failingQueue) Enqueue(ctx context.Context, e Effect) error { return q.err }

type recordingQueue struct{ got []Effect }

func (q *recordingQueue) Enqueue(ctx context.Context, e Effect) error {
	q.got = append(q.got, e)
	return nil
}

func newTestDispatcher(t *testing.T, store Store, queue Queue) (*Dispatcher, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(store, queue, logger, metrics, Config{MaxAttempts: 3, BaseBackoff: time.Minute, MaxBackoff: 10 * time.Minute})
	return d, metrics
}

func TestRunSuccessLeavesNothingPending(t *testing.T) {
	store := &memStore{}
	d, metrics := newTestDispatcher(t, store, nil)
	var seen Effect
	d.Register(KindSalesJournal, func(ctx context.Context, e Effect) error {
		seen = e
		return nil
	})

	d.Run(context.Background(), NewEffect(KindSalesJournal, 7, map[string]string{"note": "x"}))

	require.Equal(t, int64(7), seen.RefID)
	require.Empty(t, store.rows)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.effects.WithLabelValues(string(KindSalesJournal), outcomeApplied)))
}

func TestRunFailureIsRecordedNotReturned(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDispatcher(t, store, nil)
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	d.WithNow(func() time.Time { return now })
	d.Register(KindReceiptJournal, func(ctx context.Context, e Effect) error { return errors.New("db down") })

	d.Run(context.Background(), NewEffect(KindReceiptJournal, 3, nil))
	d.Run(context.Background(), NewEffect(KindReceiptJournal, 3, nil))

	require.Len(t, store.rows, 1)
	row := store.rows[0]
	require.Equal(t, StatusPending, row.Status)
	require.Equal(t, 2, row.Attempts)
	require.Equal(t, "db down", row.LastError)
	require.Equal(t, now.Add(time.Minute), row.NextAttemptAt)
}

func TestDispatchWithoutQueueRunsInline(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDispatcher(t, store, nil)
	calls := 0
	d.Register(KindFileRelocation, func(ctx context.Context, e Effect) error {
		calls++
		return nil
	})
	d.Dispatch(context.Background(), NewEffect(KindFileRelocation, 1, nil))
	require.Equal(t, 1, calls)
}

func TestDispatchEnqueues(t *testing.T) {
	q := &recordingQueue{}
	d, _ := newTestDispatcher(t, &memStore{}, q)
	d.Dispatch(context.Background(), NewEffect(KindLedgerFromOrder, 11, nil))
	require.Len(t, q.got, 1)
	require.Equal(t, KindLedgerFromOrder, q.got[0].Kind)
}

func TestDispatchEnqueueFailureIsPersisted(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDispatcher(t, store, failingQueue{err: errors.New("redis unavailable")})
	d.Dispatch(context.Background(), NewEffect(KindLedgerFromOrder, 11, nil))
	require.Len(t, store.rows, 1)
	require.Contains(t, store.rows[0].LastError, "redis unavailable")
}

func TestHandleResolvesOpenRow(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDispatcher(t, store, nil)
	fail := true
	d.Register(KindAutoReceipt, func(ctx context.Context, e Effect) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})
	e := NewEffect(KindAutoReceipt, 5, nil)
	require.Error(t, d.Handle(context.Background(), e))
	d.Fail(context.Background(), e, errors.New("boom"))
	require.Equal(t, StatusPending, store.rows[0].Status)

	fail = false
	require.NoError(t, d.Handle(context.Background(), e))
	require.Equal(t, StatusResolved, store.rows[0].Status)
}

func TestSweepRetriesReschedulesAndAbandons(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDispatcher(t, store, nil)
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	d.WithNow(func() time.Time { return now })

	attempts := map[int64]int{}
	d.Register(KindSalesJournal, func(ctx context.Context, e Effect) error {
		attempts[e.RefID]++
		if e.RefID == 1 && attempts[e.RefID] >= 2 {
			return nil
		}
		return errors.New("still failing")
	})

	d.Run(context.Background(), NewEffect(KindSalesJournal, 1, nil))
	d.Run(context.Background(), NewEffect(KindSalesJournal, 2, nil))

	res, err := d.Sweep(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, res, "nothing due before backoff elapses")

	now = now.Add(time.Minute)
	res, err = d.Sweep(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Attempted: 2, Resolved: 1, Failed: 1}, res)
	require.Equal(t, StatusResolved, store.rows[0].Status)
	require.Equal(t, 2, store.rows[1].Attempts)
	require.Equal(t, now.Add(2*time.Minute), store.rows[1].NextAttemptAt)

	now = now.Add(2 * time.Minute)
	res, err = d.Sweep(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Attempted: 1, Abandoned: 1}, res)
	require.Equal(t, StatusAbandoned, store.rows[1].Status)
}

func TestSweepAbandonsUnknownKind(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDispatcher(t, store, nil)
	d.Run(context.Background(), NewEffect(Kind("legacy.effect"), 1, nil))
	d.WithNow(func() time.Time { return time.Now().Add(time.Hour) })

	res, err := d.Sweep(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, res.Abandoned)
}

func TestBackoffIsCapped(t *testing.T) {
	d, _ := newTestDispatcher(t, &memStore{}, nil)
	require.Equal(t, time.Minute, d.backoff(1))
	require.Equal(t, 4*time.Minute, d.backoff(3))
	require.Equal(t, 10*time.Minute, d.backoff(12))
}

func TestEffectDecode(t *testing.T) {
	type payload struct {
		OrderNumber string `json:"order_number"`
	}
	e := NewEffect(KindFileRelocation, 9, payload{OrderNumber: "240115-001"})
	var got payload
	require.NoError(t, e.Decode(&got))
	require.Equal(t, "240115-001", got.OrderNumber)
	require.Equal(t, "files.relocate:9", e.String())
}
