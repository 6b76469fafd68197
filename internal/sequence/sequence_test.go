package sequence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/shared"
)

// memoryStore emulates a table plus transaction-scoped advisory locks.
type memoryStore struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
	ids   map[Scope][]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{locks: map[int64]*sync.Mutex{}, ids: map[Scope][]string{}}
}

func (s *memoryStore) begin() *memoryTx {
	return &memoryTx{store: s, pending: map[Scope][]string{}}
}

type memoryTx struct {
	store   *memoryStore
	held    []*sync.Mutex
	pending map[Scope][]string
}

func (tx *memoryTx) LockSequence(ctx context.Context, key int64) error {
	tx.store.mu.Lock()
	m, ok := tx.store.locks[key]
	if !ok {
		m = &sync.Mutex{}
		tx.store.locks[key] = m
	}
	tx.store.mu.Unlock()
	m.Lock()
	tx.held = append(tx.held, m)
	return nil
}

func (tx *memoryTx) ExistingNumbers(ctx context.Context, scope Scope, prefix string) ([]string, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var out []string
	for _, ids := range [][]string{tx.store.ids[scope], tx.pending[scope]} {
		for _, id := range ids {
			if strings.HasPrefix(id, prefix) {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (tx *memoryTx) insert(scope Scope, id string) {
	tx.pending[scope] = append(tx.pending[scope], id)
}

func (tx *memoryTx) commit() {
	tx.store.mu.Lock()
	for scope, ids := range tx.pending {
		tx.store.ids[scope] = append(tx.store.ids[scope], ids...)
	}
	tx.store.mu.Unlock()
	tx.release()
}

func (tx *memoryTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held = nil
}

func allocate(t *testing.T, a *Allocator, store *memoryStore, scope Scope, day time.Time) (string, error) {
	t.Helper()
	tx := store.begin()
	id, err := a.Next(context.Background(), tx, scope, day)
	if err != nil {
		tx.release()
		return "", err
	}
	tx.insert(scope, id)
	tx.commit()
	return id, nil
}

var jan15 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func TestNextFormatsPerScope(t *testing.T) {
	a := NewAllocator(time.UTC)
	cases := map[Scope]string{
		ScopeOrder:           "240115-001",
		ScopeSalesLedger:     "SL-20240115-001",
		ScopeSalesReceipt:    "SR-20240115-001",
		ScopePurchaseLedger:  "PL-20240115-001",
		ScopePurchasePayment: "PP-20240115-001",
		ScopeJournal:         "JV-20240115-0001",
	}
	for scope, want := range cases {
		id, err := allocate(t, a, newMemoryStore(), scope, jan15)
		require.NoError(t, err)
		require.Equal(t, want, id, scope)
	}
}

func TestOrderNumbersCapAt999(t *testing.T) {
	a := NewAllocator(time.UTC)
	store := newMemoryStore()
	var last string
	for i := 1; i <= 999; i++ {
		id, err := allocate(t, a, store, ScopeOrder, jan15)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("240115-%03d", i), id)
		last = id
	}
	require.Equal(t, "240115-999", last)

	_, err := allocate(t, a, store, ScopeOrder, jan15)
	require.ErrorIs(t, err, shared.ErrDailyCapacityExceeded)

	next, err := allocate(t, a, store, ScopeOrder, jan15.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, "240116-001", next)
}

func TestNonOrderScopesGrowPastWidth(t *testing.T) {
	a := NewAllocator(time.UTC)
	store := newMemoryStore()
	store.ids[ScopeSalesReceipt] = []string{"SR-20240115-998", "SR-20240115-999"}

	id, err := allocate(t, a, store, ScopeSalesReceipt, jan15)
	require.NoError(t, err)
	require.Equal(t, "SR-20240115-1000", id)
}

func TestNextIgnoresMalformedSuffixes(t *testing.T) {
	a := NewAllocator(time.UTC)
	store := newMemoryStore()
	store.ids[ScopeOrder] = []string{"240115-abc", "240115-", "240115-004", "240115-00x"}

	id, err := allocate(t, a, store, ScopeOrder, jan15)
	require.NoError(t, err)
	require.Equal(t, "240115-005", id)
}

func TestNextUsesBusinessTimezone(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	a := NewAllocator(kst)
	late := time.Date(2024, 1, 14, 16, 30, 0, 0, time.UTC)

	id, err := allocate(t, a, newMemoryStore(), ScopeOrder, late)
	require.NoError(t, err)
	require.Equal(t, "240115-001", id)
}

func TestConcurrentAllocationsAreUnique(t *testing.T) {
	a := NewAllocator(time.UTC)
	store := newMemoryStore()
	const workers = 64

	var wg sync.WaitGroup
	results := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := store.begin()
			id, err := a.Next(context.Background(), tx, ScopeSalesLedger, jan15)
			if err != nil {
				tx.release()
				errs <- err
				return
			}
			tx.insert(ScopeSalesLedger, id)
			tx.commit()
			results <- id
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := map[int]bool{}
	for id := range results {
		n, ok := Suffix(id, "SL-20240115-")
		require.True(t, ok, id)
		require.False(t, seen[n], "duplicate %s", id)
		seen[n] = true
	}
	require.Len(t, seen, workers)
	for i := 1; i <= workers; i++ {
		require.True(t, seen[i], "missing suffix %d", i)
	}
}

func TestSequentialAllocationsStrictlyIncrease(t *testing.T) {
	a := NewAllocator(time.UTC)
	store := newMemoryStore()
	prev := 0
	for i := 0; i < 25; i++ {
		id, err := allocate(t, a, store, ScopeJournal, jan15)
		require.NoError(t, err)
		n, ok := Suffix(id, Prefix(ScopeJournal, jan15))
		require.True(t, ok)
		require.Greater(t, n, prev)
		prev = n
	}
}

func TestUnknownScope(t *testing.T) {
	a := NewAllocator(time.UTC)
	_, err := a.Next(context.Background(), newMemoryStore().begin(), Scope("invoice"), jan15)
	require.ErrorIs(t, err, shared.ErrValidation)
}
