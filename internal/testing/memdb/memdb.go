// Package memdb is an in-memory stand-in for the PostgreSQL repositories used
// by service and end-to-end tests. A transaction holds the database mutex for
// its whole duration, which also serialises sequence allocation the way the
// transaction-scoped advisory lock does. Failed transactions and savepoints
// restore the snapshot taken when they began.
package memdb

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/orders"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/sequence"
)

type state struct {
	lastID int64

	clients map[int64]clients.Client

	orders     map[int64]orders.Order
	orderItems map[int64]orders.Item
	shippings  map[int64]orders.Shipping
	history    []orders.ProcessHistory

	sales         map[int64]ledger.SalesLedger
	salesItems    map[int64]ledger.SalesLedgerItem
	receipts      map[int64]ledger.SalesReceipt
	purchases     map[int64]ledger.PurchaseLedger
	purchaseItems map[int64]ledger.PurchaseItem
	payments      map[int64]ledger.PurchasePayment

	journals map[int64]journal.Journal

	pending     map[int64]reconcile.Pending
	idempotency map[string]time.Time
}

func newState() *state {
	return &state{
		clients:       map[int64]clients.Client{},
		orders:        map[int64]orders.Order{},
		orderItems:    map[int64]orders.Item{},
		shippings:     map[int64]orders.Shipping{},
		sales:         map[int64]ledger.SalesLedger{},
		salesItems:    map[int64]ledger.SalesLedgerItem{},
		receipts:      map[int64]ledger.SalesReceipt{},
		purchases:     map[int64]ledger.PurchaseLedger{},
		purchaseItems: map[int64]ledger.PurchaseItem{},
		payments:      map[int64]ledger.PurchasePayment{},
		journals:      map[int64]journal.Journal{},
		pending:       map[int64]reconcile.Pending{},
		idempotency:   map[string]time.Time{},
	}
}

func (s *state) clone() *state {
	return &state{
		lastID:        s.lastID,
		clients:       maps.Clone(s.clients),
		orders:        maps.Clone(s.orders),
		orderItems:    maps.Clone(s.orderItems),
		shippings:     maps.Clone(s.shippings),
		history:       slices.Clone(s.history),
		sales:         maps.Clone(s.sales),
		salesItems:    maps.Clone(s.salesItems),
		receipts:      maps.Clone(s.receipts),
		purchases:     maps.Clone(s.purchases),
		purchaseItems: maps.Clone(s.purchaseItems),
		payments:      maps.Clone(s.payments),
		journals:      maps.Clone(s.journals),
		pending:       maps.Clone(s.pending),
		idempotency:   maps.Clone(s.idempotency),
	}
}

func (s *state) nextID() int64 {
	s.lastID++
	return s.lastID
}

type fault struct {
	remaining int
	err       error
}

// DB holds every table. Use the accessor methods to obtain repositories.
type DB struct {
	mu     sync.Mutex
	st     *state
	faults map[string]*fault
	calls  map[string]int
	now    func() time.Time
}

// New returns an empty database.
func New() *DB {
	return &DB{st: newState(), faults: map[string]*fault{}, calls: map[string]int{}, now: time.Now}
}

// WithNow overrides the clock used for created_at columns.
func (d *DB) WithNow(now func() time.Time) *DB {
	d.now = now
	return d
}

// Fail makes the next n calls of op return err. Fault state survives rollbacks.
func (d *DB) Fail(op string, n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = &fault{remaining: n, err: err}
}

// Calls reports how often op was attempted.
func (d *DB) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// check must be called with mu held.
func (d *DB) check(op string) error {
	d.calls[op]++
	f, ok := d.faults[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	f.remaining--
	return f.err
}

// inTx runs fn under the lock against a snapshot that is kept only when fn succeeds.
func (d *DB) inTx(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.savepoint(fn)
}

// savepoint must be called with mu held.
func (d *DB) savepoint(fn func() error) error {
	snap := d.st.clone()
	if err := fn(); err != nil {
		d.st = snap
		return err
	}
	return nil
}

func (d *DB) locked(fn func(*state)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.st)
}

// seqStore implements sequence.Store over the locked state.
type seqStore struct {
	d *DB
}

func (s seqStore) LockSequence(context.Context, int64) error {
	return s.d.check("sequence.lock")
}

func (s seqStore) ExistingNumbers(_ context.Context, scope sequence.Scope, prefix string) ([]string, error) {
	if err := s.d.check("sequence.scan"); err != nil {
		return nil, err
	}
	var out []string
	add := func(n string) {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	st := s.d.st
	switch scope {
	case sequence.ScopeOrder:
		for _, o := range st.orders {
			add(o.OrderNumber)
		}
	case sequence.ScopeSalesLedger:
		for _, l := range st.sales {
			add(l.LedgerNumber)
		}
	case sequence.ScopeSalesReceipt:
		for _, r := range st.receipts {
			add(r.ReceiptNumber)
		}
	case sequence.ScopePurchaseLedger:
		for _, l := range st.purchases {
			add(l.LedgerNumber)
		}
	case sequence.ScopePurchasePayment:
		for _, p := range st.payments {
			add(p.PaymentNumber)
		}
	case sequence.ScopeJournal:
		for _, j := range st.journals {
			add(j.VoucherNo)
		}
	default:
		return nil, fmt.Errorf("memdb: no table for scope %q", scope)
	}
	return out, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
