// Package sequence allocates per-day document numbers (orders, ledgers,
// receipts, vouchers). Allocation must run inside the transaction that inserts
// the row consuming the number: the day lock is transaction scoped, so two
// callers can only observe the same maximum if one of them commits first.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/printhub/backoffice/internal/shared"
)

// Scope names an independent numbering space.
type Scope string

const (
	ScopeOrder           Scope = "order"
	ScopeSalesLedger     Scope = "ledger"
	ScopeSalesReceipt    Scope = "receipt"
	ScopePurchaseLedger  Scope = "purchase_ledger"
	ScopePurchasePayment Scope = "purchase_payment"
	ScopeJournal         Scope = "journal"
)

type format struct {
	prefix   string
	layout   string
	width    int
	capacity int
}

var formats = map[Scope]format{
	ScopeOrder:           {layout: "060102", width: 3, capacity: 999},
	ScopeSalesLedger:     {prefix: "SL-", layout: "20060102", width: 3},
	ScopeSalesReceipt:    {prefix: "SR-", layout: "20060102", width: 3},
	ScopePurchaseLedger:  {prefix: "PL-", layout: "20060102", width: 3},
	ScopePurchasePayment: {prefix: "PP-", layout: "20060102", width: 3},
	ScopeJournal:         {prefix: "JV-", layout: "20060102", width: 4},
}

// Store is bound to the caller's transaction.
type Store interface {
	// LockSequence blocks until the transaction-scoped lock for key is held.
	LockSequence(ctx context.Context, key int64) error
	// ExistingNumbers returns every identifier of scope starting with prefix.
	ExistingNumbers(ctx context.Context, scope Scope, prefix string) ([]string, error)
}

// Allocator hands out identifiers. Calendar days are evaluated in loc.
type Allocator struct {
	loc *time.Location
}

// NewAllocator builds an allocator for the business timezone.
func NewAllocator(loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	return &Allocator{loc: loc}
}

// Location returns the business timezone.
func (a *Allocator) Location() *time.Location {
	return a.loc
}

// Next returns the next identifier of scope for the calendar day containing date.
func (a *Allocator) Next(ctx context.Context, store Store, scope Scope, date time.Time) (string, error) {
	f, ok := formats[scope]
	if !ok {
		return "", fmt.Errorf("%w: unknown sequence scope %q", shared.ErrValidation, scope)
	}
	day := date.In(a.loc)
	prefix := dayPrefix(f, day)

	if err := store.LockSequence(ctx, LockKey(scope, day)); err != nil {
		return "", fmt.Errorf("sequence: lock %s %s: %w", scope, prefix, err)
	}
	existing, err := store.ExistingNumbers(ctx, scope, prefix)
	if err != nil {
		return "", fmt.Errorf("sequence: scan %s: %w", prefix, err)
	}

	next := maxSuffix(existing, prefix) + 1
	if f.capacity > 0 && next > f.capacity {
		return "", fmt.Errorf("%w: %s has reached %d", shared.ErrDailyCapacityExceeded, prefix, f.capacity)
	}
	return prefix + pad(next, f.width), nil
}

// Prefix returns the identifier prefix of scope for the given day.
func Prefix(scope Scope, day time.Time) string {
	f, ok := formats[scope]
	if !ok {
		return ""
	}
	return dayPrefix(f, day)
}

// LockKey derives the advisory lock key for (scope, day).
func LockKey(scope Scope, day time.Time) int64 {
	return shared.AdvisoryLockKey(string(scope), day.Format("20060102"))
}

// Suffix extracts the numeric suffix of id under prefix.
func Suffix(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	raw := id[len(prefix):]
	if raw == "" {
		return 0, false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func dayPrefix(f format, day time.Time) string {
	return f.prefix + day.Format(f.layout) + "-"
}

func maxSuffix(ids []string, prefix string) int {
	highest := 0
	for _, id := range ids {
		if n, ok := Suffix(id, prefix); ok && n > highest {
			highest = n
		}
	}
	return highest
}

func pad(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
