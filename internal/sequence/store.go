package sequence

import (
	"context"
	"fmt"

	"github.com/printhub/backoffice/internal/platform/db"
)

var columns = map[Scope]struct{ table, column string }{
	ScopeOrder:           {"orders", "order_number"},
	ScopeSalesLedger:     {"sales_ledgers", "ledger_number"},
	ScopeSalesReceipt:    {"sales_receipts", "receipt_number"},
	ScopePurchaseLedger:  {"purchase_ledgers", "ledger_number"},
	ScopePurchasePayment: {"purchase_payments", "payment_number"},
	ScopeJournal:         {"journals", "voucher_no"},
}

// PGStore implements Store on a pgx transaction using pg_advisory_xact_lock.
type PGStore struct {
	q db.DBTX
}

// NewPGStore binds the store to q, which should be a pgx.Tx.
func NewPGStore(q db.DBTX) *PGStore {
	return &PGStore{q: q}
}

// LockSequence acquires the advisory lock, released at commit or rollback.
func (s *PGStore) LockSequence(ctx context.Context, key int64) error {
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}

// ExistingNumbers lists identifiers of the scope's table that start with prefix.
func (s *PGStore) ExistingNumbers(ctx context.Context, scope Scope, prefix string) ([]string, error) {
	target, ok := columns[scope]
	if !ok {
		return nil, fmt.Errorf("sequence: no table for scope %q", scope)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s LIKE $1`, target.column, target.table, target.column)
	rows, err := s.q.Query(ctx, query, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
