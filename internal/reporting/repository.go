package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository runs the report aggregates in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// OpenReceivables lists live sales ledgers with an outstanding balance.
func (r *PGRepository) OpenReceivables(ctx context.Context, asOf time.Time) ([]Receivable, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, client_id, client_name, sales_date, due_date, outstanding_amount, payment_status
FROM sales_ledgers
WHERE sales_status <> 'CANCELLED' AND outstanding_amount > 0 AND sales_date <= $1
ORDER BY sales_date, id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receivable
	for rows.Next() {
		var rec Receivable
		if err := rows.Scan(&rec.LedgerID, &rec.ClientID, &rec.ClientName, &rec.SalesDate, &rec.DueDate,
			&rec.Outstanding, &rec.PaymentStatus); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MonthlySales sums live sales ledger totals per month in [from, to).
func (r *PGRepository) MonthlySales(ctx context.Context, from, to time.Time) ([]MonthAmount, error) {
	return r.monthly(ctx, `SELECT to_char(sales_date, 'YYYY-MM') AS month, COALESCE(SUM(total_amount), 0)
FROM sales_ledgers
WHERE sales_status <> 'CANCELLED' AND sales_date >= $1 AND sales_date < $2
GROUP BY month ORDER BY month`, from, to)
}

// MonthlyReceipts sums receipts against live ledgers per month in [from, to).
func (r *PGRepository) MonthlyReceipts(ctx context.Context, from, to time.Time) ([]MonthAmount, error) {
	return r.monthly(ctx, `SELECT to_char(r.receipt_date, 'YYYY-MM') AS month, COALESCE(SUM(r.amount), 0)
FROM sales_receipts r
JOIN sales_ledgers l ON l.id = r.sales_ledger_id
WHERE l.sales_status <> 'CANCELLED' AND r.receipt_date >= $1 AND r.receipt_date < $2
GROUP BY month ORDER BY month`, from, to)
}

func (r *PGRepository) monthly(ctx context.Context, query string, from, to time.Time) ([]MonthAmount, error) {
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthAmount, error) {
		var m MonthAmount
		err := row.Scan(&m.Month, &m.Amount)
		return m, err
	})
}

// ClientLedgers returns the live ledgers of one client with their last receipt date.
func (r *PGRepository) ClientLedgers(ctx context.Context, clientID int64, asOf time.Time) ([]ClientLedger, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.sales_date, l.due_date, l.total_amount, l.received_amount,
       l.outstanding_amount, l.payment_status,
       (SELECT MAX(r.receipt_date) FROM sales_receipts r WHERE r.sales_ledger_id = l.id)
FROM sales_ledgers l
WHERE l.client_id = $1 AND l.sales_status <> 'CANCELLED' AND l.sales_date <= $2
ORDER BY l.sales_date, l.id`, clientID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ClientLedger
	for rows.Next() {
		var l ClientLedger
		if err := rows.Scan(&l.LedgerID, &l.SalesDate, &l.DueDate, &l.Total, &l.Received, &l.Outstanding,
			&l.PaymentStatus, &l.LastReceiptAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Totals sums live sales ledgers dated on or before asOf.
func (r *PGRepository) Totals(ctx context.Context, asOf time.Time) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0), COALESCE(SUM(received_amount), 0),
       COALESCE(SUM(outstanding_amount), 0),
       COUNT(*) FILTER (WHERE payment_status = 'overdue'),
       COALESCE(SUM(outstanding_amount) FILTER (WHERE payment_status = 'overdue'), 0)
FROM sales_ledgers
WHERE sales_status <> 'CANCELLED' AND sales_date <= $1`, asOf).
		Scan(&t.Sales, &t.Received, &t.Outstanding, &t.OverdueCount, &t.OverdueAmount)
	return t, err
}
