package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhub/backoffice/internal/platform/db"
	"github.com/printhub/backoffice/internal/sequence"
)

// PGRepository persists ledgers in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepository struct {
	*sequence.PGStore
	tx pgx.Tx
}

// Bind returns ledger writes bound to an existing transaction.
func Bind(tx pgx.Tx) TxRepository {
	return &txRepository{PGStore: sequence.NewPGStore(tx), tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Bind(tx))
	})
}

const salesColumns = `id, ledger_number, order_id, origin, client_id, client_name, sales_date, supply_amount, vat_amount,
total_amount, received_amount, outstanding_amount, payment_status, sales_status, payment_method, due_date, memo,
confirmed_by, confirmed_at, cancelled_at, cancel_reason, created_by, created_at, updated_at`

func scanSales(row pgx.Row) (SalesLedger, error) {
	var l SalesLedger
	err := row.Scan(&l.ID, &l.LedgerNumber, &l.OrderID, &l.Origin, &l.ClientID, &l.ClientName, &l.SalesDate,
		&l.SupplyAmount, &l.VATAmount, &l.TotalAmount, &l.ReceivedAmount, &l.OutstandingAmount, &l.PaymentStatus,
		&l.SalesStatus, &l.PaymentMethod, &l.DueDate, &l.Memo, &l.ConfirmedBy, &l.ConfirmedAt, &l.CancelledAt,
		&l.CancelReason, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesLedger{}, ErrLedgerNotFound
	}
	return l, err
}

const purchaseColumns = `id, ledger_number, supplier_name, purchase_date, supply_amount, vat_amount, total_amount,
paid_amount, outstanding_amount, payment_status, purchase_status, payment_method, due_date, memo, confirmed_by,
confirmed_at, cancelled_at, cancel_reason, created_by, created_at, updated_at`

func scanPurchase(row pgx.Row) (PurchaseLedger, error) {
	var l PurchaseLedger
	err := row.Scan(&l.ID, &l.LedgerNumber, &l.SupplierName, &l.PurchaseDate, &l.SupplyAmount, &l.VATAmount,
		&l.TotalAmount, &l.PaidAmount, &l.OutstandingAmount, &l.PaymentStatus, &l.PurchaseStatus, &l.PaymentMethod,
		&l.DueDate, &l.Memo, &l.ConfirmedBy, &l.ConfirmedAt, &l.CancelledAt, &l.CancelReason, &l.CreatedBy,
		&l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseLedger{}, ErrLedgerNotFound
	}
	return l, err
}

func (r *txRepository) InsertSalesLedger(ctx context.Context, l SalesLedger) (SalesLedger, error) {
	created, err := scanSales(r.tx.QueryRow(ctx, `INSERT INTO sales_ledgers (ledger_number, order_id, origin, client_id,
client_name, sales_date, supply_amount, vat_amount, total_amount, received_amount, outstanding_amount, payment_status,
sales_status, payment_method, due_date, memo, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17) RETURNING `+salesColumns,
		l.LedgerNumber, l.OrderID, l.Origin, l.ClientID, l.ClientName, l.SalesDate, l.SupplyAmount, l.VATAmount,
		l.TotalAmount, l.ReceivedAmount, l.OutstandingAmount, l.PaymentStatus, l.SalesStatus, l.PaymentMethod,
		l.DueDate, l.Memo, l.CreatedBy))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_sales_ledgers_order") {
			return SalesLedger{}, ErrOrderAlreadyLedgered
		}
		return SalesLedger{}, fmt.Errorf("ledger: insert sales ledger: %w", err)
	}
	if err := r.insertSalesItems(ctx, created.ID, l.Items); err != nil {
		return SalesLedger{}, err
	}
	created.Items = l.Items
	for i := range created.Items {
		created.Items[i].SalesLedgerID = created.ID
	}
	return created, nil
}

func (r *txRepository) insertSalesItems(ctx context.Context, ledgerID int64, items []SalesLedgerItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO sales_ledger_items (sales_ledger_id, product_name, quantity, unit_price, amount) VALUES ($1,$2,$3,$4,$5)`,
			ledgerID, it.ProductName, it.Quantity, it.UnitPrice, it.Amount)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("ledger: insert items: %w", err)
	}
	return nil
}

func (r *txRepository) LockSalesLedger(ctx context.Context, id int64) (SalesLedger, error) {
	return scanSales(r.tx.QueryRow(ctx, `SELECT `+salesColumns+` FROM sales_ledgers WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) LockSalesLedgerByOrder(ctx context.Context, orderID int64) (SalesLedger, error) {
	return scanSales(r.tx.QueryRow(ctx, `SELECT `+salesColumns+` FROM sales_ledgers WHERE order_id=$1 FOR UPDATE`, orderID))
}

func (r *txRepository) UpdateSalesLedger(ctx context.Context, l SalesLedger) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_ledgers SET supply_amount=$2, vat_amount=$3, total_amount=$4,
received_amount=$5, outstanding_amount=$6, payment_status=$7, sales_status=$8, due_date=$9, memo=$10,
confirmed_by=$11, confirmed_at=$12, cancelled_at=$13, cancel_reason=$14, updated_at=NOW()
WHERE id=$1`, l.ID, l.SupplyAmount, l.VATAmount, l.TotalAmount, l.ReceivedAmount, l.OutstandingAmount,
		l.PaymentStatus, l.SalesStatus, l.DueDate, l.Memo, l.ConfirmedBy, l.ConfirmedAt, l.CancelledAt, l.CancelReason)
	if err != nil {
		return fmt.Errorf("ledger: update sales ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (r *txRepository) ReplaceSalesLedgerItems(ctx context.Context, ledgerID int64, items []SalesLedgerItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM sales_ledger_items WHERE sales_ledger_id=$1`, ledgerID); err != nil {
		return fmt.Errorf("ledger: clear items: %w", err)
	}
	return r.insertSalesItems(ctx, ledgerID, items)
}

func (r *txRepository) InsertSalesReceipt(ctx context.Context, rc SalesReceipt) (SalesReceipt, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_receipts (receipt_number, sales_ledger_id, amount, payment_method, receipt_date, memo, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		rc.ReceiptNumber, rc.SalesLedgerID, rc.Amount, rc.PaymentMethod, rc.ReceiptDate, rc.Memo, rc.CreatedBy).Scan(&rc.ID, &rc.CreatedAt)
	if err != nil {
		return SalesReceipt{}, fmt.Errorf("ledger: insert receipt: %w", err)
	}
	return rc, nil
}

func (r *txRepository) CountSalesReceipts(ctx context.Context, ledgerID int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM sales_receipts WHERE sales_ledger_id=$1`, ledgerID).Scan(&n)
	return n, err
}

func (r *txRepository) InsertPurchaseLedger(ctx context.Context, l PurchaseLedger) (PurchaseLedger, error) {
	created, err := scanPurchase(r.tx.QueryRow(ctx, `INSERT INTO purchase_ledgers (ledger_number, supplier_name,
purchase_date, supply_amount, vat_amount, total_amount, paid_amount, outstanding_amount, payment_status,
purchase_status, payment_method, due_date, memo, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING `+purchaseColumns,
		l.LedgerNumber, l.SupplierName, l.PurchaseDate, l.SupplyAmount, l.VATAmount, l.TotalAmount, l.PaidAmount,
		l.OutstandingAmount, l.PaymentStatus, l.PurchaseStatus, l.PaymentMethod, l.DueDate, l.Memo, l.CreatedBy))
	if err != nil {
		return PurchaseLedger{}, fmt.Errorf("ledger: insert purchase ledger: %w", err)
	}
	if len(l.Items) > 0 {
		batch := &pgx.Batch{}
		for _, it := range l.Items {
			batch.Queue(`INSERT INTO purchase_ledger_items (purchase_ledger_id, product_name, quantity, unit_price, amount) VALUES ($1,$2,$3,$4,$5)`,
				created.ID, it.ProductName, it.Quantity, it.UnitPrice, it.Amount)
		}
		if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
			return PurchaseLedger{}, fmt.Errorf("ledger: insert purchase items: %w", err)
		}
	}
	created.Items = l.Items
	return created, nil
}

func (r *txRepository) LockPurchaseLedger(ctx context.Context, id int64) (PurchaseLedger, error) {
	return scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchase_ledgers WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdatePurchaseLedger(ctx context.Context, l PurchaseLedger) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_ledgers SET paid_amount=$2, outstanding_amount=$3, payment_status=$4,
purchase_status=$5, confirmed_by=$6, confirmed_at=$7, cancelled_at=$8, cancel_reason=$9, updated_at=NOW()
WHERE id=$1`, l.ID, l.PaidAmount, l.OutstandingAmount, l.PaymentStatus, l.PurchaseStatus, l.ConfirmedBy,
		l.ConfirmedAt, l.CancelledAt, l.CancelReason)
	if err != nil {
		return fmt.Errorf("ledger: update purchase ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func (r *txRepository) InsertPurchasePayment(ctx context.Context, p PurchasePayment) (PurchasePayment, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_payments (payment_number, purchase_ledger_id, amount, payment_method, payment_date, memo, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		p.PaymentNumber, p.PurchaseLedgerID, p.Amount, p.PaymentMethod, p.PaymentDate, p.Memo, p.CreatedBy).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return PurchasePayment{}, fmt.Errorf("ledger: insert purchase payment: %w", err)
	}
	return p, nil
}

// GetSalesLedger loads a sales ledger with items and receipts.
func (r *PGRepository) GetSalesLedger(ctx context.Context, id int64) (SalesLedger, error) {
	l, err := scanSales(r.pool.QueryRow(ctx, `SELECT `+salesColumns+` FROM sales_ledgers WHERE id=$1`, id))
	if err != nil {
		return SalesLedger{}, err
	}
	return r.withSalesChildren(ctx, l)
}

// GetSalesLedgerByOrder loads the ledger of an order.
func (r *PGRepository) GetSalesLedgerByOrder(ctx context.Context, orderID int64) (SalesLedger, error) {
	l, err := scanSales(r.pool.QueryRow(ctx, `SELECT `+salesColumns+` FROM sales_ledgers WHERE order_id=$1`, orderID))
	if err != nil {
		return SalesLedger{}, err
	}
	return r.withSalesChildren(ctx, l)
}

func (r *PGRepository) withSalesChildren(ctx context.Context, l SalesLedger) (SalesLedger, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sales_ledger_id, product_name, quantity, unit_price, amount FROM sales_ledger_items WHERE sales_ledger_id=$1 ORDER BY id`, l.ID)
	if err != nil {
		return SalesLedger{}, err
	}
	for rows.Next() {
		var it SalesLedgerItem
		if err := rows.Scan(&it.ID, &it.SalesLedgerID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			rows.Close()
			return SalesLedger{}, err
		}
		l.Items = append(l.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SalesLedger{}, err
	}
	rows, err = r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM sales_receipts WHERE sales_ledger_id=$1 ORDER BY id`, l.ID)
	if err != nil {
		return SalesLedger{}, err
	}
	defer rows.Close()
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return SalesLedger{}, err
		}
		l.Receipts = append(l.Receipts, rc)
	}
	return l, rows.Err()
}

const receiptColumns = `id, receipt_number, sales_ledger_id, amount, payment_method, receipt_date, memo, created_by, created_at`

func scanReceipt(row pgx.Row) (SalesReceipt, error) {
	var rc SalesReceipt
	err := row.Scan(&rc.ID, &rc.ReceiptNumber, &rc.SalesLedgerID, &rc.Amount, &rc.PaymentMethod, &rc.ReceiptDate, &rc.Memo, &rc.CreatedBy, &rc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesReceipt{}, ErrReceiptNotFound
	}
	return rc, err
}

// GetSalesReceipt loads one receipt.
func (r *PGRepository) GetSalesReceipt(ctx context.Context, id int64) (SalesReceipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, `SELECT `+receiptColumns+` FROM sales_receipts WHERE id=$1`, id))
}

// ListSalesLedgers returns a filtered page of sales ledgers without children.
func (r *PGRepository) ListSalesLedgers(ctx context.Context, f ListFilter) ([]SalesLedger, int, error) {
	where, args := buildFilter(f, "sales_status", "sales_date", "client_name")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_ledgers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM sales_ledgers%s ORDER BY sales_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		salesColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []SalesLedger
	for rows.Next() {
		l, err := scanSales(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// GetPurchaseLedger loads a purchase ledger with items and payments.
func (r *PGRepository) GetPurchaseLedger(ctx context.Context, id int64) (PurchaseLedger, error) {
	l, err := scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchase_ledgers WHERE id=$1`, id))
	if err != nil {
		return PurchaseLedger{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_ledger_id, product_name, quantity, unit_price, amount FROM purchase_ledger_items WHERE purchase_ledger_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseLedger{}, err
	}
	for rows.Next() {
		var it PurchaseItem
		if err := rows.Scan(&it.ID, &it.PurchaseLedgerID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Amount); err != nil {
			rows.Close()
			return PurchaseLedger{}, err
		}
		l.Items = append(l.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return PurchaseLedger{}, err
	}
	rows, err = r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM purchase_payments WHERE purchase_ledger_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseLedger{}, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return PurchaseLedger{}, err
		}
		l.Payments = append(l.Payments, p)
	}
	return l, rows.Err()
}

const paymentColumns = `id, payment_number, purchase_ledger_id, amount, payment_method, payment_date, memo, created_by, created_at`

func scanPayment(row pgx.Row) (PurchasePayment, error) {
	var p PurchasePayment
	err := row.Scan(&p.ID, &p.PaymentNumber, &p.PurchaseLedgerID, &p.Amount, &p.PaymentMethod, &p.PaymentDate, &p.Memo, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchasePayment{}, ErrReceiptNotFound
	}
	return p, err
}

// GetPurchasePayment loads one purchase payment.
func (r *PGRepository) GetPurchasePayment(ctx context.Context, id int64) (PurchasePayment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM purchase_payments WHERE id=$1`, id))
}

// ListPurchaseLedgers returns a filtered page of purchase ledgers.
func (r *PGRepository) ListPurchaseLedgers(ctx context.Context, f ListFilter) ([]PurchaseLedger, int, error) {
	f.ClientID = nil
	where, args := buildFilter(f, "purchase_status", "purchase_date", "supplier_name")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_ledgers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM purchase_ledgers%s ORDER BY purchase_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		purchaseColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseLedger
	for rows.Next() {
		l, err := scanPurchase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, l)
	}
	return out, total, rows.Err()
}

// MarkOverdue flags unpaid and partial ledgers whose due date is before today.
func (r *PGRepository) MarkOverdue(ctx context.Context, today time.Time) (OverdueResult, error) {
	var res OverdueResult
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE sales_ledgers SET payment_status='overdue', updated_at=NOW()
WHERE payment_status IN ('unpaid','partial') AND sales_status <> 'CANCELLED' AND due_date IS NOT NULL AND due_date < $1`, today)
		if err != nil {
			return err
		}
		res.Sales = tag.RowsAffected()
		tag, err = tx.Exec(ctx, `UPDATE purchase_ledgers SET payment_status='overdue', updated_at=NOW()
WHERE payment_status IN ('unpaid','partial') AND purchase_status <> 'CANCELLED' AND due_date IS NOT NULL AND due_date < $1`, today)
		if err != nil {
			return err
		}
		res.Purchase = tag.RowsAffected()
		return nil
	})
	return res, err
}

// ListOrphans returns order-origin ledgers whose order is gone and that hold no receipts.
func (r *PGRepository) ListOrphans(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id FROM sales_ledgers l
WHERE l.origin = 'ORDER'
  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.id = l.order_id)
  AND NOT EXISTS (SELECT 1 FROM sales_receipts r WHERE r.sales_ledger_id = l.id)
ORDER BY l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSalesLedger physically removes a ledger and its items.
func (r *PGRepository) DeleteSalesLedger(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sales_ledgers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLedgerNotFound
	}
	return nil
}

func buildFilter(f ListFilter, statusCol, dateCol, nameCol string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if f.Status != "" {
		add(statusCol+" = $%d", f.Status)
	}
	if f.ClientID != nil {
		add("client_id = $%d", *f.ClientID)
	}
	if f.From != nil {
		add(dateCol+" >= $%d", *f.From)
	}
	if f.To != nil {
		add(dateCol+" <= $%d", *f.To)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(ledger_number ILIKE $%[1]d OR "+nameCol+" ILIKE $%[1]d)", "%"+s+"%")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
