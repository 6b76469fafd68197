package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/platform/db"
	"github.com/printhub/backoffice/internal/sequence"
)

// PGRepository persists orders in PostgreSQL.
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

func bind(tx pgx.Tx) *txRepository {
	return &txRepository{PGStore: sequence.NewPGStore(tx), tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("orders repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, bind(tx))
	})
}

const orderColumns = `id, order_number, client_id, client_name, status, current_process, payment_method, product_price,
shipping_fee, tax, total_amount, adjustment_amount, final_amount, memo, cancel_reason, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ClientID, &o.ClientName, &o.Status, &o.CurrentProcess,
		&o.PaymentMethod, &o.ProductPrice, &o.ShippingFee, &o.Tax, &o.TotalAmount, &o.AdjustmentAmount,
		&o.FinalAmount, &o.Memo, &o.CancelReason, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

// Get loads an order with its items and shipping.
func (r *PGRepository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, err
	}
	return o, loadChildren(ctx, r.pool, &o)
}

func loadChildren(ctx context.Context, q db.DBTX, o *Order) error {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_name, folder_name, quantity, unit_price, total_price, staging_key
FROM order_items WHERE order_id=$1 ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.Items = o.Items[:0]
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductName, &it.FolderName, &it.Quantity, &it.UnitPrice,
			&it.TotalPrice, &it.StagingKey); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var sh Shipping
	err = q.QueryRow(ctx, `SELECT order_id, recipient_name, phone, postal_code, address, address_detail, method
FROM order_shippings WHERE order_id=$1`, o.ID).Scan(&sh.OrderID, &sh.RecipientName, &sh.Phone, &sh.PostalCode,
		&sh.Address, &sh.AddressDetail, &sh.Method)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		o.Shipping = nil
	case err != nil:
		return err
	default:
		o.Shipping = &sh
	}
	return nil
}

// List pages orders without their children.
func (r *PGRepository) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.ClientID != nil {
		add("client_id = $%d", *f.ClientID)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("(order_number ILIKE $%d OR client_name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// ListHistory returns the process history of an order, oldest first.
func (r *PGRepository) ListHistory(ctx context.Context, orderID int64) ([]ProcessHistory, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, from_process, to_process, note, changed_by, changed_at
FROM order_process_histories WHERE order_id=$1 ORDER BY changed_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProcessHistory
	for rows.Next() {
		var h ProcessHistory
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromProcess, &h.ToProcess, &h.Note, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// RecentFolders lists folder names of the client's non-cancelled orders placed since.
func (r *PGRepository) RecentFolders(ctx context.Context, clientID int64, since time.Time) ([]FolderMatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT o.id, o.order_number, i.folder_name, o.status, o.created_at
FROM order_items i JOIN orders o ON o.id = i.order_id
WHERE o.client_id=$1 AND o.created_at >= $2 AND o.status <> $3 AND i.folder_name <> ''
ORDER BY o.created_at DESC, i.id`, clientID, since, StatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FolderMatch
	for rows.Next() {
		var m FolderMatch
		if err := rows.Scan(&m.OrderID, &m.OrderNumber, &m.FolderName, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertOrder(ctx context.Context, o Order) (Order, error) {
	created, err := scanOrder(r.tx.QueryRow(ctx, `INSERT INTO orders (order_number, client_id, client_name, status,
current_process, payment_method, product_price, shipping_fee, tax, total_amount, adjustment_amount, final_amount,
memo, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15) RETURNING `+orderColumns,
		o.OrderNumber, o.ClientID, o.ClientName, o.Status, o.CurrentProcess, o.PaymentMethod, o.ProductPrice,
		o.ShippingFee, o.Tax, o.TotalAmount, o.AdjustmentAmount, o.FinalAmount, o.Memo, o.CreatedBy, o.CreatedAt))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_orders_number") {
			return Order{}, fmt.Errorf("orders: number %s already taken: %w", o.OrderNumber, err)
		}
		return Order{}, fmt.Errorf("orders: insert order: %w", err)
	}

	if len(o.Items) > 0 {
		batch := &pgx.Batch{}
		for _, it := range o.Items {
			batch.Queue(`INSERT INTO order_items (order_id, product_name, folder_name, quantity, unit_price, total_price, staging_key)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, created.ID, it.ProductName, it.FolderName, it.Quantity, it.UnitPrice,
				it.TotalPrice, it.StagingKey)
		}
		br := r.tx.SendBatch(ctx, batch)
		created.Items = make([]Item, len(o.Items))
		for i, it := range o.Items {
			it.OrderID = created.ID
			if err := br.QueryRow().Scan(&it.ID); err != nil {
				_ = br.Close()
				return Order{}, fmt.Errorf("orders: insert items: %w", err)
			}
			created.Items[i] = it
		}
		if err := br.Close(); err != nil {
			return Order{}, fmt.Errorf("orders: insert items: %w", err)
		}
	}

	if o.Shipping != nil {
		sh := *o.Shipping
		sh.OrderID = created.ID
		if _, err := r.tx.Exec(ctx, `INSERT INTO order_shippings (order_id, recipient_name, phone, postal_code, address,
address_detail, method) VALUES ($1,$2,$3,$4,$5,$6,$7)`, sh.OrderID, sh.RecipientName, sh.Phone, sh.PostalCode,
			sh.Address, sh.AddressDetail, sh.Method); err != nil {
			return Order{}, fmt.Errorf("orders: insert shipping: %w", err)
		}
		created.Shipping = &sh
	}
	return created, nil
}

func (r *txRepository) LockOrder(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Order{}, err
	}
	return o, loadChildren(ctx, r.tx, &o)
}

func (r *txRepository) UpdateOrder(ctx context.Context, o Order) error {
	tag, err := r.tx.Exec(ctx, `UPDATE orders SET status=$2, current_process=$3, product_price=$4, shipping_fee=$5,
tax=$6, total_amount=$7, adjustment_amount=$8, final_amount=$9, memo=$10, cancel_reason=$11, updated_at=NOW()
WHERE id=$1`, o.ID, o.Status, o.CurrentProcess, o.ProductPrice, o.ShippingFee, o.Tax, o.TotalAmount,
		o.AdjustmentAmount, o.FinalAmount, o.Memo, o.CancelReason)
	if err != nil {
		return fmt.Errorf("orders: update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *txRepository) UpdateItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`UPDATE order_items SET quantity=$2, unit_price=$3, total_price=$4 WHERE id=$1`,
			it.ID, it.Quantity, it.UnitPrice, it.TotalPrice)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("orders: update items: %w", err)
	}
	return nil
}

func (r *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("orders: delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *txRepository) InsertHistory(ctx context.Context, h ProcessHistory) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO order_process_histories (order_id, from_process, to_process, note, changed_by, changed_at)
VALUES ($1,$2,$3,$4,$5,$6)`, h.OrderID, h.FromProcess, h.ToProcess, h.Note, h.ChangedBy, h.ChangedAt)
	if err != nil {
		return fmt.Errorf("orders: insert history: %w", err)
	}
	return nil
}

func (r *txRepository) Savepoint(ctx context.Context, fn func(TxRepository) error) error {
	return db.WithSavepoint(ctx, r.tx, func(sp pgx.Tx) error {
		return fn(bind(sp))
	})
}

func (r *txRepository) Ledgers() ledger.TxRepository {
	return ledger.Bind(r.tx)
}
