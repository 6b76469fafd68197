package clients

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists clients in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const clientColumns = `id, name, business_no, credit_days, payment_day, duplicate_check_days, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.BusinessNo, &c.CreditDays, &c.PaymentDay, &c.DuplicateCheckDays, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, ErrClientNotFound
	}
	return c, err
}

// Get loads one client.
func (r *Repository) Get(ctx context.Context, id int64) (Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=$1`, id))
}

// List returns clients ordered by name, optionally filtered by a name fragment.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Client, int, error) {
	pattern := "%" + search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE name ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients WHERE name ILIKE $1 ORDER BY name, id LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Create inserts a client.
func (r *Repository) Create(ctx context.Context, in Input) (Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `INSERT INTO clients (name, business_no, credit_days, payment_day, duplicate_check_days)
VALUES ($1,$2,$3,$4,$5) RETURNING `+clientColumns, in.Name, in.BusinessNo, in.CreditDays, in.PaymentDay, in.DuplicateCheckDays))
}

// Update replaces the client's editable fields.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `UPDATE clients SET name=$2, business_no=$3, credit_days=$4, payment_day=$5, duplicate_check_days=$6, updated_at=NOW()
WHERE id=$1 RETURNING `+clientColumns, id, in.Name, in.BusinessNo, in.CreditDays, in.PaymentDay, in.DuplicateCheckDays))
}
