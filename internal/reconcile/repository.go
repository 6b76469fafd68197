package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists pending reconciliations in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs the store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Record implements Store.
func (s *PGStore) Record(ctx context.Context, e Effect, cause string, next time.Time) error {
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO pending_reconciliations (kind, ref_id, payload, status, attempts, last_error, next_attempt_at)
VALUES ($1, $2, $3, 'PENDING', 1, $4, $5)
ON CONFLICT (kind, ref_id) WHERE status = 'PENDING'
DO UPDATE SET attempts = pending_reconciliations.attempts + 1,
              last_error = EXCLUDED.last_error,
              payload = EXCLUDED.payload,
              next_attempt_at = EXCLUDED.next_attempt_at,
              updated_at = NOW()`,
		string(e.Kind), e.RefID, payload, cause, next)
	if err != nil {
		return fmt.Errorf("record pending %s: %w", e, err)
	}
	return nil
}

// Resolve implements Store.
func (s *PGStore) Resolve(ctx context.Context, kind Kind, refID int64) error {
	_, err := s.pool.Exec(ctx, `
UPDATE pending_reconciliations
SET status = 'RESOLVED', resolved_at = NOW(), updated_at = NOW()
WHERE kind = $1 AND ref_id = $2 AND status = 'PENDING'`, string(kind), refID)
	return err
}

// Due implements Store.
func (s *PGStore) Due(ctx context.Context, now time.Time, limit int) ([]Pending, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, kind, ref_id, payload, status, attempts, last_error, next_attempt_at, created_at, resolved_at
FROM pending_reconciliations
WHERE status = 'PENDING' AND next_attempt_at <= $1
ORDER BY next_attempt_at, id
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Reschedule implements Store.
func (s *PGStore) Reschedule(ctx context.Context, id int64, cause string, next time.Time) error {
	return s.exec(ctx, `
UPDATE pending_reconciliations
SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3, updated_at = NOW()
WHERE id = $1`, id, cause, next)
}

// Abandon implements Store.
func (s *PGStore) Abandon(ctx context.Context, id int64, cause string) error {
	return s.exec(ctx, `
UPDATE pending_reconciliations
SET status = 'ABANDONED', attempts = attempts + 1, last_error = $2, updated_at = NOW()
WHERE id = $1`, id, cause)
}

// MarkResolved implements Store.
func (s *PGStore) MarkResolved(ctx context.Context, id int64) error {
	return s.exec(ctx, `
UPDATE pending_reconciliations
SET status = 'RESOLVED', resolved_at = NOW(), updated_at = NOW()
WHERE id = $1`, id)
}

// List implements Store.
func (s *PGStore) List(ctx context.Context, status Status, limit, offset int) ([]Pending, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pending_reconciliations WHERE status = $1`, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, kind, ref_id, payload, status, attempts, last_error, next_attempt_at, created_at, resolved_at
FROM pending_reconciliations
WHERE status = $1
ORDER BY id DESC
LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PGStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("pending reconciliation not found")
	}
	return nil
}

func collect(rows pgx.Rows) ([]Pending, error) {
	defer rows.Close()
	var out []Pending
	for rows.Next() {
		var (
			p    Pending
			kind string
			st   string
		)
		if err := rows.Scan(&p.ID, &kind, &p.RefID, &p.Payload, &st, &p.Attempts, &p.LastError, &p.NextAttemptAt, &p.CreatedAt, &p.ResolvedAt); err != nil {
			return nil, err
		}
		p.Kind = Kind(kind)
		p.Status = Status(st)
		out = append(out, p)
	}
	return out, rows.Err()
}
