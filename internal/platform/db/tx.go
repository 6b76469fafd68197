package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithSavepoint runs fn inside a savepoint of tx. A failing fn rolls back only
// the work done since the savepoint; the outer transaction stays usable.
func WithSavepoint(ctx context.Context, tx pgx.Tx, fn func(pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: savepoint: %w", err)
	}

	defer func() {
		_ = sp.Rollback(ctx)
	}()

	if err := fn(sp); err != nil {
		return err
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: release savepoint: %w", err)
	}

	return nil
}
