package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printhub/backoffice/internal/platform/db"
	"github.com/printhub/backoffice/internal/sequence"
)

// Repository persists journals in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	*sequence.PGStore
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("journal repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PGStore: sequence.NewPGStore(tx), tx: tx})
	})
}

const journalColumns = `id, voucher_no, source_type, source_id, source_ref, reverses_journal_id, description, journal_date, created_by, created_at`

func scanJournal(row pgx.Row) (Journal, error) {
	var j Journal
	err := row.Scan(&j.ID, &j.VoucherNo, &j.SourceType, &j.SourceID, &j.SourceRef, &j.ReversesJournalID, &j.Description, &j.JournalDate, &j.CreatedBy, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Journal{}, ErrJournalNotFound
	}
	return j, err
}

func (r *txRepository) InsertJournal(ctx context.Context, in PostingInput, voucherNo string) (Journal, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journals (voucher_no, source_type, source_id, source_ref, reverses_journal_id, description, journal_date, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+journalColumns,
		voucherNo, in.SourceType, in.SourceID, in.SourceRef, in.ReversesJournalID, in.Description, in.Date, in.CreatedBy)
	j, err := scanJournal(row)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err, "uq_journals_reverses"):
			return Journal{}, ErrAlreadyReversed
		case db.IsUniqueViolation(err, "uq_journals_source"):
			return Journal{}, ErrSourceAlreadyLinked
		}
		return Journal{}, fmt.Errorf("journal: insert: %w", err)
	}
	batch := &pgx.Batch{}
	for i, line := range in.Lines {
		batch.Queue(`INSERT INTO journal_lines (journal_id, line_no, account_code, debit, credit, memo) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			j.ID, i+1, line.AccountCode, line.Debit, line.Credit, line.Memo)
	}
	results := r.tx.SendBatch(ctx, batch)
	for i, line := range in.Lines {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			_ = results.Close()
			return Journal{}, fmt.Errorf("journal: insert line %d: %w", i+1, err)
		}
		j.Lines = append(j.Lines, Line{
			ID:          id,
			JournalID:   j.ID,
			LineNo:      i + 1,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Memo:        line.Memo,
		})
	}
	if err := results.Close(); err != nil {
		return Journal{}, err
	}
	return j, nil
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, id int64) (Journal, error) {
	j, err := scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Journal{}, err
	}
	lines, err := loadLines(ctx, r.tx, []int64{j.ID})
	if err != nil {
		return Journal{}, err
	}
	j.Lines = lines[j.ID]
	return j, nil
}

func (r *txRepository) FindReversalOf(ctx context.Context, id int64) (Journal, error) {
	return scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE reverses_journal_id=$1`, id))
}

// ListBySource returns journals with lines, oldest first.
func (r *Repository) ListBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Journal, error) {
	return r.list(ctx, `SELECT `+journalColumns+` FROM journals WHERE source_type=$1 AND source_id=$2 ORDER BY id`, sourceType, sourceID)
}

// FindBySourceRef returns the journal posted for one source event.
func (r *Repository) FindBySourceRef(ctx context.Context, sourceType SourceType, sourceID int64, ref string) (Journal, error) {
	j, err := scanJournal(r.pool.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE source_type=$1 AND source_id=$2 AND source_ref=$3`, sourceType, sourceID, ref))
	if err != nil {
		return Journal{}, err
	}
	lines, err := loadLines(ctx, r.pool, []int64{j.ID})
	if err != nil {
		return Journal{}, err
	}
	j.Lines = lines[j.ID]
	return j, nil
}

// ListReversalsOf returns cancellation journals pointing at any of ids.
func (r *Repository) ListReversalsOf(ctx context.Context, ids []int64) ([]Journal, error) {
	return r.list(ctx, `SELECT `+journalColumns+` FROM journals WHERE reverses_journal_id = ANY($1) ORDER BY id`, ids)
}

// ListImbalanced finds journals whose debit and credit sums differ.
func (r *Repository) ListImbalanced(ctx context.Context, since time.Time) ([]Imbalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT j.id, j.voucher_no, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journals j LEFT JOIN journal_lines l ON l.journal_id = j.id
WHERE j.created_at >= $1
GROUP BY j.id, j.voucher_no
HAVING COALESCE(SUM(l.debit),0) <> COALESCE(SUM(l.credit),0) OR COUNT(l.id) < 2
ORDER BY j.id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Imbalance
	for rows.Next() {
		var im Imbalance
		if err := rows.Scan(&im.JournalID, &im.VoucherNo, &im.Debit, &im.Credit); err != nil {
			return nil, err
		}
		out = append(out, im)
	}
	return out, rows.Err()
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Journal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var journals []Journal
	var ids []int64
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		journals = append(journals, j)
		ids = append(ids, j.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return journals, nil
	}
	lines, err := loadLines(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range journals {
		journals[i].Lines = lines[journals[i].ID]
	}
	return journals, nil
}

func loadLines(ctx context.Context, q db.DBTX, ids []int64) (map[int64][]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_id, line_no, account_code, debit, credit, memo FROM journal_lines WHERE journal_id = ANY($1) ORDER BY journal_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Line, len(ids))
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.JournalID, &l.LineNo, &l.AccountCode, &l.Debit, &l.Credit, &l.Memo); err != nil {
			return nil, err
		}
		out[l.JournalID] = append(out[l.JournalID], l)
	}
	return out, rows.Err()
}
