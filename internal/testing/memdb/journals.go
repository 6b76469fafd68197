package memdb

import (
	"context"
	"slices"
	"time"

	"github.com/printhub/backoffice/internal/journal"
)

// Journals returns the journal repository.
func (d *DB) Journals() journal.RepositoryPort { return journalRepo{d} }

// AllJournals lists every journal ordered by id.
func (d *DB) AllJournals() []journal.Journal {
	var out []journal.Journal
	d.locked(func(st *state) {
		for _, id := range sortedKeys(st.journals) {
			out = append(out, st.journals[id])
		}
	})
	return out
}

type journalRepo struct{ d *DB }

type journalTx struct {
	seqStore
}

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journal.TxRepository) error) error {
	return r.d.inTx(func() error {
		return fn(ctx, journalTx{seqStore{r.d}})
	})
}

func (t journalTx) InsertJournal(_ context.Context, in journal.PostingInput, voucherNo string) (journal.Journal, error) {
	if err := t.d.check("journal.insert"); err != nil {
		return journal.Journal{}, err
	}
	st := t.d.st
	for _, j := range st.journals {
		if in.ReversesJournalID != nil && j.ReversesJournalID != nil && *j.ReversesJournalID == *in.ReversesJournalID {
			return journal.Journal{}, journal.ErrAlreadyReversed
		}
		if j.SourceType == in.SourceType && j.SourceID == in.SourceID && j.SourceRef == in.SourceRef {
			return journal.Journal{}, journal.ErrSourceAlreadyLinked
		}
		if j.VoucherNo == voucherNo {
			return journal.Journal{}, errDuplicateNumber(voucherNo)
		}
	}
	j := journal.Journal{
		ID:                st.nextID(),
		VoucherNo:         voucherNo,
		SourceType:        in.SourceType,
		SourceID:          in.SourceID,
		SourceRef:         in.SourceRef,
		ReversesJournalID: in.ReversesJournalID,
		Description:       in.Description,
		JournalDate:       in.Date,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         t.d.now(),
	}
	for i, l := range in.Lines {
		j.Lines = append(j.Lines, journal.Line{
			ID:          st.nextID(),
			JournalID:   j.ID,
			LineNo:      i + 1,
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        l.Memo,
		})
	}
	st.journals[j.ID] = j
	return j, nil
}

func (t journalTx) GetJournalForUpdate(_ context.Context, id int64) (journal.Journal, error) {
	j, ok := t.d.st.journals[id]
	if !ok {
		return journal.Journal{}, journal.ErrJournalNotFound
	}
	return j, nil
}

func (t journalTx) FindReversalOf(_ context.Context, id int64) (journal.Journal, error) {
	for _, j := range t.d.st.journals {
		if j.ReversesJournalID != nil && *j.ReversesJournalID == id {
			return j, nil
		}
	}
	return journal.Journal{}, journal.ErrJournalNotFound
}

func (r journalRepo) ListBySource(_ context.Context, sourceType journal.SourceType, sourceID int64) ([]journal.Journal, error) {
	return r.filter(func(j journal.Journal) bool {
		return j.SourceType == sourceType && j.SourceID == sourceID
	}), nil
}

func (r journalRepo) FindBySourceRef(_ context.Context, sourceType journal.SourceType, sourceID int64, ref string) (journal.Journal, error) {
	found := r.filter(func(j journal.Journal) bool {
		return j.SourceType == sourceType && j.SourceID == sourceID && j.SourceRef == ref
	})
	if len(found) == 0 {
		return journal.Journal{}, journal.ErrJournalNotFound
	}
	return found[0], nil
}

func (r journalRepo) ListReversalsOf(_ context.Context, ids []int64) ([]journal.Journal, error) {
	return r.filter(func(j journal.Journal) bool {
		return j.ReversesJournalID != nil && slices.Contains(ids, *j.ReversesJournalID)
	}), nil
}

func (r journalRepo) ListImbalanced(_ context.Context, since time.Time) ([]journal.Imbalance, error) {
	var out []journal.Imbalance
	for _, j := range r.filter(func(j journal.Journal) bool { return !j.CreatedAt.Before(since) }) {
		debit, credit := j.Totals()
		if debit != credit || len(j.Lines) < 2 {
			out = append(out, journal.Imbalance{JournalID: j.ID, VoucherNo: j.VoucherNo, Debit: debit, Credit: credit})
		}
	}
	return out, nil
}

func (r journalRepo) filter(keep func(journal.Journal) bool) []journal.Journal {
	var out []journal.Journal
	r.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.journals) {
			if j := st.journals[id]; keep(j) {
				out = append(out, j)
			}
		}
	})
	return out
}

// CorruptJournal replaces the lines of a journal, bypassing validation.
func (d *DB) CorruptJournal(id int64, lines []journal.Line) {
	d.locked(func(st *state) {
		j := st.journals[id]
		j.Lines = lines
		st.journals[id] = j
	})
}
