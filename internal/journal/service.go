package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/printhub/backoffice/internal/sequence"
	"github.com/printhub/backoffice/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Journal, error)
	FindBySourceRef(ctx context.Context, sourceType SourceType, sourceID int64, ref string) (Journal, error)
	ListReversalsOf(ctx context.Context, ids []int64) ([]Journal, error)
	ListImbalanced(ctx context.Context, since time.Time) ([]Imbalance, error)
}

// TxRepository exposes operations bound to one transaction.
type TxRepository interface {
	sequence.Store
	InsertJournal(ctx context.Context, in PostingInput, voucherNo string) (Journal, error)
	GetJournalForUpdate(ctx context.Context, id int64) (Journal, error)
	FindReversalOf(ctx context.Context, id int64) (Journal, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ErrNothingToPost is returned when a derived journal would carry no amounts.
var ErrNothingToPost = fmt.Errorf("%w: nothing to post for a zero amount", shared.ErrValidation)

// Service is the only writer of journals and journal lines.
type Service struct {
	repo   RepositoryPort
	seq    *sequence.Allocator
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo RepositoryPort, seq *sequence.Allocator, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, seq: seq, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a journal inside its own transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	var posted Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		voucher, err := s.seq.Next(ctx, tx, sequence.ScopeJournal, input.Date)
		if err != nil {
			return err
		}
		posted, err = tx.InsertJournal(ctx, input, voucher)
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	s.record(ctx, "journal.post", posted)
	return posted, nil
}

// postOnce posts input unless its source was posted before, in which case the
// existing journal is returned.
func (s *Service) postOnce(ctx context.Context, input PostingInput) (Journal, error) {
	posted, err := s.Post(ctx, input)
	if errors.Is(err, ErrSourceAlreadyLinked) {
		return s.repo.FindBySourceRef(ctx, input.SourceType, input.SourceID, input.SourceRef)
	}
	return posted, err
}

// CreateSalesJournal posts Dr receivable / Cr revenue and VAT payable.
func (s *Service) CreateSalesJournal(ctx context.Context, p SalesParams) (Journal, error) {
	if p.Total == 0 {
		return Journal{}, ErrNothingToPost
	}
	if p.Supply+p.VAT != p.Total {
		return Journal{}, fmt.Errorf("%w: supply %d + vat %d != total %d", ErrUnbalanced, p.Supply, p.VAT, p.Total)
	}
	lines := []LineInput{{AccountCode: AccountReceivable, Debit: p.Total}}
	lines = appendCredit(lines, AccountSalesRevenue, p.Supply)
	lines = appendCredit(lines, AccountVATPayable, p.VAT)
	ref := p.LedgerNumber
	if p.Revision > 0 {
		ref = fmt.Sprintf("%s-R%d", p.LedgerNumber, p.Revision)
	}
	return s.postOnce(ctx, PostingInput{
		SourceType:  SourceSales,
		SourceID:    p.LedgerID,
		SourceRef:   ref,
		Description: fmt.Sprintf("Sales %s %s", p.LedgerNumber, p.ClientName),
		Date:        s.dateOrToday(p.Date),
		CreatedBy:   p.CreatedBy,
		Lines:       lines,
	})
}

// CreateReceiptJournal posts Dr cash or card clearing / Cr receivable.
func (s *Service) CreateReceiptJournal(ctx context.Context, p ReceiptParams) (Journal, error) {
	if p.Amount == 0 {
		return Journal{}, ErrNothingToPost
	}
	return s.postOnce(ctx, PostingInput{
		SourceType:  SourceReceipt,
		SourceID:    p.LedgerID,
		SourceRef:   p.ReceiptNumber,
		Description: fmt.Sprintf("Receipt %s for %s", p.ReceiptNumber, p.LedgerNumber),
		Date:        s.dateOrToday(p.Date),
		CreatedBy:   p.CreatedBy,
		Lines: []LineInput{
			{AccountCode: SettlementAccount(p.PaymentMethod), Debit: p.Amount},
			{AccountCode: AccountReceivable, Credit: p.Amount},
		},
	})
}

// CreatePurchaseJournal posts Dr purchases and VAT receivable / Cr payable.
func (s *Service) CreatePurchaseJournal(ctx context.Context, p PurchaseParams) (Journal, error) {
	if p.Total == 0 {
		return Journal{}, ErrNothingToPost
	}
	if p.Supply+p.VAT != p.Total {
		return Journal{}, fmt.Errorf("%w: supply %d + vat %d != total %d", ErrUnbalanced, p.Supply, p.VAT, p.Total)
	}
	var lines []LineInput
	lines = appendDebit(lines, AccountPurchases, p.Supply)
	lines = appendDebit(lines, AccountVATReceivable, p.VAT)
	lines = append(lines, LineInput{AccountCode: AccountPayable, Credit: p.Total})
	return s.postOnce(ctx, PostingInput{
		SourceType:  SourcePurchase,
		SourceID:    p.LedgerID,
		SourceRef:   p.LedgerNumber,
		Description: fmt.Sprintf("Purchase %s %s", p.LedgerNumber, p.SupplierName),
		Date:        s.dateOrToday(p.Date),
		CreatedBy:   p.CreatedBy,
		Lines:       lines,
	})
}

// CreatePurchasePaymentJournal posts Dr payable / Cr cash or card clearing.
func (s *Service) CreatePurchasePaymentJournal(ctx context.Context, p PurchasePaymentParams) (Journal, error) {
	if p.Amount == 0 {
		return Journal{}, ErrNothingToPost
	}
	return s.postOnce(ctx, PostingInput{
		SourceType:  SourcePurchasePayment,
		SourceID:    p.LedgerID,
		SourceRef:   p.PaymentNumber,
		Description: fmt.Sprintf("Payment %s for %s", p.PaymentNumber, p.LedgerNumber),
		Date:        s.dateOrToday(p.Date),
		CreatedBy:   p.CreatedBy,
		Lines: []LineInput{
			{AccountCode: AccountPayable, Debit: p.Amount},
			{AccountCode: SettlementAccount(p.PaymentMethod), Credit: p.Amount},
		},
	})
}

// CreateCancellationJournal posts the exact mirror of the original journal and
// links it through ReversesJournalID. A journal can be reversed at most once.
func (s *Service) CreateCancellationJournal(ctx context.Context, p CancellationParams) (Journal, error) {
	if p.OriginalJournalID <= 0 {
		return Journal{}, fmt.Errorf("%w: original journal id required", shared.ErrValidation)
	}
	var reversal Journal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalForUpdate(ctx, p.OriginalJournalID)
		if err != nil {
			return err
		}
		if original.SourceType == SourceCancellation {
			return ErrNotReversible
		}
		if _, err := tx.FindReversalOf(ctx, original.ID); err == nil {
			return ErrAlreadyReversed
		} else if !errors.Is(err, ErrJournalNotFound) {
			return err
		}
		input := PostingInput{
			SourceType:        SourceCancellation,
			SourceID:          original.SourceID,
			SourceRef:         original.VoucherNo,
			ReversesJournalID: &original.ID,
			Description:       cancellationDescription(original.VoucherNo, p.Reason),
			Date:              s.today(),
			CreatedBy:         p.CreatedBy,
			Lines:             reverseLines(original.Lines),
		}
		if err := input.Validate(); err != nil {
			return err
		}
		voucher, err := s.seq.Next(ctx, tx, sequence.ScopeJournal, input.Date)
		if err != nil {
			return err
		}
		reversal, err = tx.InsertJournal(ctx, input, voucher)
		if errors.Is(err, ErrSourceAlreadyLinked) {
			return ErrAlreadyReversed
		}
		return err
	})
	if err != nil {
		return Journal{}, err
	}
	s.record(ctx, "journal.reverse", reversal)
	return reversal, nil
}

// GetJournalsBySource lists journals posted for (sourceType, sourceID) in posting order.
func (s *Service) GetJournalsBySource(ctx context.Context, sourceType SourceType, sourceID int64) ([]Journal, error) {
	return s.repo.ListBySource(ctx, sourceType, sourceID)
}

// ReversalsOf maps original journal id to the cancellation journal reversing it.
func (s *Service) ReversalsOf(ctx context.Context, ids []int64) (map[int64]Journal, error) {
	out := make(map[int64]Journal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	reversals, err := s.repo.ListReversalsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range reversals {
		if r.ReversesJournalID != nil {
			out[*r.ReversesJournalID] = r
		}
	}
	return out, nil
}

// Unreversed filters journals that have no cancellation journal yet.
func (s *Service) Unreversed(ctx context.Context, journals []Journal) ([]Journal, error) {
	ids := make([]int64, 0, len(journals))
	for _, j := range journals {
		ids = append(ids, j.ID)
	}
	reversed, err := s.ReversalsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Journal, 0, len(journals))
	for _, j := range journals {
		if _, ok := reversed[j.ID]; !ok {
			out = append(out, j)
		}
	}
	return out, nil
}

// CheckIntegrity lists journals created since the given time whose lines do not balance.
func (s *Service) CheckIntegrity(ctx context.Context, since time.Time) ([]Imbalance, error) {
	return s.repo.ListImbalanced(ctx, since)
}

func (s *Service) record(ctx context.Context, action string, j Journal) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"voucher_no":  j.VoucherNo,
		"source_type": string(j.SourceType),
		"source_id":   j.SourceID,
	}
	if j.ReversesJournalID != nil {
		meta["reverses_journal_id"] = *j.ReversesJournalID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  j.CreatedBy,
		Action:   action,
		Entity:   "journal",
		EntityID: fmt.Sprintf("%d", j.ID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("journal audit", slog.String("voucher_no", j.VoucherNo), slog.Any("error", err))
	}
}

func (s *Service) today() time.Time {
	now := s.now().In(s.seq.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (s *Service) dateOrToday(d time.Time) time.Time {
	if d.IsZero() {
		return s.today()
	}
	return d
}

func appendDebit(lines []LineInput, code AccountCode, amount int64) []LineInput {
	if amount == 0 {
		return lines
	}
	return append(lines, LineInput{AccountCode: code, Debit: amount})
}

func appendCredit(lines []LineInput, code AccountCode, amount int64) []LineInput {
	if amount == 0 {
		return lines
	}
	return append(lines, LineInput{AccountCode: code, Credit: amount})
}

func reverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Memo:        line.Memo,
		})
	}
	return out
}

func cancellationDescription(voucherNo, reason string) string {
	if reason == "" {
		return fmt.Sprintf("Cancellation of %s", voucherNo)
	}
	return fmt.Sprintf("Cancellation of %s: %s", voucherNo, reason)
}
