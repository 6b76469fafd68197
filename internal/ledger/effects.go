package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/reconcile"
)

// Registrar binds effect handlers.
type Registrar interface {
	Register(kind reconcile.Kind, h reconcile.Handler)
}

type reversalPayload struct {
	Reason string `json:"reason"`
	By     int64  `json:"by"`
}

// RegisterEffects binds the ledger's derived-record handlers.
func (s *Service) RegisterEffects(r Registrar) {
	r.Register(reconcile.KindSalesJournal, func(ctx context.Context, e reconcile.Effect) error {
		return s.PostSalesJournal(ctx, e.RefID)
	})
	r.Register(reconcile.KindReceiptJournal, func(ctx context.Context, e reconcile.Effect) error {
		return s.PostReceiptJournal(ctx, e.RefID)
	})
	r.Register(reconcile.KindAutoReceipt, func(ctx context.Context, e reconcile.Effect) error {
		return s.CreateAutoReceipt(ctx, e.RefID)
	})
	r.Register(reconcile.KindPurchaseJournal, func(ctx context.Context, e reconcile.Effect) error {
		return s.PostPurchaseJournal(ctx, e.RefID)
	})
	r.Register(reconcile.KindPurchasePaymentJournal, func(ctx context.Context, e reconcile.Effect) error {
		return s.PostPurchasePaymentJournal(ctx, e.RefID)
	})
	r.Register(reconcile.KindReversal, func(ctx context.Context, e reconcile.Effect) error {
		var p reversalPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		return s.ReverseJournal(ctx, e.RefID, p.Reason, p.By)
	})
}

// PostSalesJournal keeps exactly one live sales journal per ledger matching its
// current total. A stale journal left by an amount change is reversed and a
// new revision posted. Cancelled ledgers are skipped.
func (s *Service) PostSalesJournal(ctx context.Context, ledgerID int64) error {
	l, err := s.repo.GetSalesLedger(ctx, ledgerID)
	if err != nil {
		return err
	}
	if l.SalesStatus == StatusCancelled {
		return nil
	}
	posted, err := s.journals.GetJournalsBySource(ctx, journal.SourceSales, l.ID)
	if err != nil {
		return err
	}
	live, err := s.journals.Unreversed(ctx, posted)
	if err != nil {
		return err
	}
	for _, j := range live {
		debit, _ := j.Totals()
		if debit == l.TotalAmount {
			return nil
		}
		if err := s.ReverseJournal(ctx, j.ID, "ledger amount revised", 0); err != nil {
			return err
		}
	}
	params := journal.SalesParams{
		LedgerID:     l.ID,
		LedgerNumber: l.LedgerNumber,
		Revision:     len(posted),
		ClientName:   l.ClientName,
		Supply:       l.SupplyAmount,
		VAT:          l.VATAmount,
		Total:        l.TotalAmount,
		CreatedBy:    l.CreatedBy,
	}
	if len(posted) == 0 {
		params.Date = l.SalesDate
	}
	j, err := s.journals.CreateSalesJournal(ctx, params)
	if errors.Is(err, journal.ErrNothingToPost) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.reverseIfCancelled(ctx, l.ID, j)
}

// PostReceiptJournal posts the journal of one sales receipt.
func (s *Service) PostReceiptJournal(ctx context.Context, receiptID int64) error {
	r, err := s.repo.GetSalesReceipt(ctx, receiptID)
	if err != nil {
		return err
	}
	l, err := s.repo.GetSalesLedger(ctx, r.SalesLedgerID)
	if err != nil {
		return err
	}
	if l.SalesStatus == StatusCancelled {
		return nil
	}
	j, err := s.journals.CreateReceiptJournal(ctx, journal.ReceiptParams{
		LedgerID:      l.ID,
		LedgerNumber:  l.LedgerNumber,
		ReceiptNumber: r.ReceiptNumber,
		Amount:        r.Amount,
		PaymentMethod: r.PaymentMethod,
		Date:          r.ReceiptDate,
		CreatedBy:     r.CreatedBy,
	})
	if errors.Is(err, journal.ErrNothingToPost) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.reverseIfCancelled(ctx, l.ID, j)
}

// reverseIfCancelled reverses a journal that was posted while its ledger was
// being cancelled. Cancel flips the status before scanning for journals, so
// a post that missed the scan always sees the cancellation here.
func (s *Service) reverseIfCancelled(ctx context.Context, ledgerID int64, j journal.Journal) error {
	l, err := s.repo.GetSalesLedger(ctx, ledgerID)
	if err != nil {
		return err
	}
	if l.SalesStatus != StatusCancelled {
		return nil
	}
	s.logger.Warn("journal posted during cancellation, reversing",
		slog.Int64("ledger_id", ledgerID),
		slog.String("voucher_no", j.VoucherNo),
	)
	return s.ReverseJournal(ctx, j.ID, l.CancelReason, 0)
}

// ReverseJournal posts the cancellation journal of journalID. A journal that
// is already reversed counts as done.
func (s *Service) ReverseJournal(ctx context.Context, journalID int64, reason string, by int64) error {
	_, err := s.journals.CreateCancellationJournal(ctx, journal.CancellationParams{
		OriginalJournalID: journalID,
		Reason:            reason,
		CreatedBy:         by,
	})
	if errors.Is(err, journal.ErrAlreadyReversed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reverse journal %d: %w", journalID, err)
	}
	return nil
}
