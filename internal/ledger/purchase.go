package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/sequence"
	"github.com/printhub/backoffice/internal/shared"
)

// GetPurchaseLedger loads a purchase ledger with items and payments.
func (s *Service) GetPurchaseLedger(ctx context.Context, id int64) (PurchaseLedger, error) {
	return s.repo.GetPurchaseLedger(ctx, id)
}

// ListPurchaseLedgers pages through purchase ledgers.
func (s *Service) ListPurchaseLedgers(ctx context.Context, f ListFilter, page, perPage int) ([]PurchaseLedger, shared.Pagination, error) {
	f.Limit, f.Offset = shared.LimitOffset(page, perPage)
	items, total, err := s.repo.ListPurchaseLedgers(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, f.Limit, total), nil
}

// CreatePurchase registers a supplier purchase and queues its journal.
func (s *Service) CreatePurchase(ctx context.Context, in PurchaseInput, createdBy int64) (PurchaseLedger, error) {
	in.SupplierName = strings.TrimSpace(in.SupplierName)
	if err := s.validator.Struct(in); err != nil {
		return PurchaseLedger{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	purchaseDate := s.today()
	if in.PurchaseDate != nil {
		purchaseDate = dateOnly(*in.PurchaseDate, s.seq.Location())
	}
	supply := itemsTotal(in.Items)
	vat := shared.TaxOf(supply, s.taxRate)
	l := PurchaseLedger{
		SupplierName:   in.SupplierName,
		PurchaseDate:   purchaseDate,
		SupplyAmount:   supply,
		VATAmount:      vat,
		TotalAmount:    supply + vat,
		PurchaseStatus: StatusRegistered,
		PaymentMethod:  in.PaymentMethod,
		Memo:           in.Memo,
		CreatedBy:      createdBy,
	}
	if in.DueDate != nil {
		due := dateOnly(*in.DueDate, s.seq.Location())
		l.DueDate = &due
	}
	for _, it := range in.Items {
		l.Items = append(l.Items, PurchaseItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      int64(it.Quantity) * it.UnitPrice,
		})
	}
	l.OutstandingAmount, l.PaymentStatus = balance(l.TotalAmount, 0, PaymentUnpaid)

	var created PurchaseLedger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.seq.Next(ctx, tx, sequence.ScopePurchaseLedger, purchaseDate)
		if err != nil {
			return err
		}
		l.LedgerNumber = number
		created, err = tx.InsertPurchaseLedger(ctx, l)
		return err
	})
	if err != nil {
		return PurchaseLedger{}, err
	}
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindPurchaseJournal, created.ID, nil))
	s.invalidate(ctx)
	s.record(ctx, createdBy, "purchase_ledger.create", "purchase_ledger", created.ID, map[string]any{
		"ledger_number": created.LedgerNumber,
		"total_amount":  created.TotalAmount,
	})
	return created, nil
}

// AddPurchasePayment settles part of a payable under the same ceiling rule as
// sales receipts.
func (s *Service) AddPurchasePayment(ctx context.Context, ledgerID int64, in PaymentInput, createdBy int64) (PurchaseLedger, error) {
	if err := s.validator.Struct(in); err != nil {
		return PurchaseLedger{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	paymentDate := s.today()
	if in.PaymentDate != nil {
		paymentDate = dateOnly(*in.PaymentDate, s.seq.Location())
	}
	var (
		updated PurchaseLedger
		payment PurchasePayment
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockPurchaseLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		if l.PurchaseStatus == StatusCancelled {
			return ErrLedgerCancelled
		}
		if in.Amount > l.OutstandingAmount {
			return fmt.Errorf("%w: amount %d exceeds outstanding %d", ErrExcessPayment, in.Amount, l.OutstandingAmount)
		}
		number, err := s.seq.Next(ctx, tx, sequence.ScopePurchasePayment, paymentDate)
		if err != nil {
			return err
		}
		payment, err = tx.InsertPurchasePayment(ctx, PurchasePayment{
			PaymentNumber:    number,
			PurchaseLedgerID: l.ID,
			Amount:           in.Amount,
			PaymentMethod:    in.PaymentMethod,
			PaymentDate:      paymentDate,
			Memo:             in.Memo,
			CreatedBy:        createdBy,
		})
		if err != nil {
			return err
		}
		l.PaidAmount += in.Amount
		l.OutstandingAmount, l.PaymentStatus = balance(l.TotalAmount, l.PaidAmount, l.PaymentStatus)
		updated = l
		return tx.UpdatePurchaseLedger(ctx, l)
	})
	if err != nil {
		return PurchaseLedger{}, err
	}
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindPurchasePaymentJournal, payment.ID, nil))
	s.invalidate(ctx)
	s.record(ctx, createdBy, "purchase_ledger.payment", "purchase_ledger", updated.ID, map[string]any{
		"payment_number": payment.PaymentNumber,
		"amount":         payment.Amount,
	})
	return updated, nil
}

// ConfirmPurchase marks a purchase ledger as confirmed.
func (s *Service) ConfirmPurchase(ctx context.Context, ledgerID, by int64) (PurchaseLedger, error) {
	var out PurchaseLedger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockPurchaseLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		switch l.PurchaseStatus {
		case StatusCancelled:
			return ErrLedgerCancelled
		case StatusConfirmed:
			out = l
			return nil
		}
		now := s.now()
		l.PurchaseStatus = StatusConfirmed
		l.ConfirmedBy = &by
		l.ConfirmedAt = &now
		out = l
		return tx.UpdatePurchaseLedger(ctx, l)
	})
	if err != nil {
		return PurchaseLedger{}, err
	}
	s.record(ctx, by, "purchase_ledger.confirm", "purchase_ledger", out.ID, nil)
	return out, nil
}

// CancelPurchase reverses the PURCHASE and PURCHASE_PAYMENT journals of the
// ledger and marks it cancelled.
func (s *Service) CancelPurchase(ctx context.Context, ledgerID int64, reason string, by int64) (PurchaseLedger, error) {
	if _, err := s.repo.GetPurchaseLedger(ctx, ledgerID); err != nil {
		return PurchaseLedger{}, err
	}
	if err := s.reverseAll(ctx, ledgerID, reason, by, journal.SourcePurchase, journal.SourcePurchasePayment); err != nil {
		return PurchaseLedger{}, err
	}
	var (
		out     PurchaseLedger
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockPurchaseLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		if l.PurchaseStatus == StatusCancelled {
			out = l
			return nil
		}
		now := s.now()
		l.PurchaseStatus = StatusCancelled
		l.OutstandingAmount = 0
		l.PaymentStatus = PaymentUnpaid
		l.CancelledAt = &now
		l.CancelReason = reason
		out, changed = l, true
		return tx.UpdatePurchaseLedger(ctx, l)
	})
	if err != nil {
		return PurchaseLedger{}, err
	}
	if changed {
		s.invalidate(ctx)
		s.record(ctx, by, "purchase_ledger.cancel", "purchase_ledger", out.ID, map[string]any{"reason": reason})
	}
	return out, nil
}

// PostPurchaseJournal posts the journal of a purchase ledger.
func (s *Service) PostPurchaseJournal(ctx context.Context, ledgerID int64) error {
	l, err := s.repo.GetPurchaseLedger(ctx, ledgerID)
	if err != nil {
		return err
	}
	if l.PurchaseStatus == StatusCancelled {
		return nil
	}
	_, err = s.journals.CreatePurchaseJournal(ctx, journal.PurchaseParams{
		LedgerID:     l.ID,
		LedgerNumber: l.LedgerNumber,
		SupplierName: l.SupplierName,
		Supply:       l.SupplyAmount,
		VAT:          l.VATAmount,
		Total:        l.TotalAmount,
		Date:         l.PurchaseDate,
		CreatedBy:    l.CreatedBy,
	})
	if errors.Is(err, journal.ErrNothingToPost) {
		return nil
	}
	return err
}

// PostPurchasePaymentJournal posts the journal of one purchase payment.
func (s *Service) PostPurchasePaymentJournal(ctx context.Context, paymentID int64) error {
	p, err := s.repo.GetPurchasePayment(ctx, paymentID)
	if err != nil {
		return err
	}
	l, err := s.repo.GetPurchaseLedger(ctx, p.PurchaseLedgerID)
	if err != nil {
		return err
	}
	if l.PurchaseStatus == StatusCancelled {
		return nil
	}
	_, err = s.journals.CreatePurchasePaymentJournal(ctx, journal.PurchasePaymentParams{
		LedgerID:      l.ID,
		LedgerNumber:  l.LedgerNumber,
		PaymentNumber: p.PaymentNumber,
		Amount:        p.Amount,
		PaymentMethod: p.PaymentMethod,
		Date:          p.PaymentDate,
		CreatedBy:     p.CreatedBy,
	})
	if errors.Is(err, journal.ErrNothingToPost) {
		return nil
	}
	return err
}
