package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/sequence"
	"github.com/printhub/backoffice/internal/shared"
)

// Repository abstracts ledger persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSalesLedger(ctx context.Context, id int64) (SalesLedger, error)
	GetSalesLedgerByOrder(ctx context.Context, orderID int64) (SalesLedger, error)
	ListSalesLedgers(ctx context.Context, f ListFilter) ([]SalesLedger, int, error)
	GetSalesReceipt(ctx context.Context, id int64) (SalesReceipt, error)
	GetPurchaseLedger(ctx context.Context, id int64) (PurchaseLedger, error)
	ListPurchaseLedgers(ctx context.Context, f ListFilter) ([]PurchaseLedger, int, error)
	GetPurchasePayment(ctx context.Context, id int64) (PurchasePayment, error)
	MarkOverdue(ctx context.Context, today time.Time) (OverdueResult, error)
	ListOrphans(ctx context.Context) ([]int64, error)
	DeleteSalesLedger(ctx context.Context, id int64) error
}

// TxRepository exposes ledger writes bound to one transaction.
type TxRepository interface {
	sequence.Store
	InsertSalesLedger(ctx context.Context, l SalesLedger) (SalesLedger, error)
	LockSalesLedger(ctx context.Context, id int64) (SalesLedger, error)
	LockSalesLedgerByOrder(ctx context.Context, orderID int64) (SalesLedger, error)
	UpdateSalesLedger(ctx context.Context, l SalesLedger) error
	ReplaceSalesLedgerItems(ctx context.Context, ledgerID int64, items []SalesLedgerItem) error
	InsertSalesReceipt(ctx context.Context, r SalesReceipt) (SalesReceipt, error)
	CountSalesReceipts(ctx context.Context, ledgerID int64) (int, error)
	InsertPurchaseLedger(ctx context.Context, l PurchaseLedger) (PurchaseLedger, error)
	LockPurchaseLedger(ctx context.Context, id int64) (PurchaseLedger, error)
	UpdatePurchaseLedger(ctx context.Context, l PurchaseLedger) error
	InsertPurchasePayment(ctx context.Context, p PurchasePayment) (PurchasePayment, error)
}

// Journals is the subset of the journal engine the ledger writer drives.
type Journals interface {
	CreateSalesJournal(ctx context.Context, p journal.SalesParams) (journal.Journal, error)
	CreateReceiptJournal(ctx context.Context, p journal.ReceiptParams) (journal.Journal, error)
	CreatePurchaseJournal(ctx context.Context, p journal.PurchaseParams) (journal.Journal, error)
	CreatePurchasePaymentJournal(ctx context.Context, p journal.PurchasePaymentParams) (journal.Journal, error)
	CreateCancellationJournal(ctx context.Context, p journal.CancellationParams) (journal.Journal, error)
	GetJournalsBySource(ctx context.Context, sourceType journal.SourceType, sourceID int64) ([]journal.Journal, error)
	Unreversed(ctx context.Context, journals []journal.Journal) ([]journal.Journal, error)
}

// Clients resolves credit terms.
type Clients interface {
	Get(ctx context.Context, id int64) (clients.Client, error)
}

// Effects runs or queues best-effort side effects.
type Effects interface {
	Run(ctx context.Context, e reconcile.Effect)
	Dispatch(ctx context.Context, e reconcile.Effect)
}

// Invalidator drops cached reports after ledger mutations.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// AuditPort records ledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the ledger writer.
type Service struct {
	repo      Repository
	seq       *sequence.Allocator
	journals  Journals
	clients   Clients
	effects   Effects
	cache     Invalidator
	audit     AuditPort
	logger    *slog.Logger
	taxRate   decimal.Decimal
	validator *validator.Validate
	now       func() time.Time
}

// Options carries the optional collaborators of Service.
type Options struct {
	Clients Clients
	Cache   Invalidator
	Audit   AuditPort
	Logger  *slog.Logger
	TaxRate decimal.Decimal
}

// NewService wires the ledger writer.
func NewService(repo Repository, seq *sequence.Allocator, journals Journals, effects Effects, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rate := opts.TaxRate
	if rate.IsZero() {
		rate = shared.DefaultTaxRate
	}
	return &Service{
		repo:      repo,
		seq:       seq,
		journals:  journals,
		clients:   opts.Clients,
		effects:   effects,
		cache:     opts.Cache,
		audit:     opts.Audit,
		logger:    logger.With(slog.String("component", "ledger")),
		taxRate:   rate,
		validator: validator.New(),
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetSalesLedger loads a ledger with its items and receipts.
func (s *Service) GetSalesLedger(ctx context.Context, id int64) (SalesLedger, error) {
	return s.repo.GetSalesLedger(ctx, id)
}

// GetSalesLedgerByOrder loads the ledger mirroring an order.
func (s *Service) GetSalesLedgerByOrder(ctx context.Context, orderID int64) (SalesLedger, error) {
	return s.repo.GetSalesLedgerByOrder(ctx, orderID)
}

// ListSalesLedgers pages through sales ledgers.
func (s *Service) ListSalesLedgers(ctx context.Context, f ListFilter, page, perPage int) ([]SalesLedger, shared.Pagination, error) {
	f.Limit, f.Offset = shared.LimitOffset(page, perPage)
	items, total, err := s.repo.ListSalesLedgers(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, f.Limit, total), nil
}

// CreateFromOrder derives the sales ledger of an order. Calling it again for
// the same order returns the existing ledger.
func (s *Service) CreateFromOrder(ctx context.Context, order OrderSnapshot, createdBy int64) (SalesLedger, error) {
	if order.OrderID <= 0 {
		return SalesLedger{}, fmt.Errorf("%w: order id required", shared.ErrValidation)
	}
	if existing, err := s.repo.GetSalesLedgerByOrder(ctx, order.OrderID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrLedgerNotFound) {
		return SalesLedger{}, err
	}

	loc := s.seq.Location()
	salesDate := dateOnly(order.OrderedAt, loc)
	if order.OrderedAt.IsZero() {
		salesDate = s.today()
	}
	total := shared.NonNegative(order.FinalAmount)
	vat := min(shared.NonNegative(order.Tax), total)
	orderID, clientID := order.OrderID, order.ClientID
	l := SalesLedger{
		OrderID:       &orderID,
		Origin:        OriginOrder,
		ClientID:      &clientID,
		ClientName:    order.ClientName,
		SalesDate:     salesDate,
		SupplyAmount:  total - vat,
		VATAmount:     vat,
		TotalAmount:   total,
		SalesStatus:   StatusRegistered,
		PaymentMethod: order.PaymentMethod,
		Memo:          fmt.Sprintf("Order %s", order.OrderNumber),
		CreatedBy:     createdBy,
		Items:         linesToItems(order.Lines),
	}
	due, err := s.dueDate(ctx, order.ClientID, salesDate)
	if err != nil {
		return SalesLedger{}, err
	}
	l.DueDate = due
	s.applyCapture(&l)

	created, err := s.insertSalesLedger(ctx, l)
	if errors.Is(err, ErrOrderAlreadyLedgered) {
		return s.repo.GetSalesLedgerByOrder(ctx, order.OrderID)
	}
	if err != nil {
		return SalesLedger{}, err
	}
	s.afterCreate(ctx, created)
	return created, nil
}

// CreateDirect registers a sale with no order behind it.
func (s *Service) CreateDirect(ctx context.Context, in DirectSaleInput, createdBy int64) (SalesLedger, error) {
	in.ClientName = strings.TrimSpace(in.ClientName)
	if err := s.validator.Struct(in); err != nil {
		return SalesLedger{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	salesDate := s.today()
	if in.SalesDate != nil {
		salesDate = dateOnly(*in.SalesDate, s.seq.Location())
	}
	supply := itemsTotal(in.Items)
	vat := shared.TaxOf(supply, s.taxRate)
	l := SalesLedger{
		Origin:        OriginDirect,
		ClientID:      in.ClientID,
		ClientName:    in.ClientName,
		SalesDate:     salesDate,
		SupplyAmount:  supply,
		VATAmount:     vat,
		TotalAmount:   supply + vat,
		SalesStatus:   StatusRegistered,
		PaymentMethod: in.PaymentMethod,
		Memo:          in.Memo,
		CreatedBy:     createdBy,
	}
	for _, it := range in.Items {
		l.Items = append(l.Items, SalesLedgerItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      int64(it.Quantity) * it.UnitPrice,
		})
	}
	if in.ClientID != nil {
		due, err := s.dueDate(ctx, *in.ClientID, salesDate)
		if err != nil {
			return SalesLedger{}, err
		}
		l.DueDate = due
	}
	s.applyCapture(&l)

	created, err := s.insertSalesLedger(ctx, l)
	if err != nil {
		return SalesLedger{}, err
	}
	s.afterCreate(ctx, created)
	return created, nil
}

// applyCapture marks prepaid sales as collected in full.
func (s *Service) applyCapture(l *SalesLedger) {
	if IsPrepaid(l.PaymentMethod) {
		l.ReceivedAmount = l.TotalAmount
	}
	l.OutstandingAmount, l.PaymentStatus = balance(l.TotalAmount, l.ReceivedAmount, PaymentUnpaid)
}

func (s *Service) insertSalesLedger(ctx context.Context, l SalesLedger) (SalesLedger, error) {
	var created SalesLedger
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.seq.Next(ctx, tx, sequence.ScopeSalesLedger, l.SalesDate)
		if err != nil {
			return err
		}
		l.LedgerNumber = number
		created, err = tx.InsertSalesLedger(ctx, l)
		return err
	})
	return created, err
}

func (s *Service) afterCreate(ctx context.Context, l SalesLedger) {
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindSalesJournal, l.ID, nil))
	if IsPrepaid(l.PaymentMethod) && l.TotalAmount > 0 {
		s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindAutoReceipt, l.ID, nil))
	}
	s.invalidate(ctx)
	s.record(ctx, l.CreatedBy, "sales_ledger.create", "sales_ledger", l.ID, map[string]any{
		"ledger_number":  l.LedgerNumber,
		"total_amount":   l.TotalAmount,
		"payment_status": string(l.PaymentStatus),
	})
}

// AddReceipt applies a payment. The ceiling check and both writes run under
// the ledger row lock so concurrent receipts serialise.
func (s *Service) AddReceipt(ctx context.Context, ledgerID int64, in ReceiptInput, createdBy int64) (SalesLedger, error) {
	if err := s.validator.Struct(in); err != nil {
		return SalesLedger{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	receiptDate := s.today()
	if in.ReceiptDate != nil {
		receiptDate = dateOnly(*in.ReceiptDate, s.seq.Location())
	}
	var (
		updated SalesLedger
		receipt SalesReceipt
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockSalesLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		if l.SalesStatus == StatusCancelled {
			return ErrLedgerCancelled
		}
		if in.Amount > l.OutstandingAmount {
			return fmt.Errorf("%w: amount %d exceeds outstanding %d", ErrExcessPayment, in.Amount, l.OutstandingAmount)
		}
		number, err := s.seq.Next(ctx, tx, sequence.ScopeSalesReceipt, receiptDate)
		if err != nil {
			return err
		}
		receipt, err = tx.InsertSalesReceipt(ctx, SalesReceipt{
			ReceiptNumber: number,
			SalesLedgerID: l.ID,
			Amount:        in.Amount,
			PaymentMethod: in.PaymentMethod,
			ReceiptDate:   receiptDate,
			Memo:          in.Memo,
			CreatedBy:     createdBy,
		})
		if err != nil {
			return err
		}
		l.ReceivedAmount += in.Amount
		l.OutstandingAmount, l.PaymentStatus = balance(l.TotalAmount, l.ReceivedAmount, l.PaymentStatus)
		if err := tx.UpdateSalesLedger(ctx, l); err != nil {
			return err
		}
		updated = l
		return nil
	})
	if err != nil {
		return SalesLedger{}, err
	}
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindReceiptJournal, receipt.ID, nil))
	s.invalidate(ctx)
	s.record(ctx, createdBy, "sales_ledger.receipt", "sales_ledger", updated.ID, map[string]any{
		"receipt_number": receipt.ReceiptNumber,
		"amount":         receipt.Amount,
		"outstanding":    updated.OutstandingAmount,
	})
	return updated, nil
}

// CreateAutoReceipt writes the synthetic receipt of a prepaid sale. It is a
// no-op when the ledger already has receipts.
func (s *Service) CreateAutoReceipt(ctx context.Context, ledgerID int64) error {
	var receipt SalesReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockSalesLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		if l.SalesStatus == StatusCancelled || l.TotalAmount == 0 {
			return nil
		}
		n, err := tx.CountSalesReceipts(ctx, l.ID)
		if err != nil || n > 0 {
			return err
		}
		today := s.today()
		number, err := s.seq.Next(ctx, tx, sequence.ScopeSalesReceipt, today)
		if err != nil {
			return err
		}
		receipt, err = tx.InsertSalesReceipt(ctx, SalesReceipt{
			ReceiptNumber: number,
			SalesLedgerID: l.ID,
			Amount:        l.TotalAmount,
			PaymentMethod: l.PaymentMethod,
			ReceiptDate:   today,
			Memo:          "captured at checkout",
			CreatedBy:     l.CreatedBy,
		})
		return err
	})
	if err != nil || receipt.ID == 0 {
		return err
	}
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindReceiptJournal, receipt.ID, nil))
	return nil
}

// Confirm marks a ledger as confirmed by staff. Confirming twice is a no-op.
func (s *Service) Confirm(ctx context.Context, ledgerID, by int64) (SalesLedger, error) {
	var (
		out     SalesLedger
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockSalesLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		switch l.SalesStatus {
		case StatusCancelled:
			return ErrLedgerCancelled
		case StatusConfirmed:
			out = l
			return nil
		}
		now := s.now()
		l.SalesStatus = StatusConfirmed
		l.ConfirmedBy = &by
		l.ConfirmedAt = &now
		out, changed = l, true
		return tx.UpdateSalesLedger(ctx, l)
	})
	if err != nil {
		return SalesLedger{}, err
	}
	if changed {
		s.invalidate(ctx)
		s.record(ctx, by, "sales_ledger.confirm", "sales_ledger", out.ID, nil)
	}
	return out, nil
}

// Cancel marks the ledger cancelled with nothing outstanding, then reverses
// every SALES and RECEIPT journal of the ledger that has not been reversed
// yet. The status flips first so a journal posted concurrently either shows
// up in the reversal scan or sees the cancellation and reverses itself.
// Reversal failures are recorded for reconciliation and do not stop the
// cancellation. Cancelling twice posts no further reversals.
func (s *Service) Cancel(ctx context.Context, ledgerID int64, reason string, by int64) (SalesLedger, error) {
	var (
		out     SalesLedger
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.LockSalesLedger(ctx, ledgerID)
		if err != nil {
			return err
		}
		if l.SalesStatus == StatusCancelled {
			out = l
			return nil
		}
		now := s.now()
		l.SalesStatus = StatusCancelled
		l.OutstandingAmount = 0
		l.PaymentStatus = PaymentUnpaid
		l.CancelledAt = &now
		l.CancelReason = reason
		out, changed = l, true
		return tx.UpdateSalesLedger(ctx, l)
	})
	if err != nil {
		return SalesLedger{}, err
	}
	if err := s.reverseAll(ctx, ledgerID, reason, by, journal.SourceSales, journal.SourceReceipt); err != nil {
		return SalesLedger{}, err
	}
	if changed {
		s.invalidate(ctx)
		s.record(ctx, by, "sales_ledger.cancel", "sales_ledger", out.ID, map[string]any{"reason": reason})
	}
	return out, nil
}

// CancelForOrder cancels the ledger of an order, if one exists.
func (s *Service) CancelForOrder(ctx context.Context, orderID int64, reason string, by int64) error {
	l, err := s.repo.GetSalesLedgerByOrder(ctx, orderID)
	if errors.Is(err, ErrLedgerNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.Cancel(ctx, l.ID, reason, by)
	return err
}

// reverseAll runs one reversal effect per unreversed journal of the given
// source types. Each reversal is independent and never fails the caller.
func (s *Service) reverseAll(ctx context.Context, ledgerID int64, reason string, by int64, types ...journal.SourceType) error {
	var posted []journal.Journal
	for _, st := range types {
		js, err := s.journals.GetJournalsBySource(ctx, st, ledgerID)
		if err != nil {
			return fmt.Errorf("load %s journals: %w", st, err)
		}
		posted = append(posted, js...)
	}
	pending, err := s.journals.Unreversed(ctx, posted)
	if err != nil {
		return fmt.Errorf("load reversals: %w", err)
	}
	for _, j := range pending {
		s.effects.Run(ctx, reconcile.NewEffect(reconcile.KindReversal, j.ID, reversalPayload{Reason: reason, By: by}))
	}
	return nil
}

// OrderTotals carries the re-derived amounts of an adjusted order.
type OrderTotals struct {
	OrderID     int64
	Tax         int64
	FinalAmount int64
	Lines       []OrderLine
}

// SyncOrderTotals re-derives the mirrored amounts of an order's ledger inside
// the caller's transaction, preserving what was already received. It reports
// whether a ledger was changed. A missing or cancelled ledger is left alone.
func (s *Service) SyncOrderTotals(ctx context.Context, tx TxRepository, totals OrderTotals) (bool, error) {
	l, err := tx.LockSalesLedgerByOrder(ctx, totals.OrderID)
	if errors.Is(err, ErrLedgerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if l.SalesStatus == StatusCancelled {
		return false, nil
	}
	total := shared.NonNegative(totals.FinalAmount)
	vat := min(shared.NonNegative(totals.Tax), total)
	l.TotalAmount = total
	l.VATAmount = vat
	l.SupplyAmount = total - vat
	l.OutstandingAmount, l.PaymentStatus = balance(l.TotalAmount, l.ReceivedAmount, l.PaymentStatus)
	if err := tx.UpdateSalesLedger(ctx, l); err != nil {
		return false, err
	}
	if totals.Lines != nil {
		if err := tx.ReplaceSalesLedgerItems(ctx, l.ID, linesToItems(totals.Lines)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AfterSync publishes a committed SyncOrderTotals: the sales journal is
// re-derived and cached reports are dropped.
func (s *Service) AfterSync(ctx context.Context, orderID int64) {
	l, err := s.repo.GetSalesLedgerByOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("load synced ledger", slog.Int64("order_id", orderID), slog.Any("error", err))
		return
	}
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindSalesJournal, l.ID, nil))
	s.invalidate(ctx)
}

// ResyncFromOrder runs SyncOrderTotals in its own transaction. It backs the
// retry path when the in-transaction re-sync of an adjustment failed.
func (s *Service) ResyncFromOrder(ctx context.Context, totals OrderTotals) error {
	var changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		changed, err = s.SyncOrderTotals(ctx, tx, totals)
		return err
	})
	if err != nil {
		return err
	}
	if changed {
		s.AfterSync(ctx, totals.OrderID)
	}
	return nil
}

// UpdateOverdueStatus flips unpaid and partial ledgers past their due date to
// overdue. Running it twice yields the same state.
func (s *Service) UpdateOverdueStatus(ctx context.Context) (OverdueResult, error) {
	res, err := s.repo.MarkOverdue(ctx, s.today())
	if err != nil {
		return OverdueResult{}, err
	}
	if res.Sales > 0 || res.Purchase > 0 {
		s.invalidate(ctx)
		s.logger.Info("overdue ledgers flagged", slog.Int64("sales", res.Sales), slog.Int64("purchase", res.Purchase))
	}
	return res, nil
}

// CleanupOrphans cancels and deletes order-origin ledgers whose order no
// longer exists and that never received money.
func (s *Service) CleanupOrphans(ctx context.Context) (int, error) {
	ids, err := s.repo.ListOrphans(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if _, err := s.Cancel(ctx, id, "order removed", 0); err != nil {
			s.logger.Warn("cancel orphan ledger", slog.Int64("ledger_id", id), slog.Any("error", err))
			continue
		}
		if err := s.repo.DeleteSalesLedger(ctx, id); err != nil {
			s.logger.Warn("delete orphan ledger", slog.Int64("ledger_id", id), slog.Any("error", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.invalidate(ctx)
	}
	return removed, nil
}

func (s *Service) dueDate(ctx context.Context, clientID int64, day time.Time) (*time.Time, error) {
	if s.clients == nil || clientID <= 0 {
		return nil, nil
	}
	c, err := s.clients.Get(ctx, clientID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load client terms: %w", err)
	}
	return c.DueDate(day), nil
}

func (s *Service) today() time.Time {
	return dateOnly(s.now(), s.seq.Location())
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("ledger audit", slog.String("action", action), slog.Int64("id", id), slog.Any("error", err))
	}
}

func linesToItems(lines []OrderLine) []SalesLedgerItem {
	items := make([]SalesLedgerItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, SalesLedgerItem{
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
		})
	}
	return items
}
