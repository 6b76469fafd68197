package orders

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
	"github.com/printhub/backoffice/internal/files"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/sequence"
	"github.com/printhub/backoffice/internal/shared"
)

// Repository abstracts order persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	ListHistory(ctx context.Context, orderID int64) ([]ProcessHistory, error)
	RecentFolders(ctx context.Context, clientID int64, since time.Time) ([]FolderMatch, error)
}

// TxRepository exposes order writes bound to one transaction.
type TxRepository interface {
	sequence.Store
	InsertOrder(ctx context.Context, o Order) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	UpdateItems(ctx context.Context, items []Item) error
	DeleteOrder(ctx context.Context, id int64) error
	InsertHistory(ctx context.Context, h ProcessHistory) error
	// Savepoint runs fn in a nested transaction; its failure rolls back only fn's writes.
	Savepoint(ctx context.Context, fn func(TxRepository) error) error
	// Ledgers binds ledger writes to the same transaction.
	Ledgers() ledger.TxRepository
}

// Ledgers is the ledger writer as seen by orders.
type Ledgers interface {
	CreateFromOrder(ctx context.Context, order ledger.OrderSnapshot, createdBy int64) (ledger.SalesLedger, error)
	CancelForOrder(ctx context.Context, orderID int64, reason string, by int64) error
	SyncOrderTotals(ctx context.Context, tx ledger.TxRepository, totals ledger.OrderTotals) (bool, error)
	AfterSync(ctx context.Context, orderID int64)
	ResyncFromOrder(ctx context.Context, totals ledger.OrderTotals) error
}

// Clients resolves the ordering client.
type Clients interface {
	Get(ctx context.Context, id int64) (clients.Client, error)
}

// Effects queues post-commit side effects.
type Effects interface {
	Dispatch(ctx context.Context, e reconcile.Effect)
}

// Idempotency guards checkout retries.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// AuditPort records order events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config tunes order behaviour.
type Config struct {
	TaxRate             decimal.Decimal
	BatchSize           int
	DuplicateWindowDays int
}

const idempotencyModule = "orders.create"

// Service is the order aggregate manager.
type Service struct {
	repo      Repository
	seq       *sequence.Allocator
	clients   Clients
	ledgers   Ledgers
	effects   Effects
	idem      Idempotency
	audit     AuditPort
	logger    *slog.Logger
	cfg       Config
	validator *validator.Validate
	now       func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo        Repository
	Sequences   *sequence.Allocator
	Clients     Clients
	Ledgers     Ledgers
	Effects     Effects
	Idempotency Idempotency
	Audit       AuditPort
	Logger      *slog.Logger
}

// NewService wires the order manager.
func NewService(deps Deps, cfg Config) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = shared.DefaultTaxRate
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.DuplicateWindowDays <= 0 {
		cfg.DuplicateWindowDays = 30
	}
	return &Service{
		repo:      deps.Repo,
		seq:       deps.Sequences,
		clients:   deps.Clients,
		ledgers:   deps.Ledgers,
		effects:   deps.Effects,
		idem:      deps.Idempotency,
		audit:     deps.Audit,
		logger:    logger.With(slog.String("component", "orders")),
		cfg:       cfg,
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

// Get loads an order with items and shipping.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// List pages through orders.
func (s *Service) List(ctx context.Context, f ListFilter, page, perPage int) ([]Order, shared.Pagination, error) {
	f.Limit, f.Offset = shared.LimitOffset(page, perPage)
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, f.Limit, total), nil
}

// History lists the process changes of an order.
func (s *Service) History(ctx context.Context, id int64) ([]ProcessHistory, error) {
	return s.repo.ListHistory(ctx, id)
}

// Create places an order. Numbering, totals, insert and the first history row
// commit together; file relocation and ledger creation follow as effects.
func (s *Service) Create(ctx context.Context, req CreateRequest, idempotencyKey string, by int64) (Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return Order{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		return Order{}, err
	}
	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, idempotencyModule); err != nil {
			return Order{}, err
		}
	}

	o := Order{
		ClientID:       client.ID,
		ClientName:     client.Name,
		Status:         StatusPendingReceipt,
		CurrentProcess: ProcessReceiptPending,
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		ShippingFee:    req.ShippingFee,
		Memo:           req.Memo,
		CreatedBy:      by,
		CreatedAt:      s.now(),
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, Item{
			ProductName: strings.TrimSpace(it.ProductName),
			FolderName:  strings.TrimSpace(it.FolderName),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			StagingKey:  it.StagingKey,
		})
	}
	if req.Shipping != nil {
		o.Shipping = &Shipping{
			RecipientName: req.Shipping.RecipientName,
			Phone:         req.Shipping.Phone,
			PostalCode:    req.Shipping.PostalCode,
			Address:       req.Shipping.Address,
			AddressDetail: req.Shipping.AddressDetail,
			Method:        req.Shipping.Method,
		}
	}
	o.Recalculate(s.cfg.TaxRate)

	var created Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = s.insert(ctx, tx, o, "order created")
		return err
	})
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if derr := s.idem.Delete(ctx, idempotencyKey, idempotencyModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", idempotencyKey), slog.Any("error", derr))
			}
		}
		return Order{}, err
	}

	for _, e := range s.creationEffects(created, by) {
		s.effects.Dispatch(ctx, e)
	}
	s.record(ctx, by, "order.create", created.ID, map[string]any{
		"order_number": created.OrderNumber,
		"final_amount": created.FinalAmount,
	})
	return created, nil
}

func (s *Service) insert(ctx context.Context, tx TxRepository, o Order, note string) (Order, error) {
	number, err := s.seq.Next(ctx, tx, sequence.ScopeOrder, o.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	o.OrderNumber = number
	created, err := tx.InsertOrder(ctx, o)
	if err != nil {
		return Order{}, err
	}
	err = tx.InsertHistory(ctx, ProcessHistory{
		OrderID:   created.ID,
		ToProcess: created.CurrentProcess,
		Note:      note,
		ChangedBy: o.CreatedBy,
		ChangedAt: o.CreatedAt,
	})
	return created, err
}

type ledgerPayload struct {
	By     int64  `json:"by"`
	Reason string `json:"reason,omitempty"`
}

func (s *Service) creationEffects(o Order, by int64) []reconcile.Effect {
	var effects []reconcile.Effect
	if keys := o.StagingKeys(); len(keys) > 0 {
		effects = append(effects, reconcile.NewEffect(reconcile.KindFileRelocation, o.ID, files.Relocation{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Keys:        keys,
		}))
	}
	return append(effects, reconcile.NewEffect(reconcile.KindLedgerFromOrder, o.ID, ledgerPayload{By: by}))
}

// UpdateStatus moves one order along the status machine.
func (s *Service) UpdateStatus(ctx context.Context, id int64, req StatusRequest, by int64) (Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return Order{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if req.Status == StatusCancelled {
		return s.Cancel(ctx, id, req.Reason, by)
	}
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.transition(ctx, tx, id, req.Status)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.record(ctx, by, "order.status", id, map[string]any{"status": string(out.Status)})
	return out, nil
}

func (s *Service) transition(ctx context.Context, tx TxRepository, id int64, to Status) (Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if err := o.CanTransition(to); err != nil {
		return o, err
	}
	o.Status = to
	o.UpdatedAt = s.now()
	return o, tx.UpdateOrder(ctx, o)
}

// AdvanceProcess moves the inspection sub-state and writes a history row.
func (s *Service) AdvanceProcess(ctx context.Context, id int64, req ProcessRequest, by int64) (Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return Order{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := o.CanAdvance(req.Process); err != nil {
			return err
		}
		from := o.CurrentProcess
		o.CurrentProcess = req.Process
		o.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return tx.InsertHistory(ctx, ProcessHistory{
			OrderID:     o.ID,
			FromProcess: from,
			ToProcess:   req.Process,
			Note:        req.Note,
			ChangedBy:   by,
			ChangedAt:   o.UpdatedAt,
		})
	})
	if err != nil {
		return Order{}, err
	}
	return out, nil
}

// Cancel cancels the order and queues cancellation of its ledger.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, by int64) (Order, error) {
	var out Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.cancel(ctx, tx, id, reason)
		return err
	})
	if err != nil {
		return Order{}, err
	}
	s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindLedgerCancelForOrder, id, ledgerPayload{By: by, Reason: reason}))
	s.record(ctx, by, "order.cancel", id, map[string]any{"reason": reason})
	return out, nil
}

func (s *Service) cancel(ctx context.Context, tx TxRepository, id int64, reason string) (Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if err := o.CanTransition(StatusCancelled); err != nil {
		return o, err
	}
	o.Status = StatusCancelled
	o.CancelReason = reason
	o.UpdatedAt = s.now()
	return o, tx.UpdateOrder(ctx, o)
}

// AdjustOrder applies staff overrides, recomputes the order amounts and
// re-derives the ledger in the same transaction. A failed ledger re-sync is
// rolled back to its savepoint and retried later; the adjustment still commits.
func (s *Service) AdjustOrder(ctx context.Context, id int64, req AdjustRequest, by int64) (Order, error) {
	if err := s.validator.Struct(req); err != nil {
		return Order{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	var (
		out    Order
		synced bool
		resync bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return ErrOrderCancelled
		}
		byID := make(map[int64]int, len(o.Items))
		for i, it := range o.Items {
			byID[it.ID] = i
		}
		for _, adj := range req.Items {
			i, ok := byID[adj.ItemID]
			if !ok {
				return fmt.Errorf("%w: %d", ErrItemNotFound, adj.ItemID)
			}
			if adj.Quantity != nil {
				o.Items[i].Quantity = *adj.Quantity
			}
			if adj.UnitPrice != nil {
				o.Items[i].UnitPrice = *adj.UnitPrice
			}
		}
		if req.ShippingFee != nil {
			o.ShippingFee = *req.ShippingFee
		}
		if req.AdjustmentAmount != nil {
			o.AdjustmentAmount = *req.AdjustmentAmount
		}
		if req.Memo != nil {
			o.Memo = *req.Memo
		}
		o.Recalculate(s.cfg.TaxRate)
		o.UpdatedAt = s.now()
		if err := tx.UpdateItems(ctx, o.Items); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		out = o

		serr := tx.Savepoint(ctx, func(sp TxRepository) error {
			changed, err := s.ledgers.SyncOrderTotals(ctx, sp.Ledgers(), o.Totals())
			synced = changed
			return err
		})
		if serr != nil {
			synced, resync = false, true
			s.logger.Warn("ledger re-sync failed, deferred",
				slog.Int64("order_id", o.ID),
				slog.String("order_number", o.OrderNumber),
				slog.Any("error", serr),
			)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if synced {
		s.ledgers.AfterSync(ctx, id)
	}
	if resync {
		s.effects.Dispatch(ctx, reconcile.NewEffect(reconcile.KindLedgerResync, id, nil))
	}
	s.record(ctx, by, "order.adjust", id, map[string]any{
		"final_amount":      out.FinalAmount,
		"adjustment_amount": out.AdjustmentAmount,
	})
	return out, nil
}

// RegisterEffects binds the order-driven ledger handlers.
func (s *Service) RegisterEffects(r interface {
	Register(kind reconcile.Kind, h reconcile.Handler)
}) {
	r.Register(reconcile.KindLedgerFromOrder, s.handleLedgerFromOrder)
	r.Register(reconcile.KindLedgerCancelForOrder, s.handleLedgerCancel)
	r.Register(reconcile.KindLedgerResync, s.handleLedgerResync)
}

func (s *Service) handleLedgerFromOrder(ctx context.Context, e reconcile.Effect) error {
	var p ledgerPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	o, err := s.repo.Get(ctx, e.RefID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status == StatusCancelled {
		return nil
	}
	if _, err := s.ledgers.CreateFromOrder(ctx, o.Snapshot(), p.By); err != nil {
		return err
	}
	// A cancel that committed while the ledger was being written found no
	// ledger to cancel.
	o, err = s.repo.Get(ctx, e.RefID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status != StatusCancelled {
		return nil
	}
	s.logger.Warn("order cancelled while its ledger was created",
		slog.Int64("order_id", o.ID),
		slog.String("order_number", o.OrderNumber),
	)
	return s.ledgers.CancelForOrder(ctx, o.ID, o.CancelReason, p.By)
}

func (s *Service) handleLedgerCancel(ctx context.Context, e reconcile.Effect) error {
	var p ledgerPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return s.ledgers.CancelForOrder(ctx, e.RefID, p.Reason, p.By)
}

func (s *Service) handleLedgerResync(ctx context.Context, e reconcile.Effect) error {
	o, err := s.repo.Get(ctx, e.RefID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.ledgers.ResyncFromOrder(ctx, o.Totals())
}

func (s *Service) record(ctx context.Context, actor int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "order",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("order audit", slog.String("action", action), slog.Int64("order_id", id), slog.Any("error", err))
	}
}
