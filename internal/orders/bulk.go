package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/shared"
)

// outcome is the result of one bulk item that did not fail.
type outcome struct {
	skipped bool
	created int64
	effects []reconcile.Effect
}

type bulkFunc func(ctx context.Context, tx TxRepository, id int64) (outcome, error)

// runBulk applies fn to every distinct id. Ids are processed in chunks of
// BatchSize, one transaction per chunk and one savepoint per id, so a failing
// id never discards its neighbours. Effects are dispatched once the chunk commits.
func (s *Service) runBulk(ctx context.Context, op string, ids []int64, fn bulkFunc) BulkResult {
	var result BulkResult
	ids = dedupe(ids)
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		chunk := ids[start:min(start+s.cfg.BatchSize, len(ids))]

		var (
			local   BulkResult
			effects []reconcile.Effect
		)
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			local, effects = BulkResult{}, nil
			for _, id := range chunk {
				var out outcome
				err := tx.Savepoint(ctx, func(sp TxRepository) error {
					var err error
					out, err = fn(ctx, sp, id)
					return err
				})
				switch {
				case err != nil:
					local.Failed++
					local.Errors = append(local.Errors, BulkError{ID: id, Error: err.Error()})
				case out.skipped:
					local.Skipped++
				default:
					local.Success++
					if out.created != 0 {
						local.Created = append(local.Created, out.created)
					}
					effects = append(effects, out.effects...)
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Error("bulk chunk rolled back", slog.String("op", op), slog.Int("size", len(chunk)), slog.Any("error", err))
			for _, id := range chunk {
				result.Failed++
				result.Errors = append(result.Errors, BulkError{ID: id, Error: err.Error()})
			}
			continue
		}
		result.Success += local.Success
		result.Failed += local.Failed
		result.Skipped += local.Skipped
		result.Errors = append(result.Errors, local.Errors...)
		result.Created = append(result.Created, local.Created...)
		for _, e := range effects {
			s.effects.Dispatch(ctx, e)
		}
	}
	s.logger.Info("bulk operation",
		slog.String("op", op),
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
	)
	return result
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// BulkUpdateStatus moves many orders to one status. Orders already in the
// target status are skipped; disallowed transitions fail individually.
func (s *Service) BulkUpdateStatus(ctx context.Context, req BulkStatusRequest, by int64) (BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return BulkResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	result := s.runBulk(ctx, "status", req.IDs, func(ctx context.Context, tx TxRepository, id int64) (outcome, error) {
		var err error
		if req.Status == StatusCancelled {
			_, err = s.cancel(ctx, tx, id, req.Reason)
		} else {
			_, err = s.transition(ctx, tx, id, req.Status)
		}
		if errors.Is(err, ErrNoChange) {
			return outcome{skipped: true}, nil
		}
		if err != nil {
			return outcome{}, err
		}
		var effects []reconcile.Effect
		if req.Status == StatusCancelled {
			effects = append(effects, reconcile.NewEffect(reconcile.KindLedgerCancelForOrder, id, ledgerPayload{By: by, Reason: req.Reason}))
		}
		return outcome{effects: effects}, nil
	})
	s.record(ctx, by, "order.bulk_status", 0, map[string]any{"status": string(req.Status), "success": result.Success})
	return result, nil
}

// BulkCancel cancels many orders.
func (s *Service) BulkCancel(ctx context.Context, req BulkRequest, by int64) (BulkResult, error) {
	return s.BulkUpdateStatus(ctx, BulkStatusRequest{IDs: req.IDs, Status: StatusCancelled, Reason: req.Reason}, by)
}

// BulkDelete removes orders still awaiting receipt or already cancelled.
// Other orders are skipped. Each removed order's ledger is cancelled afterwards.
func (s *Service) BulkDelete(ctx context.Context, req BulkRequest, by int64) (BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return BulkResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	result := s.runBulk(ctx, "delete", req.IDs, func(ctx context.Context, tx TxRepository, id int64) (outcome, error) {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return outcome{}, err
		}
		if !o.Deletable() {
			return outcome{skipped: true}, nil
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return outcome{}, err
		}
		reason := req.Reason
		if reason == "" {
			reason = "order deleted"
		}
		return outcome{effects: []reconcile.Effect{
			reconcile.NewEffect(reconcile.KindLedgerCancelForOrder, id, ledgerPayload{By: by, Reason: reason}),
		}}, nil
	})
	s.record(ctx, by, "order.bulk_delete", 0, map[string]any{"success": result.Success})
	return result, nil
}

// BulkDuplicate copies orders as new orders awaiting receipt. The copies get
// fresh numbers and no adjustment; staged files stay with the source order.
func (s *Service) BulkDuplicate(ctx context.Context, req BulkRequest, by int64) (BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return BulkResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	result := s.runBulk(ctx, "duplicate", req.IDs, func(ctx context.Context, tx TxRepository, id int64) (outcome, error) {
		src, err := tx.LockOrder(ctx, id)
		if err != nil {
			return outcome{}, err
		}
		dup := Order{
			ClientID:       src.ClientID,
			ClientName:     src.ClientName,
			Status:         StatusPendingReceipt,
			CurrentProcess: ProcessReceiptPending,
			PaymentMethod:  src.PaymentMethod,
			ShippingFee:    src.ShippingFee,
			Memo:           src.Memo,
			CreatedBy:      by,
			CreatedAt:      s.now(),
		}
		for _, it := range src.Items {
			dup.Items = append(dup.Items, Item{
				ProductName: it.ProductName,
				FolderName:  it.FolderName,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
		}
		if src.Shipping != nil {
			sh := *src.Shipping
			sh.OrderID = 0
			dup.Shipping = &sh
		}
		dup.Recalculate(s.cfg.TaxRate)
		created, err := s.insert(ctx, tx, dup, "duplicated from "+src.OrderNumber)
		if err != nil {
			return outcome{}, err
		}
		return outcome{created: created.ID, effects: s.creationEffects(created, by)}, nil
	})
	s.record(ctx, by, "order.bulk_duplicate", 0, map[string]any{"created": result.Created})
	return result, nil
}
