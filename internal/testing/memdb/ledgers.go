package memdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/shared"
)

func errDuplicateNumber(n string) error {
	return fmt.Errorf("%w: number %s already used", shared.ErrConflict, n)
}

// Ledgers returns the ledger repository.
func (d *DB) Ledgers() ledger.Repository { return ledgerRepo{d} }

// AllSalesLedgers lists every sales ledger with its children, ordered by id.
func (d *DB) AllSalesLedgers() []ledger.SalesLedger {
	var out []ledger.SalesLedger
	d.locked(func(st *state) {
		for _, id := range sortedKeys(st.sales) {
			out = append(out, st.salesWithChildren(id))
		}
	})
	return out
}

// SetDueDate rewrites a ledger's due date, as if it had been created earlier.
func (d *DB) SetDueDate(ledgerID int64, due time.Time) {
	d.locked(func(st *state) {
		l := st.sales[ledgerID]
		l.DueDate = &due
		st.sales[ledgerID] = l
	})
}

type ledgerRepo struct{ d *DB }

type ledgerTx struct {
	seqStore
}

func (r ledgerRepo) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return r.d.inTx(func() error {
		return fn(ctx, ledgerTx{seqStore{r.d}})
	})
}

func (st *state) salesWithChildren(id int64) ledger.SalesLedger {
	l := st.sales[id]
	l.Items, l.Receipts = nil, nil
	for _, iid := range sortedKeys(st.salesItems) {
		if it := st.salesItems[iid]; it.SalesLedgerID == id {
			l.Items = append(l.Items, it)
		}
	}
	for _, rid := range sortedKeys(st.receipts) {
		if rc := st.receipts[rid]; rc.SalesLedgerID == id {
			l.Receipts = append(l.Receipts, rc)
		}
	}
	return l
}

func (t ledgerTx) InsertSalesLedger(_ context.Context, l ledger.SalesLedger) (ledger.SalesLedger, error) {
	if err := t.d.check("ledger.insert_sales"); err != nil {
		return ledger.SalesLedger{}, err
	}
	st := t.d.st
	for _, existing := range st.sales {
		if l.OrderID != nil && existing.OrderID != nil && *existing.OrderID == *l.OrderID {
			return ledger.SalesLedger{}, ledger.ErrOrderAlreadyLedgered
		}
		if existing.LedgerNumber == l.LedgerNumber {
			return ledger.SalesLedger{}, errDuplicateNumber(l.LedgerNumber)
		}
	}
	now := t.d.now()
	l.ID = st.nextID()
	l.CreatedAt, l.UpdatedAt = now, now
	items := l.Items
	l.Items, l.Receipts = nil, nil
	st.sales[l.ID] = l
	t.putSalesItems(l.ID, items)
	return st.salesWithChildren(l.ID), nil
}

func (t ledgerTx) putSalesItems(ledgerID int64, items []ledger.SalesLedgerItem) {
	st := t.d.st
	for _, it := range items {
		it.ID = st.nextID()
		it.SalesLedgerID = ledgerID
		st.salesItems[it.ID] = it
	}
}

func (t ledgerTx) LockSalesLedger(_ context.Context, id int64) (ledger.SalesLedger, error) {
	if _, ok := t.d.st.sales[id]; !ok {
		return ledger.SalesLedger{}, ledger.ErrLedgerNotFound
	}
	return t.d.st.salesWithChildren(id), nil
}

func (t ledgerTx) LockSalesLedgerByOrder(_ context.Context, orderID int64) (ledger.SalesLedger, error) {
	if err := t.d.check("ledger.lock_by_order"); err != nil {
		return ledger.SalesLedger{}, err
	}
	for id, l := range t.d.st.sales {
		if l.OrderID != nil && *l.OrderID == orderID {
			return t.d.st.salesWithChildren(id), nil
		}
	}
	return ledger.SalesLedger{}, ledger.ErrLedgerNotFound
}

func (t ledgerTx) UpdateSalesLedger(_ context.Context, l ledger.SalesLedger) error {
	if err := t.d.check("ledger.update_sales"); err != nil {
		return err
	}
	prev, ok := t.d.st.sales[l.ID]
	if !ok {
		return ledger.ErrLedgerNotFound
	}
	prev.SupplyAmount = l.SupplyAmount
	prev.VATAmount = l.VATAmount
	prev.TotalAmount = l.TotalAmount
	prev.ReceivedAmount = l.ReceivedAmount
	prev.OutstandingAmount = l.OutstandingAmount
	prev.PaymentStatus = l.PaymentStatus
	prev.SalesStatus = l.SalesStatus
	prev.DueDate = l.DueDate
	prev.Memo = l.Memo
	prev.ConfirmedBy = l.ConfirmedBy
	prev.ConfirmedAt = l.ConfirmedAt
	prev.CancelledAt = l.CancelledAt
	prev.CancelReason = l.CancelReason
	prev.UpdatedAt = t.d.now()
	t.d.st.sales[l.ID] = prev
	return nil
}

func (t ledgerTx) ReplaceSalesLedgerItems(_ context.Context, ledgerID int64, items []ledger.SalesLedgerItem) error {
	if err := t.d.check("ledger.replace_items"); err != nil {
		return err
	}
	for id, it := range t.d.st.salesItems {
		if it.SalesLedgerID == ledgerID {
			delete(t.d.st.salesItems, id)
		}
	}
	t.putSalesItems(ledgerID, items)
	return nil
}

func (t ledgerTx) InsertSalesReceipt(_ context.Context, r ledger.SalesReceipt) (ledger.SalesReceipt, error) {
	if err := t.d.check("ledger.insert_receipt"); err != nil {
		return ledger.SalesReceipt{}, err
	}
	st := t.d.st
	for _, existing := range st.receipts {
		if existing.ReceiptNumber == r.ReceiptNumber {
			return ledger.SalesReceipt{}, errDuplicateNumber(r.ReceiptNumber)
		}
	}
	r.ID = st.nextID()
	r.CreatedAt = t.d.now()
	st.receipts[r.ID] = r
	return r, nil
}

func (t ledgerTx) CountSalesReceipts(_ context.Context, ledgerID int64) (int, error) {
	n := 0
	for _, r := range t.d.st.receipts {
		if r.SalesLedgerID == ledgerID {
			n++
		}
	}
	return n, nil
}

func (st *state) purchaseWithChildren(id int64) ledger.PurchaseLedger {
	l := st.purchases[id]
	l.Items, l.Payments = nil, nil
	for _, iid := range sortedKeys(st.purchaseItems) {
		if it := st.purchaseItems[iid]; it.PurchaseLedgerID == id {
			l.Items = append(l.Items, it)
		}
	}
	for _, pid := range sortedKeys(st.payments) {
		if p := st.payments[pid]; p.PurchaseLedgerID == id {
			l.Payments = append(l.Payments, p)
		}
	}
	return l
}

func (t ledgerTx) InsertPurchaseLedger(_ context.Context, l ledger.PurchaseLedger) (ledger.PurchaseLedger, error) {
	if err := t.d.check("ledger.insert_purchase"); err != nil {
		return ledger.PurchaseLedger{}, err
	}
	st := t.d.st
	for _, existing := range st.purchases {
		if existing.LedgerNumber == l.LedgerNumber {
			return ledger.PurchaseLedger{}, errDuplicateNumber(l.LedgerNumber)
		}
	}
	now := t.d.now()
	l.ID = st.nextID()
	l.CreatedAt, l.UpdatedAt = now, now
	items := l.Items
	l.Items, l.Payments = nil, nil
	st.purchases[l.ID] = l
	for _, it := range items {
		it.ID = st.nextID()
		it.PurchaseLedgerID = l.ID
		st.purchaseItems[it.ID] = it
	}
	return st.purchaseWithChildren(l.ID), nil
}

func (t ledgerTx) LockPurchaseLedger(_ context.Context, id int64) (ledger.PurchaseLedger, error) {
	if _, ok := t.d.st.purchases[id]; !ok {
		return ledger.PurchaseLedger{}, ledger.ErrLedgerNotFound
	}
	return t.d.st.purchaseWithChildren(id), nil
}

func (t ledgerTx) UpdatePurchaseLedger(_ context.Context, l ledger.PurchaseLedger) error {
	prev, ok := t.d.st.purchases[l.ID]
	if !ok {
		return ledger.ErrLedgerNotFound
	}
	l.LedgerNumber, l.SupplierName, l.PurchaseDate = prev.LedgerNumber, prev.SupplierName, prev.PurchaseDate
	l.PaymentMethod, l.CreatedBy, l.CreatedAt = prev.PaymentMethod, prev.CreatedBy, prev.CreatedAt
	l.Items, l.Payments = nil, nil
	l.UpdatedAt = t.d.now()
	t.d.st.purchases[l.ID] = l
	return nil
}

func (t ledgerTx) InsertPurchasePayment(_ context.Context, p ledger.PurchasePayment) (ledger.PurchasePayment, error) {
	st := t.d.st
	for _, existing := range st.payments {
		if existing.PaymentNumber == p.PaymentNumber {
			return ledger.PurchasePayment{}, errDuplicateNumber(p.PaymentNumber)
		}
	}
	p.ID = st.nextID()
	p.CreatedAt = t.d.now()
	st.payments[p.ID] = p
	return p, nil
}

func (r ledgerRepo) GetSalesLedger(_ context.Context, id int64) (ledger.SalesLedger, error) {
	var (
		l  ledger.SalesLedger
		ok bool
	)
	r.d.locked(func(st *state) {
		if _, ok = st.sales[id]; ok {
			l = st.salesWithChildren(id)
		}
	})
	if !ok {
		return ledger.SalesLedger{}, ledger.ErrLedgerNotFound
	}
	return l, nil
}

func (r ledgerRepo) GetSalesLedgerByOrder(_ context.Context, orderID int64) (ledger.SalesLedger, error) {
	var (
		l  ledger.SalesLedger
		ok bool
	)
	r.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.sales) {
			if s := st.sales[id]; s.OrderID != nil && *s.OrderID == orderID {
				l, ok = st.salesWithChildren(id), true
				return
			}
		}
	})
	if !ok {
		return ledger.SalesLedger{}, ledger.ErrLedgerNotFound
	}
	return l, nil
}

func matchesFilter(f ledger.ListFilter, status ledger.Status, payment ledger.PaymentStatus, clientID *int64, day time.Time, number, name string) bool {
	if f.PaymentStatus != "" && payment != f.PaymentStatus {
		return false
	}
	if f.Status != "" && status != f.Status {
		return false
	}
	if f.ClientID != nil && (clientID == nil || *clientID != *f.ClientID) {
		return false
	}
	if f.From != nil && day.Before(*f.From) {
		return false
	}
	if f.To != nil && day.After(*f.To) {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		return strings.Contains(strings.ToLower(number), s) || strings.Contains(strings.ToLower(name), s)
	}
	return true
}

func (r ledgerRepo) ListSalesLedgers(_ context.Context, f ledger.ListFilter) ([]ledger.SalesLedger, int, error) {
	var out []ledger.SalesLedger
	r.d.locked(func(st *state) {
		ids := sortedKeys(st.sales)
		for i := len(ids) - 1; i >= 0; i-- {
			l := st.sales[ids[i]]
			if matchesFilter(f, l.SalesStatus, l.PaymentStatus, l.ClientID, l.SalesDate, l.LedgerNumber, l.ClientName) {
				out = append(out, l)
			}
		}
	})
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r ledgerRepo) GetSalesReceipt(_ context.Context, id int64) (ledger.SalesReceipt, error) {
	var (
		rc ledger.SalesReceipt
		ok bool
	)
	r.d.locked(func(st *state) { rc, ok = st.receipts[id] })
	if !ok {
		return ledger.SalesReceipt{}, ledger.ErrReceiptNotFound
	}
	return rc, nil
}

func (r ledgerRepo) GetPurchaseLedger(_ context.Context, id int64) (ledger.PurchaseLedger, error) {
	var (
		l  ledger.PurchaseLedger
		ok bool
	)
	r.d.locked(func(st *state) {
		if _, ok = st.purchases[id]; ok {
			l = st.purchaseWithChildren(id)
		}
	})
	if !ok {
		return ledger.PurchaseLedger{}, ledger.ErrLedgerNotFound
	}
	return l, nil
}

func (r ledgerRepo) ListPurchaseLedgers(_ context.Context, f ledger.ListFilter) ([]ledger.PurchaseLedger, int, error) {
	f.ClientID = nil
	var out []ledger.PurchaseLedger
	r.d.locked(func(st *state) {
		ids := sortedKeys(st.purchases)
		for i := len(ids) - 1; i >= 0; i-- {
			l := st.purchases[ids[i]]
			if matchesFilter(f, l.PurchaseStatus, l.PaymentStatus, nil, l.PurchaseDate, l.LedgerNumber, l.SupplierName) {
				out = append(out, l)
			}
		}
	})
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r ledgerRepo) GetPurchasePayment(_ context.Context, id int64) (ledger.PurchasePayment, error) {
	var (
		p  ledger.PurchasePayment
		ok bool
	)
	r.d.locked(func(st *state) { p, ok = st.payments[id] })
	if !ok {
		return ledger.PurchasePayment{}, ledger.ErrReceiptNotFound
	}
	return p, nil
}

func overdue(payment ledger.PaymentStatus, status ledger.Status, due *time.Time, today time.Time) bool {
	return (payment == ledger.PaymentUnpaid || payment == ledger.PaymentPartial) &&
		status != ledger.StatusCancelled && due != nil && due.Before(today)
}

func (r ledgerRepo) MarkOverdue(_ context.Context, today time.Time) (ledger.OverdueResult, error) {
	var res ledger.OverdueResult
	err := r.d.inTx(func() error {
		if err := r.d.check("ledger.mark_overdue"); err != nil {
			return err
		}
		st := r.d.st
		for id, l := range st.sales {
			if overdue(l.PaymentStatus, l.SalesStatus, l.DueDate, today) {
				l.PaymentStatus = ledger.PaymentOverdue
				st.sales[id] = l
				res.Sales++
			}
		}
		for id, l := range st.purchases {
			if overdue(l.PaymentStatus, l.PurchaseStatus, l.DueDate, today) {
				l.PaymentStatus = ledger.PaymentOverdue
				st.purchases[id] = l
				res.Purchase++
			}
		}
		return nil
	})
	return res, err
}

func (r ledgerRepo) ListOrphans(context.Context) ([]int64, error) {
	var ids []int64
	r.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.sales) {
			l := st.sales[id]
			if l.Origin != ledger.OriginOrder || l.OrderID == nil {
				continue
			}
			if _, ok := st.orders[*l.OrderID]; ok {
				continue
			}
			received := false
			for _, rc := range st.receipts {
				if rc.SalesLedgerID == id {
					received = true
					break
				}
			}
			if !received {
				ids = append(ids, id)
			}
		}
	})
	return ids, nil
}

func (r ledgerRepo) DeleteSalesLedger(_ context.Context, id int64) error {
	var ok bool
	r.d.locked(func(st *state) {
		if _, ok = st.sales[id]; !ok {
			return
		}
		delete(st.sales, id)
		for iid, it := range st.salesItems {
			if it.SalesLedgerID == id {
				delete(st.salesItems, iid)
			}
		}
	})
	if !ok {
		return ledger.ErrLedgerNotFound
	}
	return nil
}
