package memdb

import (
	"context"
	"strings"
	"time"

	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/orders"
)

// Orders returns the order repository.
func (d *DB) Orders() orders.Repository { return orderRepo{d} }

type orderRepo struct{ d *DB }

type orderTx struct {
	seqStore
}

func (r orderRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.d.inTx(func() error {
		return fn(ctx, orderTx{seqStore{r.d}})
	})
}

// SeedOrder stores o under its own order number without allocating one.
func (d *DB) SeedOrder(o orders.Order) orders.Order {
	d.locked(func(st *state) {
		o.ID = st.nextID()
		if o.CreatedAt.IsZero() {
			o.CreatedAt = d.now()
		}
		o.UpdatedAt = o.CreatedAt
		o.Items, o.Shipping = nil, nil
		st.orders[o.ID] = o
	})
	return o
}

func (st *state) orderWithChildren(id int64) orders.Order {
	o := st.orders[id]
	o.Items, o.Shipping = nil, nil
	for _, iid := range sortedKeys(st.orderItems) {
		if it := st.orderItems[iid]; it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	if sh, ok := st.shippings[id]; ok {
		o.Shipping = &sh
	}
	return o
}

func (r orderRepo) Get(_ context.Context, id int64) (orders.Order, error) {
	var (
		o  orders.Order
		ok bool
	)
	r.d.locked(func(st *state) {
		if _, ok = st.orders[id]; ok {
			o = st.orderWithChildren(id)
		}
	})
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (r orderRepo) List(_ context.Context, f orders.ListFilter) ([]orders.Order, int, error) {
	var out []orders.Order
	search := strings.ToLower(strings.TrimSpace(f.Search))
	r.d.locked(func(st *state) {
		ids := sortedKeys(st.orders)
		for i := len(ids) - 1; i >= 0; i-- {
			o := st.orders[ids[i]]
			switch {
			case f.Status != "" && o.Status != f.Status:
			case f.ClientID != nil && o.ClientID != *f.ClientID:
			case f.From != nil && o.CreatedAt.Before(*f.From):
			case f.To != nil && !o.CreatedAt.Before(*f.To):
			case search != "" && !strings.Contains(strings.ToLower(o.OrderNumber), search) &&
				!strings.Contains(strings.ToLower(o.ClientName), search):
			default:
				out = append(out, o)
			}
		}
	})
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r orderRepo) ListHistory(_ context.Context, orderID int64) ([]orders.ProcessHistory, error) {
	var out []orders.ProcessHistory
	r.d.locked(func(st *state) {
		for _, h := range st.history {
			if h.OrderID == orderID {
				out = append(out, h)
			}
		}
	})
	return out, nil
}

func (r orderRepo) RecentFolders(_ context.Context, clientID int64, since time.Time) ([]orders.FolderMatch, error) {
	var out []orders.FolderMatch
	r.d.locked(func(st *state) {
		ids := sortedKeys(st.orders)
		for i := len(ids) - 1; i >= 0; i-- {
			o := st.orders[ids[i]]
			if o.ClientID != clientID || o.Status == orders.StatusCancelled || o.CreatedAt.Before(since) {
				continue
			}
			for _, it := range st.orderWithChildren(o.ID).Items {
				if it.FolderName == "" {
					continue
				}
				out = append(out, orders.FolderMatch{
					OrderID:     o.ID,
					OrderNumber: o.OrderNumber,
					FolderName:  it.FolderName,
					Status:      o.Status,
					CreatedAt:   o.CreatedAt,
				})
			}
		}
	})
	return out, nil
}

func (t orderTx) InsertOrder(_ context.Context, o orders.Order) (orders.Order, error) {
	if err := t.d.check("orders.insert"); err != nil {
		return orders.Order{}, err
	}
	st := t.d.st
	for _, existing := range st.orders {
		if existing.OrderNumber == o.OrderNumber {
			return orders.Order{}, errDuplicateNumber(o.OrderNumber)
		}
	}
	o.ID = st.nextID()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = t.d.now()
	}
	o.UpdatedAt = o.CreatedAt
	items, shipping := o.Items, o.Shipping
	o.Items, o.Shipping = nil, nil
	st.orders[o.ID] = o
	for _, it := range items {
		it.ID = st.nextID()
		it.OrderID = o.ID
		st.orderItems[it.ID] = it
	}
	if shipping != nil {
		sh := *shipping
		sh.OrderID = o.ID
		st.shippings[o.ID] = sh
	}
	return st.orderWithChildren(o.ID), nil
}

func (t orderTx) LockOrder(_ context.Context, id int64) (orders.Order, error) {
	if err := t.d.check("orders.lock"); err != nil {
		return orders.Order{}, err
	}
	if _, ok := t.d.st.orders[id]; !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return t.d.st.orderWithChildren(id), nil
}

func (t orderTx) UpdateOrder(_ context.Context, o orders.Order) error {
	if err := t.d.check("orders.update"); err != nil {
		return err
	}
	prev, ok := t.d.st.orders[o.ID]
	if !ok {
		return orders.ErrOrderNotFound
	}
	prev.Status = o.Status
	prev.CurrentProcess = o.CurrentProcess
	prev.ProductPrice = o.ProductPrice
	prev.ShippingFee = o.ShippingFee
	prev.Tax = o.Tax
	prev.TotalAmount = o.TotalAmount
	prev.AdjustmentAmount = o.AdjustmentAmount
	prev.FinalAmount = o.FinalAmount
	prev.Memo = o.Memo
	prev.CancelReason = o.CancelReason
	prev.UpdatedAt = t.d.now()
	t.d.st.orders[o.ID] = prev
	return nil
}

func (t orderTx) UpdateItems(_ context.Context, items []orders.Item) error {
	for _, it := range items {
		prev, ok := t.d.st.orderItems[it.ID]
		if !ok {
			return orders.ErrItemNotFound
		}
		prev.Quantity, prev.UnitPrice, prev.TotalPrice = it.Quantity, it.UnitPrice, it.TotalPrice
		t.d.st.orderItems[it.ID] = prev
	}
	return nil
}

func (t orderTx) DeleteOrder(_ context.Context, id int64) error {
	if err := t.d.check("orders.delete"); err != nil {
		return err
	}
	st := t.d.st
	if _, ok := st.orders[id]; !ok {
		return orders.ErrOrderNotFound
	}
	delete(st.orders, id)
	delete(st.shippings, id)
	for iid, it := range st.orderItems {
		if it.OrderID == id {
			delete(st.orderItems, iid)
		}
	}
	kept := st.history[:0]
	for _, h := range st.history {
		if h.OrderID != id {
			kept = append(kept, h)
		}
	}
	st.history = kept
	return nil
}

func (t orderTx) InsertHistory(_ context.Context, h orders.ProcessHistory) error {
	h.ID = t.d.st.nextID()
	if h.ChangedAt.IsZero() {
		h.ChangedAt = t.d.now()
	}
	t.d.st.history = append(t.d.st.history, h)
	return nil
}

func (t orderTx) Savepoint(_ context.Context, fn func(orders.TxRepository) error) error {
	return t.d.savepoint(func() error { return fn(t) })
}

func (t orderTx) Ledgers() ledger.TxRepository {
	return ledgerTx(t)
}
