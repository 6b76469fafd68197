package memdb

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/shared"
)

// Clients returns the client store.
func (d *DB) Clients() clients.Store { return clientStore{d} }

// AddClient inserts a client and returns it with its id.
func (d *DB) AddClient(c clients.Client) clients.Client {
	d.locked(func(st *state) {
		c.ID = st.nextID()
		st.clients[c.ID] = c
	})
	return c
}

type clientStore struct{ d *DB }

func (s clientStore) Get(_ context.Context, id int64) (clients.Client, error) {
	var (
		c   clients.Client
		ok  bool
		err error
	)
	s.d.locked(func(st *state) {
		if err = s.d.check("clients.get"); err != nil {
			return
		}
		c, ok = st.clients[id]
	})
	if err != nil {
		return clients.Client{}, err
	}
	if !ok {
		return clients.Client{}, clients.ErrClientNotFound
	}
	return c, nil
}

func (s clientStore) List(_ context.Context, search string, limit, offset int) ([]clients.Client, int, error) {
	var out []clients.Client
	search = strings.ToLower(strings.TrimSpace(search))
	s.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.clients) {
			if c := st.clients[id]; search == "" || strings.Contains(strings.ToLower(c.Name), search) {
				out = append(out, c)
			}
		}
	})
	return page(out, limit, offset), len(out), nil
}

func (s clientStore) Create(_ context.Context, in clients.Input) (clients.Client, error) {
	return s.d.AddClient(clients.Client{
		Name:               in.Name,
		BusinessNo:         in.BusinessNo,
		CreditDays:         in.CreditDays,
		PaymentDay:         in.PaymentDay,
		DuplicateCheckDays: in.DuplicateCheckDays,
		CreatedAt:          s.d.now(),
		UpdatedAt:          s.d.now(),
	}), nil
}

func (s clientStore) Update(_ context.Context, id int64, in clients.Input) (clients.Client, error) {
	var (
		c  clients.Client
		ok bool
	)
	s.d.locked(func(st *state) {
		if c, ok = st.clients[id]; !ok {
			return
		}
		c.Name, c.BusinessNo = in.Name, in.BusinessNo
		c.CreditDays, c.PaymentDay, c.DuplicateCheckDays = in.CreditDays, in.PaymentDay, in.DuplicateCheckDays
		c.UpdatedAt = s.d.now()
		st.clients[id] = c
	})
	if !ok {
		return clients.Client{}, clients.ErrClientNotFound
	}
	return c, nil
}

// Reconcile returns the pending-reconciliation store.
func (d *DB) Reconcile() reconcile.Store { return pendingStore{d} }

type pendingStore struct{ d *DB }

var errPendingNotFound = errors.New("pending reconciliation not found")

func (s pendingStore) Record(_ context.Context, e reconcile.Effect, cause string, next time.Time) error {
	var err error
	s.d.locked(func(st *state) {
		if err = s.d.check("reconcile.record"); err != nil {
			return
		}
		for id, p := range st.pending {
			if p.Kind == e.Kind && p.RefID == e.RefID && p.Status == reconcile.StatusPending {
				p.Attempts++
				p.LastError = cause
				p.Payload = e.Payload
				p.NextAttemptAt = next
				st.pending[id] = p
				return
			}
		}
		id := st.nextID()
		st.pending[id] = reconcile.Pending{
			ID:            id,
			Kind:          e.Kind,
			RefID:         e.RefID,
			Payload:       e.Payload,
			Status:        reconcile.StatusPending,
			Attempts:      1,
			LastError:     cause,
			NextAttemptAt: next,
			CreatedAt:     s.d.now(),
		}
	})
	return err
}

func (s pendingStore) Resolve(_ context.Context, kind reconcile.Kind, refID int64) error {
	s.d.locked(func(st *state) {
		now := s.d.now()
		for id, p := range st.pending {
			if p.Kind == kind && p.RefID == refID && p.Status == reconcile.StatusPending {
				p.Status = reconcile.StatusResolved
				p.ResolvedAt = &now
				st.pending[id] = p
			}
		}
	})
	return nil
}

func (s pendingStore) Due(_ context.Context, now time.Time, limit int) ([]reconcile.Pending, error) {
	var out []reconcile.Pending
	s.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.pending) {
			p := st.pending[id]
			if p.Status == reconcile.StatusPending && !p.NextAttemptAt.After(now) && len(out) < limit {
				out = append(out, p)
			}
		}
	})
	return out, nil
}

func (s pendingStore) update(id int64, fn func(*reconcile.Pending)) error {
	var ok bool
	s.d.locked(func(st *state) {
		var p reconcile.Pending
		if p, ok = st.pending[id]; ok {
			fn(&p)
			st.pending[id] = p
		}
	})
	if !ok {
		return errPendingNotFound
	}
	return nil
}

func (s pendingStore) Reschedule(_ context.Context, id int64, cause string, next time.Time) error {
	return s.update(id, func(p *reconcile.Pending) {
		p.Attempts++
		p.LastError = cause
		p.NextAttemptAt = next
	})
}

func (s pendingStore) Abandon(_ context.Context, id int64, cause string) error {
	return s.update(id, func(p *reconcile.Pending) {
		p.Status = reconcile.StatusAbandoned
		p.Attempts++
		p.LastError = cause
	})
}

func (s pendingStore) MarkResolved(_ context.Context, id int64) error {
	now := s.d.now()
	return s.update(id, func(p *reconcile.Pending) {
		p.Status = reconcile.StatusResolved
		p.ResolvedAt = &now
	})
}

func (s pendingStore) List(_ context.Context, status reconcile.Status, limit, offset int) ([]reconcile.Pending, int, error) {
	var out []reconcile.Pending
	s.d.locked(func(st *state) {
		ids := sortedKeys(st.pending)
		for i := len(ids) - 1; i >= 0; i-- {
			if p := st.pending[ids[i]]; p.Status == status {
				out = append(out, p)
			}
		}
	})
	return page(out, limit, offset), len(out), nil
}

// Idempotency returns a key store with the semantics of shared.IdempotencyStore.
func (d *DB) Idempotency() *Keys { return &Keys{d} }

// Keys records processed request keys.
type Keys struct{ d *DB }

// CheckAndInsert fails with shared.ErrIdempotencyConflict for a repeated key.
func (k *Keys) CheckAndInsert(_ context.Context, key, module string) error {
	var err error
	k.d.locked(func(st *state) {
		id := module + "/" + key
		if _, ok := st.idempotency[id]; ok {
			err = shared.ErrIdempotencyConflict
			return
		}
		st.idempotency[id] = k.d.now()
	})
	return err
}

// Delete forgets a key.
func (k *Keys) Delete(_ context.Context, key, module string) error {
	k.d.locked(func(st *state) { delete(st.idempotency, module+"/"+key) })
	return nil
}
