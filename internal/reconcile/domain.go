// Package reconcile runs the best-effort side effects of financial mutations
// (derived journals, auto receipts, ledger creation, file relocation) after
// the triggering transaction commits. Failures never reach the caller; they
// are persisted as pending reconciliations and retried by the worker.
package reconcile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/printhub/backoffice/internal/shared"
)

// Kind names a side effect. RefID semantics depend on the kind.
type Kind string

const (
	KindLedgerFromOrder        Kind = "ledger.create_from_order"
	KindLedgerResync           Kind = "ledger.resync_order"
	KindLedgerCancelForOrder   Kind = "ledger.cancel_for_order"
	KindAutoReceipt            Kind = "ledger.auto_receipt"
	KindSalesJournal           Kind = "journal.sales"
	KindReceiptJournal         Kind = "journal.receipt"
	KindPurchaseJournal        Kind = "journal.purchase"
	KindPurchasePaymentJournal Kind = "journal.purchase_payment"
	KindReversal               Kind = "journal.reversal"
	KindFileRelocation         Kind = "files.relocate"
)

// Status of a pending reconciliation row.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusResolved  Status = "RESOLVED"
	StatusAbandoned Status = "ABANDONED"
)

// Effect is one unit of deferred work.
type Effect struct {
	Kind    Kind            `json:"kind"`
	RefID   int64           `json:"ref_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEffect builds an effect, encoding payload as JSON when non-nil.
func NewEffect(kind Kind, refID int64, payload any) Effect {
	e := Effect{Kind: kind, RefID: refID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}

// Decode unmarshals the payload into v.
func (e Effect) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", shared.ErrValidation, e.Kind, err)
	}
	return nil
}

// String identifies the effect in logs and task ids.
func (e Effect) String() string {
	return fmt.Sprintf("%s:%d", e.Kind, e.RefID)
}

// Pending is a persisted failed effect awaiting retry.
type Pending struct {
	ID            int64           `json:"id"`
	Kind          Kind            `json:"kind"`
	RefID         int64           `json:"ref_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	CreatedAt     time.Time       `json:"created_at"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
}

// Effect converts the row back into a runnable effect.
func (p Pending) Effect() Effect {
	return Effect{Kind: p.Kind, RefID: p.RefID, Payload: p.Payload}
}

// SweepResult summarises one retry pass.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

// ErrUnknownKind indicates no handler was registered for an effect kind.
var ErrUnknownKind = fmt.Errorf("%w: no handler for effect kind", shared.ErrValidation)
