package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/shared"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPendingReceipt   Status = "PENDING_RECEIPT"
	StatusReceiptCompleted Status = "RECEIPT_COMPLETED"
	StatusShipped          Status = "SHIPPED"
	StatusCancelled        Status = "CANCELLED"
)

// Process is the file-inspection sub-state of an order awaiting receipt.
type Process string

const (
	ProcessReceiptPending Process = "receipt_pending"
	ProcessInspection     Process = "inspection"
	ProcessCompleted      Process = "completed"
)

// Order is a customer purchase.
type Order struct {
	ID               int64     `json:"id"`
	OrderNumber      string    `json:"order_number"`
	ClientID         int64     `json:"client_id"`
	ClientName       string    `json:"client_name"`
	Status           Status    `json:"status"`
	CurrentProcess   Process   `json:"current_process"`
	PaymentMethod    string    `json:"payment_method"`
	ProductPrice     int64     `json:"product_price"`
	ShippingFee      int64     `json:"shipping_fee"`
	Tax              int64     `json:"tax"`
	TotalAmount      int64     `json:"total_amount"`
	AdjustmentAmount int64     `json:"adjustment_amount"`
	FinalAmount      int64     `json:"final_amount"`
	Memo             string    `json:"memo"`
	CancelReason     string    `json:"cancel_reason,omitempty"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Items            []Item    `json:"items,omitempty"`
	Shipping         *Shipping `json:"shipping,omitempty"`
}

// Item is one printed product within an order.
type Item struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductName string `json:"product_name"`
	FolderName  string `json:"folder_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
	StagingKey  string `json:"staging_key,omitempty"`
}

// Shipping is the delivery address of an order.
type Shipping struct {
	OrderID       int64  `json:"order_id"`
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	PostalCode    string `json:"postal_code"`
	Address       string `json:"address"`
	AddressDetail string `json:"address_detail"`
	Method        string `json:"method"`
}

// ProcessHistory records one change of the inspection sub-state.
type ProcessHistory struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	FromProcess Process   `json:"from_process"`
	ToProcess   Process   `json:"to_process"`
	Note        string    `json:"note"`
	ChangedBy   int64     `json:"changed_by"`
	ChangedAt   time.Time `json:"changed_at"`
}

// FolderMatch is an order item whose folder name matched a duplicate check.
type FolderMatch struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	FolderName  string    `json:"folder_name"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status   Status
	ClientID *int64
	From     *time.Time
	To       *time.Time
	Search   string
	Limit    int
	Offset   int
}

var statusTransitions = map[Status][]Status{
	StatusPendingReceipt:   {StatusReceiptCompleted, StatusCancelled},
	StatusReceiptCompleted: {StatusShipped, StatusCancelled},
}

var processTransitions = map[Process][]Process{
	ProcessReceiptPending: {ProcessInspection},
	ProcessInspection:     {ProcessCompleted, ProcessReceiptPending},
}

// CanTransition reports whether the order may move to status to.
func (o Order) CanTransition(to Status) error {
	if o.Status == to {
		return ErrNoChange
	}
	allowed := false
	for _, s := range statusTransitions[o.Status] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidTransition
	}
	if o.Status == StatusPendingReceipt && to == StatusReceiptCompleted && o.CurrentProcess != ProcessCompleted {
		return ErrInspectionPending
	}
	return nil
}

// CanAdvance reports whether the inspection sub-state may move to to.
func (o Order) CanAdvance(to Process) error {
	if o.Status != StatusPendingReceipt {
		return ErrProcessLocked
	}
	if o.CurrentProcess == to {
		return ErrNoChange
	}
	for _, p := range processTransitions[o.CurrentProcess] {
		if p == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// Deletable reports whether the order may be physically removed.
func (o Order) Deletable() bool {
	return o.Status == StatusPendingReceipt || o.Status == StatusCancelled
}

// Recalculate derives item totals and order amounts from the items,
// shipping fee and adjustment.
func (o *Order) Recalculate(rate decimal.Decimal) {
	var product int64
	for i := range o.Items {
		o.Items[i].TotalPrice = int64(o.Items[i].Quantity) * o.Items[i].UnitPrice
		product += o.Items[i].TotalPrice
	}
	o.ProductPrice = product
	o.Tax = shared.TaxOf(product, rate)
	o.TotalAmount = product + o.ShippingFee + o.Tax
	o.FinalAmount = shared.NonNegative(o.TotalAmount - o.AdjustmentAmount)
}

// Snapshot is the view of the order the ledger is derived from.
func (o Order) Snapshot() ledger.OrderSnapshot {
	return ledger.OrderSnapshot{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		ClientID:      o.ClientID,
		ClientName:    o.ClientName,
		PaymentMethod: o.PaymentMethod,
		Tax:           o.Tax,
		FinalAmount:   o.FinalAmount,
		OrderedAt:     o.CreatedAt,
		Lines:         o.ledgerLines(),
	}
}

// Totals is the view of the order used to re-sync its ledger.
func (o Order) Totals() ledger.OrderTotals {
	return ledger.OrderTotals{
		OrderID:     o.ID,
		Tax:         o.Tax,
		FinalAmount: o.FinalAmount,
		Lines:       o.ledgerLines(),
	}
}

func (o Order) ledgerLines() []ledger.OrderLine {
	lines := make([]ledger.OrderLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, ledger.OrderLine{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Amount:      it.TotalPrice,
		})
	}
	return lines
}

// StagingKeys lists the staged upload keys of the order's items.
func (o Order) StagingKeys() []string {
	var keys []string
	for _, it := range o.Items {
		if it.StagingKey != "" {
			keys = append(keys, it.StagingKey)
		}
	}
	return keys
}
