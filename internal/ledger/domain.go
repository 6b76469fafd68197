// Package ledger owns sales and purchase ledgers: balances, payment status,
// receipts and payments. It is the only writer of received/outstanding
// amounts and payment status.
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/printhub/backoffice/internal/shared"
)

// PaymentStatus tracks collection progress.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
	PaymentOverdue PaymentStatus = "overdue"
)

// Status is the lifecycle of a ledger.
type Status string

const (
	StatusRegistered Status = "REGISTERED"
	StatusConfirmed  Status = "CONFIRMED"
	StatusCancelled  Status = "CANCELLED"
)

// Origin tells whether a sales ledger mirrors an order or was entered by hand.
type Origin string

const (
	OriginOrder  Origin = "ORDER"
	OriginDirect Origin = "DIRECT"
)

// IsPrepaid reports whether the method is captured at checkout.
func IsPrepaid(method string) bool {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "card", "card_terminal", "prepaid":
		return true
	}
	return false
}

// SalesLedger is the revenue record of one order or direct sale.
type SalesLedger struct {
	ID                int64             `json:"id"`
	LedgerNumber      string            `json:"ledger_number"`
	OrderID           *int64            `json:"order_id,omitempty"`
	Origin            Origin            `json:"origin"`
	ClientID          *int64            `json:"client_id,omitempty"`
	ClientName        string            `json:"client_name"`
	SalesDate         time.Time         `json:"sales_date"`
	SupplyAmount      int64             `json:"supply_amount"`
	VATAmount         int64             `json:"vat_amount"`
	TotalAmount       int64             `json:"total_amount"`
	ReceivedAmount    int64             `json:"received_amount"`
	OutstandingAmount int64             `json:"outstanding_amount"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	SalesStatus       Status            `json:"sales_status"`
	PaymentMethod     string            `json:"payment_method"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	Memo              string            `json:"memo"`
	ConfirmedBy       *int64            `json:"confirmed_by,omitempty"`
	ConfirmedAt       *time.Time        `json:"confirmed_at,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason      string            `json:"cancel_reason,omitempty"`
	CreatedBy         int64             `json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Items             []SalesLedgerItem `json:"items,omitempty"`
	Receipts          []SalesReceipt    `json:"receipts,omitempty"`
}

// SalesLedgerItem mirrors one order line.
type SalesLedgerItem struct {
	ID            int64  `json:"id"`
	SalesLedgerID int64  `json:"sales_ledger_id"`
	ProductName   string `json:"product_name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	Amount        int64  `json:"amount"`
}

// SalesReceipt is one immutable payment event.
type SalesReceipt struct {
	ID            int64     `json:"id"`
	ReceiptNumber string    `json:"receipt_number"`
	SalesLedgerID int64     `json:"sales_ledger_id"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	ReceiptDate   time.Time `json:"receipt_date"`
	Memo          string    `json:"memo"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// PurchaseLedger is the cost record of one supplier purchase.
type PurchaseLedger struct {
	ID                int64             `json:"id"`
	LedgerNumber      string            `json:"ledger_number"`
	SupplierName      string            `json:"supplier_name"`
	PurchaseDate      time.Time         `json:"purchase_date"`
	SupplyAmount      int64             `json:"supply_amount"`
	VATAmount         int64             `json:"vat_amount"`
	TotalAmount       int64             `json:"total_amount"`
	PaidAmount        int64             `json:"paid_amount"`
	OutstandingAmount int64             `json:"outstanding_amount"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	PurchaseStatus    Status            `json:"purchase_status"`
	PaymentMethod     string            `json:"payment_method"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	Memo              string            `json:"memo"`
	ConfirmedBy       *int64            `json:"confirmed_by,omitempty"`
	ConfirmedAt       *time.Time        `json:"confirmed_at,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason      string            `json:"cancel_reason,omitempty"`
	CreatedBy         int64             `json:"created_by"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Items             []PurchaseItem    `json:"items,omitempty"`
	Payments          []PurchasePayment `json:"payments,omitempty"`
}

// PurchaseItem is one purchased line.
type PurchaseItem struct {
	ID               int64  `json:"id"`
	PurchaseLedgerID int64  `json:"purchase_ledger_id"`
	ProductName      string `json:"product_name"`
	Quantity         int    `json:"quantity"`
	UnitPrice        int64  `json:"unit_price"`
	Amount           int64  `json:"amount"`
}

// PurchasePayment is one immutable settlement of a payable.
type PurchasePayment struct {
	ID               int64     `json:"id"`
	PaymentNumber    string    `json:"payment_number"`
	PurchaseLedgerID int64     `json:"purchase_ledger_id"`
	Amount           int64     `json:"amount"`
	PaymentMethod    string    `json:"payment_method"`
	PaymentDate      time.Time `json:"payment_date"`
	Memo             string    `json:"memo"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
}

// OrderSnapshot is the order data a sales ledger is derived from.
type OrderSnapshot struct {
	OrderID       int64
	OrderNumber   string
	ClientID      int64
	ClientName    string
	PaymentMethod string
	Tax           int64
	FinalAmount   int64
	OrderedAt     time.Time
	Lines         []OrderLine
}

// OrderLine is one order item as seen by the ledger.
type OrderLine struct {
	ProductName string
	Quantity    int
	UnitPrice   int64
	Amount      int64
}

// ReceiptInput is a staff-entered payment against a sales ledger.
type ReceiptInput struct {
	Amount        int64      `json:"amount" validate:"required,gt=0"`
	PaymentMethod string     `json:"payment_method" validate:"required,max=32"`
	ReceiptDate   *time.Time `json:"receipt_date"`
	Memo          string     `json:"memo" validate:"max=500"`
}

// ItemInput is one manually entered ledger line.
type ItemInput struct {
	ProductName string `json:"product_name" validate:"required,max=200"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   int64  `json:"unit_price" validate:"gte=0"`
}

// DirectSaleInput registers a sale with no order behind it.
type DirectSaleInput struct {
	ClientID      *int64      `json:"client_id"`
	ClientName    string      `json:"client_name" validate:"required,max=200"`
	SalesDate     *time.Time  `json:"sales_date"`
	PaymentMethod string      `json:"payment_method" validate:"required,max=32"`
	Memo          string      `json:"memo" validate:"max=500"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// PurchaseInput registers a supplier purchase.
type PurchaseInput struct {
	SupplierName  string      `json:"supplier_name" validate:"required,max=200"`
	PurchaseDate  *time.Time  `json:"purchase_date"`
	DueDate       *time.Time  `json:"due_date"`
	PaymentMethod string      `json:"payment_method" validate:"required,max=32"`
	Memo          string      `json:"memo" validate:"max=500"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// PaymentInput is a settlement against a purchase ledger.
type PaymentInput struct {
	Amount        int64      `json:"amount" validate:"required,gt=0"`
	PaymentMethod string     `json:"payment_method" validate:"required,max=32"`
	PaymentDate   *time.Time `json:"payment_date"`
	Memo          string     `json:"memo" validate:"max=500"`
}

// ListFilter narrows ledger listings.
type ListFilter struct {
	PaymentStatus PaymentStatus
	Status        Status
	ClientID      *int64
	From          *time.Time
	To            *time.Time
	Search        string
	Limit         int
	Offset        int
}

// OverdueResult counts ledgers flipped by one overdue pass.
type OverdueResult struct {
	Sales    int64 `json:"sales"`
	Purchase int64 `json:"purchase"`
}

var (
	// ErrLedgerNotFound indicates the ledger does not exist.
	ErrLedgerNotFound = fmt.Errorf("%w: ledger", shared.ErrNotFound)
	// ErrReceiptNotFound indicates the receipt or payment does not exist.
	ErrReceiptNotFound = fmt.Errorf("%w: receipt", shared.ErrNotFound)
	// ErrLedgerCancelled indicates a mutation against a cancelled ledger.
	ErrLedgerCancelled = fmt.Errorf("%w: ledger is cancelled", shared.ErrInvalidState)
	// ErrExcessPayment indicates an amount above the outstanding balance.
	ErrExcessPayment = shared.ErrExcessPayment
	// ErrOrderAlreadyLedgered is raised when a second ledger is inserted for an order.
	ErrOrderAlreadyLedgered = fmt.Errorf("%w: order already has a sales ledger", shared.ErrConflict)
)

// balance derives outstanding amount and payment status from total and
// received. A ledger that was overdue and has received nothing stays overdue.
func balance(total, received int64, prior PaymentStatus) (int64, PaymentStatus) {
	outstanding := shared.NonNegative(total - received)
	switch {
	case outstanding == 0:
		return 0, PaymentPaid
	case received > 0:
		return outstanding, PaymentPartial
	case prior == PaymentOverdue:
		return outstanding, PaymentOverdue
	default:
		return outstanding, PaymentUnpaid
	}
}

func itemsTotal(items []ItemInput) int64 {
	var sum int64
	for _, it := range items {
		sum += int64(it.Quantity) * it.UnitPrice
	}
	return sum
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
