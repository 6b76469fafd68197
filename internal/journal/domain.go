package journal

import (
	"fmt"
	"time"

	"github.com/printhub/backoffice/internal/shared"
)

// SourceType tags the financial event a journal derives from.
type SourceType string

const (
	SourceSales           SourceType = "SALES"
	SourceReceipt         SourceType = "RECEIPT"
	SourceCancellation    SourceType = "CANCELLATION"
	SourcePurchase        SourceType = "PURCHASE"
	SourcePurchasePayment SourceType = "PURCHASE_PAYMENT"
)

// AccountCode identifies a chart-of-accounts entry.
type AccountCode string

const (
	AccountCash          AccountCode = "1010"
	AccountCardClearing  AccountCode = "1020"
	AccountReceivable    AccountCode = "1080"
	AccountVATReceivable AccountCode = "1350"
	AccountPayable       AccountCode = "2010"
	AccountVATPayable    AccountCode = "2550"
	AccountSalesRevenue  AccountCode = "4010"
	AccountPurchases     AccountCode = "5010"
)

const (
	paymentMethodCard         = "card"
	paymentMethodCardTerminal = "card_terminal"
)

var accountNames = map[AccountCode]string{
	AccountCash:          "Cash and deposits",
	AccountCardClearing:  "Card settlement receivable",
	AccountReceivable:    "Accounts receivable",
	AccountVATReceivable: "VAT receivable",
	AccountPayable:       "Accounts payable",
	AccountVATPayable:    "VAT payable",
	AccountSalesRevenue:  "Sales revenue",
	AccountPurchases:     "Purchases",
}

// Name returns the display name of the account.
func (c AccountCode) Name() string {
	if name, ok := accountNames[c]; ok {
		return name
	}
	return string(c)
}

// SettlementAccount picks the asset account a payment of method lands in.
func SettlementAccount(method string) AccountCode {
	switch method {
	case paymentMethodCard, paymentMethodCardTerminal:
		return AccountCardClearing
	default:
		return AccountCash
	}
}

// Journal is a posted voucher. It is never edited after posting.
type Journal struct {
	ID                int64      `json:"id"`
	VoucherNo         string     `json:"voucher_no"`
	SourceType        SourceType `json:"source_type"`
	SourceID          int64      `json:"source_id"`
	SourceRef         string     `json:"source_ref"`
	ReversesJournalID *int64     `json:"reverses_journal_id,omitempty"`
	Description       string     `json:"description"`
	JournalDate       time.Time  `json:"journal_date"`
	CreatedBy         int64      `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	Lines             []Line     `json:"lines"`
}

// Line stores the debit or credit amount for an account.
type Line struct {
	ID          int64       `json:"id"`
	JournalID   int64       `json:"journal_id"`
	LineNo      int         `json:"line_no"`
	AccountCode AccountCode `json:"account_code"`
	Debit       int64       `json:"debit"`
	Credit      int64       `json:"credit"`
	Memo        string      `json:"memo,omitempty"`
}

// Totals sums debit and credit lines.
func (j Journal) Totals() (debit, credit int64) {
	for _, l := range j.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return debit, credit
}

// LineInput describes one line of a posting request.
type LineInput struct {
	AccountCode AccountCode
	Debit       int64
	Credit      int64
	Memo        string
}

// PostingInput groups fields required to create a journal.
type PostingInput struct {
	SourceType        SourceType
	SourceID          int64
	SourceRef         string
	ReversesJournalID *int64
	Description       string
	Date              time.Time
	CreatedBy         int64
	Lines             []LineInput
}

// Validate enforces the double-entry invariant.
func (p PostingInput) Validate() error {
	if p.SourceType == "" || p.SourceID <= 0 {
		return fmt.Errorf("%w: journal source required", shared.ErrValidation)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("%w: journal date required", shared.ErrValidation)
	}
	if len(p.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit int64
	for _, line := range p.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("%w: account code required", shared.ErrValidation)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return ErrNegativeAmount
		}
		if line.Debit > 0 && line.Credit > 0 {
			return ErrMixedLine
		}
		if line.Debit == 0 && line.Credit == 0 {
			return ErrEmptyLine
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return fmt.Errorf("%w (debit %d, credit %d)", ErrUnbalanced, debit, credit)
	}
	return nil
}

// SalesParams describes revenue recognition for a sales ledger.
type SalesParams struct {
	LedgerID     int64
	LedgerNumber string
	// Revision distinguishes re-derived sales journals after an amount change.
	Revision   int
	ClientName string
	Supply     int64
	VAT        int64
	Total      int64
	Date       time.Time
	CreatedBy  int64
}

// ReceiptParams describes collection of a receivable.
type ReceiptParams struct {
	LedgerID      int64
	LedgerNumber  string
	ReceiptNumber string
	Amount        int64
	PaymentMethod string
	Date          time.Time
	CreatedBy     int64
}

// PurchaseParams describes cost recognition for a purchase ledger.
type PurchaseParams struct {
	LedgerID     int64
	LedgerNumber string
	SupplierName string
	Supply       int64
	VAT          int64
	Total        int64
	Date         time.Time
	CreatedBy    int64
}

// PurchasePaymentParams describes settlement of a payable.
type PurchasePaymentParams struct {
	LedgerID      int64
	LedgerNumber  string
	PaymentNumber string
	Amount        int64
	PaymentMethod string
	Date          time.Time
	CreatedBy     int64
}

// CancellationParams identifies the journal to reverse.
type CancellationParams struct {
	OriginalJournalID int64
	Reason            string
	CreatedBy         int64
}

// Imbalance reports a journal whose lines do not balance.
type Imbalance struct {
	JournalID int64  `json:"journal_id"`
	VoucherNo string `json:"voucher_no"`
	Debit     int64  `json:"debit"`
	Credit    int64  `json:"credit"`
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: journal lines must balance", shared.ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", shared.ErrValidation)
	// ErrNegativeAmount rejects negative line amounts.
	ErrNegativeAmount = fmt.Errorf("%w: journal line amounts must not be negative", shared.ErrValidation)
	// ErrMixedLine rejects lines carrying both debit and credit.
	ErrMixedLine = fmt.Errorf("%w: journal line cannot carry both debit and credit", shared.ErrValidation)
	// ErrEmptyLine rejects zero lines.
	ErrEmptyLine = fmt.Errorf("%w: journal line amount required", shared.ErrValidation)
	// ErrSourceAlreadyLinked indicates the source event was already posted.
	ErrSourceAlreadyLinked = fmt.Errorf("%w: journal source already linked", shared.ErrConflict)
	// ErrAlreadyReversed indicates a cancellation journal already exists.
	ErrAlreadyReversed = fmt.Errorf("%w: journal already reversed", shared.ErrConflict)
	// ErrNotReversible rejects reversing a cancellation journal.
	ErrNotReversible = fmt.Errorf("%w: cancellation journals cannot be reversed", shared.ErrInvalidState)
	// ErrJournalNotFound indicates missing journal.
	ErrJournalNotFound = fmt.Errorf("%w: journal", shared.ErrNotFound)
)
