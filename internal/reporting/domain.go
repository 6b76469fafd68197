// Package reporting aggregates sales ledgers and receipts into receivable
// aging, monthly trends, client credit scores and the dashboard summary.
package reporting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/printhub/backoffice/internal/shared"
)

// Receivable is one sales ledger with money still outstanding.
type Receivable struct {
	LedgerID      int64      `json:"ledger_id"`
	ClientID      *int64     `json:"client_id,omitempty"`
	ClientName    string     `json:"client_name"`
	SalesDate     time.Time  `json:"sales_date"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Outstanding   int64      `json:"outstanding"`
	PaymentStatus string     `json:"payment_status"`
}

// MonthAmount is a sum for one YYYY-MM month.
type MonthAmount struct {
	Month  string `json:"month"`
	Amount int64  `json:"amount"`
}

// ClientLedger is the payment history of one ledger of a client.
type ClientLedger struct {
	LedgerID      int64      `json:"ledger_id"`
	SalesDate     time.Time  `json:"sales_date"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	Total         int64      `json:"total"`
	Received      int64      `json:"received"`
	Outstanding   int64      `json:"outstanding"`
	PaymentStatus string     `json:"payment_status"`
	LastReceiptAt *time.Time `json:"last_receipt_at,omitempty"`
}

// Totals sums the live sales ledgers up to a date.
type Totals struct {
	Sales         int64 `json:"sales"`
	Received      int64 `json:"received"`
	Outstanding   int64 `json:"outstanding"`
	OverdueCount  int64 `json:"overdue_count"`
	OverdueAmount int64 `json:"overdue_amount"`
}

// Aging bucket labels in report order.
const (
	BucketCurrent = "current"
	Bucket1To30   = "1-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
)

var bucketOrder = []string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}

// AgingBucket summarises receivables of one age band.
type AgingBucket struct {
	Bucket string `json:"bucket"`
	Count  int    `json:"count"`
	Amount int64  `json:"amount"`
}

// AgingReport groups outstanding receivables by days past due.
type AgingReport struct {
	AsOf    time.Time     `json:"as_of"`
	Buckets []AgingBucket `json:"buckets"`
	Total   int64         `json:"total"`
}

// TrendPoint is one month of the sales trend.
type TrendPoint struct {
	Month    string `json:"month"`
	Sales    int64  `json:"sales"`
	Receipts int64  `json:"receipts"`
}

// Grade buckets a credit score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// CreditReport scores how reliably a client pays.
type CreditReport struct {
	ClientID      int64           `json:"client_id"`
	AsOf          time.Time       `json:"as_of"`
	Ledgers       int             `json:"ledgers"`
	Settled       int             `json:"settled"`
	PaidOnTime    int             `json:"paid_on_time"`
	Compliance    decimal.Decimal `json:"compliance"`
	Turnover      decimal.Decimal `json:"turnover"`
	TurnoverScore decimal.Decimal `json:"turnover_score"`
	OverdueRatio  decimal.Decimal `json:"overdue_ratio"`
	Score         decimal.Decimal `json:"score"`
	Grade         Grade           `json:"grade"`
}

// Dashboard is the back-office landing summary.
type Dashboard struct {
	AsOf                   time.Time   `json:"as_of"`
	Totals                 Totals      `json:"totals"`
	Aging                  AgingReport `json:"aging"`
	PendingReconciliations int         `json:"pending_reconciliations"`
}

const maxTrendMonths = 60

var (
	weightCompliance = decimal.RequireFromString("0.5")
	weightTurnover   = decimal.RequireFromString("0.2")
	weightOverdue    = decimal.RequireFromString("0.3")
	turnoverCap      = decimal.NewFromInt(12)
	hundred          = decimal.NewFromInt(100)
	one              = decimal.NewFromInt(1)
)

// ErrInvalidRange rejects trend ranges that run backwards or span too many months.
var ErrInvalidRange = fmt.Errorf("%w: invalid month range", shared.ErrValidation)

func dateOnly(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func monthStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// bucketFor maps days past due to its aging band.
func bucketFor(days int) string {
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

// daysPastDue counts whole calendar days from the due date, or the sales date
// for sales due on receipt, to asOf.
func daysPastDue(r Receivable, asOf time.Time, loc *time.Location) int {
	ref := r.SalesDate
	if r.DueDate != nil {
		ref = *r.DueDate
	}
	from := dateOnly(ref, loc)
	to := dateOnly(asOf, loc)
	// Date arithmetic in UTC keeps DST days at 24h.
	fromUTC := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	toUTC := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(toUTC.Sub(fromUTC).Hours() / 24)
}

func buildAging(rows []Receivable, asOf time.Time, loc *time.Location) AgingReport {
	idx := make(map[string]int, len(bucketOrder))
	report := AgingReport{AsOf: dateOnly(asOf, loc), Buckets: make([]AgingBucket, len(bucketOrder))}
	for i, b := range bucketOrder {
		report.Buckets[i] = AgingBucket{Bucket: b}
		idx[b] = i
	}
	for _, r := range rows {
		if r.Outstanding <= 0 {
			continue
		}
		i := idx[bucketFor(daysPastDue(r, asOf, loc))]
		report.Buckets[i].Count++
		report.Buckets[i].Amount += r.Outstanding
		report.Total += r.Outstanding
	}
	return report
}

// monthRange lists YYYY-MM labels from the month of from through the month of to.
func monthRange(from, to time.Time, loc *time.Location) ([]string, error) {
	start, end := monthStart(from, loc), monthStart(to, loc)
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	var months []string
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		if len(months) == maxTrendMonths {
			return nil, fmt.Errorf("%w: more than %d months", ErrInvalidRange, maxTrendMonths)
		}
		months = append(months, m.Format("2006-01"))
	}
	return months, nil
}

func zeroFill(months []string, sales, receipts []MonthAmount) []TrendPoint {
	bySales := make(map[string]int64, len(sales))
	for _, s := range sales {
		bySales[s.Month] += s.Amount
	}
	byReceipts := make(map[string]int64, len(receipts))
	for _, r := range receipts {
		byReceipts[r.Month] += r.Amount
	}
	points := make([]TrendPoint, 0, len(months))
	for _, m := range months {
		points = append(points, TrendPoint{Month: m, Sales: bySales[m], Receipts: byReceipts[m]})
	}
	return points
}

// scoreCredit blends payment compliance, receivables turnover over the trailing
// year and the overdue share of what is still owed.
func scoreCredit(clientID int64, rows []ClientLedger, asOf time.Time, loc *time.Location) CreditReport {
	today := dateOnly(asOf, loc)
	yearAgo := today.AddDate(-1, 0, 0)
	report := CreditReport{ClientID: clientID, AsOf: today, Ledgers: len(rows)}

	var received, outstanding, overdue int64
	for _, l := range rows {
		if l.Total > 0 && l.Outstanding == 0 {
			report.Settled++
			if l.DueDate == nil || l.LastReceiptAt == nil || !dateOnly(*l.LastReceiptAt, loc).After(dateOnly(*l.DueDate, loc)) {
				report.PaidOnTime++
			}
		}
		if l.SalesDate.After(yearAgo) {
			received += l.Received
		}
		outstanding += l.Outstanding
		if l.Outstanding > 0 && (l.PaymentStatus == "overdue" || (l.DueDate != nil && dateOnly(*l.DueDate, loc).Before(today))) {
			overdue += l.Outstanding
		}
	}

	report.Compliance = one
	if report.Settled > 0 {
		report.Compliance = decimal.NewFromInt(int64(report.PaidOnTime)).Div(decimal.NewFromInt(int64(report.Settled)))
	}
	report.TurnoverScore = one
	report.Turnover = turnoverCap
	if outstanding > 0 {
		report.Turnover = decimal.NewFromInt(received).Div(decimal.NewFromInt(outstanding))
		report.TurnoverScore = decimal.Min(report.Turnover, turnoverCap).Div(turnoverCap)
		report.OverdueRatio = decimal.NewFromInt(overdue).Div(decimal.NewFromInt(outstanding))
	}

	score := weightCompliance.Mul(report.Compliance).
		Add(weightTurnover.Mul(report.TurnoverScore)).
		Add(weightOverdue.Mul(one.Sub(report.OverdueRatio))).
		Mul(hundred)
	report.Score = score.Round(1)
	report.Compliance = report.Compliance.Round(4)
	report.Turnover = report.Turnover.Round(2)
	report.TurnoverScore = report.TurnoverScore.Round(4)
	report.OverdueRatio = report.OverdueRatio.Round(4)
	report.Grade = gradeOf(report.Score)
	return report
}

func gradeOf(score decimal.Decimal) Grade {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(85)):
		return GradeA
	case score.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return GradeB
	case score.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return GradeC
	default:
		return GradeD
	}
}
