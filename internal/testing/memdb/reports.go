package memdb

import (
	"context"
	"sort"
	"time"

	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/reporting"
)

// Reports returns the reporting repository.
func (d *DB) Reports() reporting.Repository { return reportRepo{d} }

type reportRepo struct{ d *DB }

func live(l ledger.SalesLedger, asOf time.Time) bool {
	return l.SalesStatus != ledger.StatusCancelled && !l.SalesDate.After(asOf)
}

func (r reportRepo) OpenReceivables(_ context.Context, asOf time.Time) ([]reporting.Receivable, error) {
	var out []reporting.Receivable
	r.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.sales) {
			l := st.sales[id]
			if !live(l, asOf) || l.OutstandingAmount <= 0 {
				continue
			}
			out = append(out, reporting.Receivable{
				LedgerID:      l.ID,
				ClientID:      l.ClientID,
				ClientName:    l.ClientName,
				SalesDate:     l.SalesDate,
				DueDate:       l.DueDate,
				Outstanding:   l.OutstandingAmount,
				PaymentStatus: string(l.PaymentStatus),
			})
		}
	})
	return out, nil
}

func monthly(sums map[string]int64) []reporting.MonthAmount {
	out := make([]reporting.MonthAmount, 0, len(sums))
	for m, v := range sums {
		out = append(out, reporting.MonthAmount{Month: m, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r reportRepo) MonthlySales(_ context.Context, from, to time.Time) ([]reporting.MonthAmount, error) {
	sums := map[string]int64{}
	r.d.locked(func(st *state) {
		for _, l := range st.sales {
			if l.SalesStatus != ledger.StatusCancelled && inRange(l.SalesDate, from, to) {
				sums[l.SalesDate.Format("2006-01")] += l.TotalAmount
			}
		}
	})
	return monthly(sums), nil
}

func (r reportRepo) MonthlyReceipts(_ context.Context, from, to time.Time) ([]reporting.MonthAmount, error) {
	sums := map[string]int64{}
	r.d.locked(func(st *state) {
		for _, rc := range st.receipts {
			if st.sales[rc.SalesLedgerID].SalesStatus != ledger.StatusCancelled && inRange(rc.ReceiptDate, from, to) {
				sums[rc.ReceiptDate.Format("2006-01")] += rc.Amount
			}
		}
	})
	return monthly(sums), nil
}

func (r reportRepo) ClientLedgers(_ context.Context, clientID int64, asOf time.Time) ([]reporting.ClientLedger, error) {
	var out []reporting.ClientLedger
	r.d.locked(func(st *state) {
		for _, id := range sortedKeys(st.sales) {
			l := st.sales[id]
			if l.ClientID == nil || *l.ClientID != clientID || !live(l, asOf) {
				continue
			}
			row := reporting.ClientLedger{
				LedgerID:      l.ID,
				SalesDate:     l.SalesDate,
				DueDate:       l.DueDate,
				Total:         l.TotalAmount,
				Received:      l.ReceivedAmount,
				Outstanding:   l.OutstandingAmount,
				PaymentStatus: string(l.PaymentStatus),
			}
			for _, rc := range st.receipts {
				if rc.SalesLedgerID != id {
					continue
				}
				if row.LastReceiptAt == nil || rc.ReceiptDate.After(*row.LastReceiptAt) {
					d := rc.ReceiptDate
					row.LastReceiptAt = &d
				}
			}
			out = append(out, row)
		}
	})
	return out, nil
}

func (r reportRepo) Totals(_ context.Context, asOf time.Time) (reporting.Totals, error) {
	var t reporting.Totals
	r.d.locked(func(st *state) {
		for _, l := range st.sales {
			if !live(l, asOf) {
				continue
			}
			t.Sales += l.TotalAmount
			t.Received += l.ReceivedAmount
			t.Outstanding += l.OutstandingAmount
			if l.PaymentStatus == ledger.PaymentOverdue {
				t.OverdueCount++
				t.OverdueAmount += l.OutstandingAmount
			}
		}
	})
	return t, nil
}
