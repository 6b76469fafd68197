package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/clients"
	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/ledger"
	"github.com/printhub/backoffice/internal/reconcile"
	"github.com/printhub/backoffice/internal/testing/harness"
)

func snapshot(orderID int64, method string, final, tax int64) ledger.OrderSnapshot {
	return ledger.OrderSnapshot{
		OrderID:       orderID,
		OrderNumber:   "240115-001",
		ClientName:    "Acme Print",
		PaymentMethod: method,
		Tax:           tax,
		FinalAmount:   final,
		OrderedAt:     time.Date(2024, 1, 15, 9, 30, 0, 0, harness.Seoul),
		Lines: []ledger.OrderLine{
			{ProductName: "Photo book", Quantity: 2, UnitPrice: 5000, Amount: 10000},
		},
	}
}

func journalsOf(t *testing.T, h *harness.Harness, st journal.SourceType, ledgerID int64) []journal.Journal {
	t.Helper()
	js, err := h.Journals.GetJournalsBySource(context.Background(), st, ledgerID)
	require.NoError(t, err)
	return js
}

func TestCreateFromOrderCreditSale(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()
	days := 30
	c := h.DB.AddClient(clients.Client{Name: "Acme Print", CreditDays: &days})
	snap := snapshot(41, "bank_transfer", 11000, 1000)
	snap.ClientID = c.ID

	l, err := h.Ledgers.CreateFromOrder(ctx, snap, 5)
	require.NoError(t, err)
	require.Equal(t, "SL-20240115-001", l.LedgerNumber)
	require.Equal(t, ledger.OriginOrder, l.Origin)
	require.EqualValues(t, 10000, l.SupplyAmount)
	require.EqualValues(t, 1000, l.VATAmount)
	require.EqualValues(t, 11000, l.TotalAmount)
	require.EqualValues(t, 0, l.ReceivedAmount)
	require.EqualValues(t, 11000, l.OutstandingAmount)
	require.Equal(t, ledger.PaymentUnpaid, l.PaymentStatus)
	require.NotNil(t, l.DueDate)
	require.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, harness.Seoul), *l.DueDate)
	require.Len(t, l.Items, 1)

	sales := journalsOf(t, h, journal.SourceSales, l.ID)
	require.Len(t, sales, 1)
	debit, credit := sales[0].Totals()
	require.EqualValues(t, 11000, debit)
	require.EqualValues(t, 11000, credit)
	require.Empty(t, journalsOf(t, h, journal.SourceReceipt, l.ID))

	again, err := h.Ledgers.CreateFromOrder(ctx, snap, 5)
	require.NoError(t, err)
	require.Equal(t, l.ID, again.ID)
	require.Len(t, h.DB.AllSalesLedgers(), 1)
	require.Len(t, journalsOf(t, h, journal.SourceSales, l.ID), 1)
}

func TestCreateFromOrderPrepaidCapturesPayment(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "card", 11000, 1000), 5)
	require.NoError(t, err)
	require.EqualValues(t, 11000, l.ReceivedAmount)
	require.EqualValues(t, 0, l.OutstandingAmount)
	require.Equal(t, ledger.PaymentPaid, l.PaymentStatus)

	stored, err := h.Ledgers.GetSalesLedger(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, stored.Receipts, 1)
	require.Equal(t, "SR-20240115-001", stored.Receipts[0].ReceiptNumber)
	require.EqualValues(t, 11000, stored.Receipts[0].Amount)

	receipts := journalsOf(t, h, journal.SourceReceipt, l.ID)
	require.Len(t, receipts, 1)
	require.Equal(t, journal.AccountCardClearing, receipts[0].Lines[0].AccountCode)

	require.NoError(t, h.Ledgers.CreateAutoReceipt(ctx, l.ID))
	stored, err = h.Ledgers.GetSalesLedger(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, stored.Receipts, 1)
}

func TestCreateFromOrderClampsTaxAndNegativeTotals(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", -500, 100), 5)
	require.NoError(t, err)
	require.EqualValues(t, 0, l.TotalAmount)
	require.EqualValues(t, 0, l.VATAmount)
	require.Equal(t, ledger.PaymentPaid, l.PaymentStatus)
	require.Empty(t, journalsOf(t, h, journal.SourceSales, l.ID))
}

func TestAddReceiptTracksBalance(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)

	l, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 4000, PaymentMethod: "bank_transfer"}, 5)
	require.NoError(t, err)
	require.EqualValues(t, 4000, l.ReceivedAmount)
	require.EqualValues(t, 7000, l.OutstandingAmount)
	require.Equal(t, ledger.PaymentPartial, l.PaymentStatus)

	_, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 7001, PaymentMethod: "bank_transfer"}, 5)
	require.ErrorIs(t, err, ledger.ErrExcessPayment)

	l, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 7000, PaymentMethod: "cash"}, 5)
	require.NoError(t, err)
	require.EqualValues(t, 0, l.OutstandingAmount)
	require.Equal(t, ledger.PaymentPaid, l.PaymentStatus)
	require.Equal(t, l.TotalAmount, l.ReceivedAmount+l.OutstandingAmount)

	require.Len(t, journalsOf(t, h, journal.SourceReceipt, l.ID), 2)

	_, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 0, PaymentMethod: "cash"}, 5)
	require.Error(t, err)
}

func TestAddReceiptRollsBackOnFailure(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)

	boom := errors.New("disk full")
	h.DB.Fail("ledger.update_sales", 1, boom)
	_, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 4000, PaymentMethod: "cash"}, 5)
	require.ErrorIs(t, err, boom)

	stored, err := h.Ledgers.GetSalesLedger(ctx, l.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.ReceivedAmount)
	require.Empty(t, stored.Receipts)
}

func TestCancelReversesJournalsOnce(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "card", 11000, 1000), 5)
	require.NoError(t, err)
	require.Len(t, h.DB.AllJournals(), 2)

	cancelled, err := h.Ledgers.Cancel(ctx, l.ID, "customer request", 5)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, cancelled.SalesStatus)
	require.EqualValues(t, 0, cancelled.OutstandingAmount)
	require.Equal(t, ledger.PaymentUnpaid, cancelled.PaymentStatus)
	require.Equal(t, "customer request", cancelled.CancelReason)

	reversals := journalsOf(t, h, journal.SourceCancellation, l.ID)
	require.Len(t, reversals, 2)
	var net int64
	for _, j := range h.DB.AllJournals() {
		for _, line := range j.Lines {
			if line.AccountCode == journal.AccountReceivable {
				net += line.Debit - line.Credit
			}
		}
	}
	require.Zero(t, net)

	_, err = h.Ledgers.Cancel(ctx, l.ID, "again", 5)
	require.NoError(t, err)
	require.Len(t, h.DB.AllJournals(), 4)

	_, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 100, PaymentMethod: "cash"}, 5)
	require.ErrorIs(t, err, ledger.ErrLedgerCancelled)
	_, err = h.Ledgers.Confirm(ctx, l.ID, 5)
	require.ErrorIs(t, err, ledger.ErrLedgerCancelled)
}

func TestCancelRecordsFailedReversalForSweep(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	sales := journalsOf(t, h, journal.SourceSales, l.ID)
	require.Len(t, sales, 1)

	h.DB.Fail("journal.insert", 1, errors.New("connection reset"))
	cancelled, err := h.Ledgers.Cancel(ctx, l.ID, "", 5)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, cancelled.SalesStatus)
	require.Empty(t, journalsOf(t, h, journal.SourceCancellation, l.ID))

	pending, total, err := h.Dispatcher.List(ctx, reconcile.StatusPending, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, reconcile.KindReversal, pending[0].Kind)
	require.Equal(t, sales[0].ID, pending[0].RefID)

	h.Clock.Advance(2 * time.Minute)
	res, err := h.Dispatcher.Sweep(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, reconcile.SweepResult{Attempted: 1, Resolved: 1}, res)
	require.Len(t, journalsOf(t, h, journal.SourceCancellation, l.ID), 1)
}

// cancelDuringPost cancels the ledger after PostSalesJournal has read it as
// live and before the journal is inserted.
type cancelDuringPost struct {
	ledger.Journals
	cancel func(ctx context.Context)
}

func (j *cancelDuringPost) CreateSalesJournal(ctx context.Context, p journal.SalesParams) (journal.Journal, error) {
	if fn := j.cancel; fn != nil {
		j.cancel = nil
		fn(ctx)
	}
	return j.Journals.CreateSalesJournal(ctx, p)
}

func TestSalesJournalPostedDuringCancelIsReversed(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	h.DB.Fail("journal.insert", 1, errors.New("connection reset"))
	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	require.Empty(t, journalsOf(t, h, journal.SourceSales, l.ID))

	racer := &cancelDuringPost{Journals: h.Journals}
	svc := ledger.NewService(h.DB.Ledgers(), h.Sequences, racer, h.Dispatcher, ledger.Options{
		Clients: h.DB.Clients(),
		Logger:  h.Logger,
	})
	svc.WithNow(h.Clock.Now)
	racer.cancel = func(ctx context.Context) {
		_, err := svc.Cancel(ctx, l.ID, "duplicate order", 5)
		require.NoError(t, err)
	}

	require.NoError(t, svc.PostSalesJournal(ctx, l.ID))
	require.Nil(t, racer.cancel)

	sales := journalsOf(t, h, journal.SourceSales, l.ID)
	require.Len(t, sales, 1)
	reversals := journalsOf(t, h, journal.SourceCancellation, l.ID)
	require.Len(t, reversals, 1)
	require.NotNil(t, reversals[0].ReversesJournalID)
	require.Equal(t, sales[0].ID, *reversals[0].ReversesJournalID)

	h.Clock.Advance(2 * time.Minute)
	_, err = h.Dispatcher.Sweep(ctx, 10)
	require.NoError(t, err)
	require.Len(t, h.DB.AllJournals(), 2)
}

func TestCancelForOrderWithoutLedgerIsNoop(t *testing.T) {
	h := harness.New(t, harness.Options{})
	require.NoError(t, h.Ledgers.CancelForOrder(context.Background(), 404, "gone", 1))
}

func TestConfirmIsIdempotent(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)

	first, err := h.Ledgers.Confirm(ctx, l.ID, 9)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusConfirmed, first.SalesStatus)
	require.NotNil(t, first.ConfirmedBy)

	h.Clock.Advance(time.Hour)
	second, err := h.Ledgers.Confirm(ctx, l.ID, 10)
	require.NoError(t, err)
	require.EqualValues(t, 9, *second.ConfirmedBy)
	require.Equal(t, *first.ConfirmedAt, *second.ConfirmedAt)
}

func TestResyncFromOrderRevisesSalesJournal(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	_, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 3000, PaymentMethod: "cash"}, 5)
	require.NoError(t, err)

	err = h.Ledgers.ResyncFromOrder(ctx, ledger.OrderTotals{
		OrderID:     41,
		Tax:         1200,
		FinalAmount: 13200,
		Lines:       []ledger.OrderLine{{ProductName: "Photo book", Quantity: 2, UnitPrice: 6000, Amount: 12000}},
	})
	require.NoError(t, err)

	synced, err := h.Ledgers.GetSalesLedger(ctx, l.ID)
	require.NoError(t, err)
	require.EqualValues(t, 12000, synced.SupplyAmount)
	require.EqualValues(t, 1200, synced.VATAmount)
	require.EqualValues(t, 13200, synced.TotalAmount)
	require.EqualValues(t, 3000, synced.ReceivedAmount)
	require.EqualValues(t, 10200, synced.OutstandingAmount)
	require.Equal(t, ledger.PaymentPartial, synced.PaymentStatus)
	require.EqualValues(t, 6000, synced.Items[0].UnitPrice)

	sales := journalsOf(t, h, journal.SourceSales, l.ID)
	require.Len(t, sales, 2)
	require.Equal(t, l.LedgerNumber+"-R1", sales[1].SourceRef)
	live, err := h.Journals.Unreversed(ctx, sales)
	require.NoError(t, err)
	require.Len(t, live, 1)
	debit, _ := live[0].Totals()
	require.EqualValues(t, 13200, debit)

	require.NoError(t, h.Ledgers.PostSalesJournal(ctx, l.ID))
	require.Len(t, journalsOf(t, h, journal.SourceSales, l.ID), 2)
}

func TestResyncBelowReceivedMarksPaid(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	_, err = h.Ledgers.AddReceipt(ctx, l.ID, ledger.ReceiptInput{Amount: 8000, PaymentMethod: "cash"}, 5)
	require.NoError(t, err)

	require.NoError(t, h.Ledgers.ResyncFromOrder(ctx, ledger.OrderTotals{OrderID: 41, Tax: 500, FinalAmount: 5500}))
	synced, err := h.Ledgers.GetSalesLedger(ctx, l.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, synced.OutstandingAmount)
	require.Equal(t, ledger.PaymentPaid, synced.PaymentStatus)
}

func TestUpdateOverdueStatus(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	late, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	onTime, err := h.Ledgers.CreateFromOrder(ctx, snapshot(42, "bank_transfer", 5500, 500), 5)
	require.NoError(t, err)
	paid, err := h.Ledgers.CreateFromOrder(ctx, snapshot(43, "card", 5500, 500), 5)
	require.NoError(t, err)

	h.DB.SetDueDate(late.ID, time.Date(2024, 1, 10, 0, 0, 0, 0, harness.Seoul))
	h.DB.SetDueDate(onTime.ID, time.Date(2024, 1, 15, 0, 0, 0, 0, harness.Seoul))
	h.DB.SetDueDate(paid.ID, time.Date(2024, 1, 1, 0, 0, 0, 0, harness.Seoul))

	res, err := h.Ledgers.UpdateOverdueStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, ledger.OverdueResult{Sales: 1}, res)

	res, err = h.Ledgers.UpdateOverdueStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, ledger.OverdueResult{}, res)

	stored, err := h.Ledgers.GetSalesLedger(ctx, late.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentOverdue, stored.PaymentStatus)

	stored, err = h.Ledgers.AddReceipt(ctx, late.ID, ledger.ReceiptInput{Amount: 1000, PaymentMethod: "cash"}, 5)
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentPartial, stored.PaymentStatus)
}

func TestCleanupOrphansRemovesUnpaidLedgers(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	orphan, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	_, err = h.Ledgers.CreateFromOrder(ctx, snapshot(42, "card", 5500, 500), 5)
	require.NoError(t, err)

	removed, err := h.Ledgers.CleanupOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = h.Ledgers.GetSalesLedger(ctx, orphan.ID)
	require.ErrorIs(t, err, ledger.ErrLedgerNotFound)
	require.Len(t, journalsOf(t, h, journal.SourceCancellation, orphan.ID), 1)
	require.Len(t, h.DB.AllSalesLedgers(), 1)
}

func TestCreateDirectComputesVAT(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	l, err := h.Ledgers.CreateDirect(ctx, ledger.DirectSaleInput{
		ClientName:    "  Walk-in  ",
		PaymentMethod: "cash",
		Items: []ledger.ItemInput{
			{ProductName: "Poster", Quantity: 3, UnitPrice: 2000},
		},
	}, 5)
	require.NoError(t, err)
	require.Equal(t, ledger.OriginDirect, l.Origin)
	require.Equal(t, "Walk-in", l.ClientName)
	require.EqualValues(t, 6000, l.SupplyAmount)
	require.EqualValues(t, 600, l.VATAmount)
	require.EqualValues(t, 6600, l.TotalAmount)
	require.Nil(t, l.OrderID)
	require.Len(t, journalsOf(t, h, journal.SourceSales, l.ID), 1)

	_, err = h.Ledgers.CreateDirect(ctx, ledger.DirectSaleInput{ClientName: "x", PaymentMethod: "cash"}, 5)
	require.Error(t, err)
}

func TestPurchaseLifecycle(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	p, err := h.Ledgers.CreatePurchase(ctx, ledger.PurchaseInput{
		SupplierName:  "Paper Co",
		PaymentMethod: "bank_transfer",
		Items:         []ledger.ItemInput{{ProductName: "A4 paper", Quantity: 10, UnitPrice: 2000}},
	}, 5)
	require.NoError(t, err)
	require.Equal(t, "PL-20240115-001", p.LedgerNumber)
	require.EqualValues(t, 22000, p.TotalAmount)
	require.Len(t, journalsOf(t, h, journal.SourcePurchase, p.ID), 1)

	p, err = h.Ledgers.AddPurchasePayment(ctx, p.ID, ledger.PaymentInput{Amount: 22000, PaymentMethod: "bank_transfer"}, 5)
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentPaid, p.PaymentStatus)
	require.Len(t, journalsOf(t, h, journal.SourcePurchasePayment, p.ID), 1)

	_, err = h.Ledgers.AddPurchasePayment(ctx, p.ID, ledger.PaymentInput{Amount: 1, PaymentMethod: "cash"}, 5)
	require.ErrorIs(t, err, ledger.ErrExcessPayment)

	p, err = h.Ledgers.CancelPurchase(ctx, p.ID, "returned", 5)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCancelled, p.PurchaseStatus)
	require.Len(t, journalsOf(t, h, journal.SourceCancellation, p.ID), 2)
}

func TestListSalesLedgersFilters(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	_, err := h.Ledgers.CreateFromOrder(ctx, snapshot(41, "bank_transfer", 11000, 1000), 5)
	require.NoError(t, err)
	_, err = h.Ledgers.CreateFromOrder(ctx, snapshot(42, "card", 5500, 500), 5)
	require.NoError(t, err)

	items, page, err := h.Ledgers.ListSalesLedgers(ctx, ledger.ListFilter{PaymentStatus: ledger.PaymentPaid}, 1, 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, page.Total)
	require.EqualValues(t, 42, *items[0].OrderID)
}
