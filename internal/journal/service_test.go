package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printhub/backoffice/internal/journal"
	"github.com/printhub/backoffice/internal/testing/harness"
)

func postSales(t *testing.T, h *harness.Harness, ledgerID int64, number string, supply, vat int64) journal.Journal {
	t.Helper()
	j, err := h.Journals.CreateSalesJournal(context.Background(), journal.SalesParams{
		LedgerID:     ledgerID,
		LedgerNumber: number,
		ClientName:   "Acme Print",
		Supply:       supply,
		VAT:          vat,
		Total:        supply + vat,
	})
	require.NoError(t, err)
	return j
}

func TestCreateSalesJournalBalanced(t *testing.T) {
	h := harness.New(t, harness.Options{})

	j := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)

	require.Equal(t, "JV-20240115-0001", j.VoucherNo)
	require.Equal(t, journal.SourceSales, j.SourceType)
	require.Equal(t, "SL-20240115-001", j.SourceRef)
	require.Len(t, j.Lines, 3)
	require.Equal(t, journal.AccountReceivable, j.Lines[0].AccountCode)
	require.EqualValues(t, 11000, j.Lines[0].Debit)
	require.Equal(t, journal.AccountSalesRevenue, j.Lines[1].AccountCode)
	require.EqualValues(t, 10000, j.Lines[1].Credit)
	require.Equal(t, journal.AccountVATPayable, j.Lines[2].AccountCode)
	require.EqualValues(t, 1000, j.Lines[2].Credit)

	debit, credit := j.Totals()
	require.Equal(t, debit, credit)
	require.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, harness.Seoul), j.JournalDate)
}

func TestCreateSalesJournalOmitsZeroVAT(t *testing.T) {
	h := harness.New(t, harness.Options{})

	j := postSales(t, h, 7, "SL-20240115-001", 5000, 0)
	require.Len(t, j.Lines, 2)
}

func TestCreateSalesJournalIsIdempotentPerSource(t *testing.T) {
	h := harness.New(t, harness.Options{})

	first := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)
	second := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, h.DB.AllJournals(), 1)
}

func TestCreateSalesJournalRevisionUsesDistinctRef(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	first := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)
	revised, err := h.Journals.CreateSalesJournal(ctx, journal.SalesParams{
		LedgerID: 7, LedgerNumber: "SL-20240115-001", Revision: 1,
		Supply: 12000, VAT: 1200, Total: 13200,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, revised.ID)
	require.Equal(t, "SL-20240115-001-R1", revised.SourceRef)
	require.Equal(t, "JV-20240115-0002", revised.VoucherNo)
}

func TestCreateSalesJournalRejectsInvalidAmounts(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	_, err := h.Journals.CreateSalesJournal(ctx, journal.SalesParams{LedgerID: 1, LedgerNumber: "SL-1"})
	require.ErrorIs(t, err, journal.ErrNothingToPost)

	_, err = h.Journals.CreateSalesJournal(ctx, journal.SalesParams{
		LedgerID: 1, LedgerNumber: "SL-1", Supply: 100, VAT: 10, Total: 120,
	})
	require.ErrorIs(t, err, journal.ErrUnbalanced)
	require.Empty(t, h.DB.AllJournals())
}

func TestCreateReceiptJournalUsesSettlementAccount(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	card, err := h.Journals.CreateReceiptJournal(ctx, journal.ReceiptParams{
		LedgerID: 3, LedgerNumber: "SL-20240115-001", ReceiptNumber: "SR-20240115-001",
		Amount: 11000, PaymentMethod: "card",
	})
	require.NoError(t, err)
	require.Equal(t, journal.AccountCardClearing, card.Lines[0].AccountCode)
	require.Equal(t, journal.AccountReceivable, card.Lines[1].AccountCode)

	cash, err := h.Journals.CreateReceiptJournal(ctx, journal.ReceiptParams{
		LedgerID: 3, LedgerNumber: "SL-20240115-001", ReceiptNumber: "SR-20240115-002",
		Amount: 500, PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)
	require.Equal(t, journal.AccountCash, cash.Lines[0].AccountCode)
}

func TestCreatePurchaseJournals(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	purchase, err := h.Journals.CreatePurchaseJournal(ctx, journal.PurchaseParams{
		LedgerID: 9, LedgerNumber: "PL-20240115-001", SupplierName: "Paper Co",
		Supply: 20000, VAT: 2000, Total: 22000,
	})
	require.NoError(t, err)
	debit, credit := purchase.Totals()
	require.EqualValues(t, 22000, debit)
	require.EqualValues(t, 22000, credit)

	payment, err := h.Journals.CreatePurchasePaymentJournal(ctx, journal.PurchasePaymentParams{
		LedgerID: 9, LedgerNumber: "PL-20240115-001", PaymentNumber: "PP-20240115-001",
		Amount: 22000, PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)
	require.Equal(t, journal.AccountPayable, payment.Lines[0].AccountCode)
	require.EqualValues(t, 22000, payment.Lines[0].Debit)
}

func TestCreateCancellationJournalMirrorsOriginal(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	original := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)
	h.Clock.Advance(48 * time.Hour)

	reversal, err := h.Journals.CreateCancellationJournal(ctx, journal.CancellationParams{
		OriginalJournalID: original.ID,
		Reason:            "customer request",
	})
	require.NoError(t, err)
	require.Equal(t, journal.SourceCancellation, reversal.SourceType)
	require.Equal(t, original.SourceID, reversal.SourceID)
	require.Equal(t, original.VoucherNo, reversal.SourceRef)
	require.NotNil(t, reversal.ReversesJournalID)
	require.Equal(t, original.ID, *reversal.ReversesJournalID)
	require.Equal(t, "Cancellation of JV-20240115-0001: customer request", reversal.Description)
	require.Equal(t, "JV-20240117-0001", reversal.VoucherNo)

	require.Len(t, reversal.Lines, len(original.Lines))
	for i, line := range reversal.Lines {
		require.Equal(t, original.Lines[i].AccountCode, line.AccountCode)
		require.Equal(t, original.Lines[i].Debit, line.Credit)
		require.Equal(t, original.Lines[i].Credit, line.Debit)
	}
}

func TestCreateCancellationJournalRejectsRepeatAndChains(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	original := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)
	reversal, err := h.Journals.CreateCancellationJournal(ctx, journal.CancellationParams{OriginalJournalID: original.ID})
	require.NoError(t, err)
	require.Equal(t, "Cancellation of JV-20240115-0001", reversal.Description)

	_, err = h.Journals.CreateCancellationJournal(ctx, journal.CancellationParams{OriginalJournalID: original.ID})
	require.ErrorIs(t, err, journal.ErrAlreadyReversed)

	_, err = h.Journals.CreateCancellationJournal(ctx, journal.CancellationParams{OriginalJournalID: reversal.ID})
	require.ErrorIs(t, err, journal.ErrNotReversible)

	_, err = h.Journals.CreateCancellationJournal(ctx, journal.CancellationParams{OriginalJournalID: 999})
	require.ErrorIs(t, err, journal.ErrJournalNotFound)

	require.Len(t, h.DB.AllJournals(), 2)
}

func TestUnreversedFiltersReversedJournals(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()

	first := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)
	second, err := h.Journals.CreateReceiptJournal(ctx, journal.ReceiptParams{
		LedgerID: 7, LedgerNumber: "SL-20240115-001", ReceiptNumber: "SR-20240115-001", Amount: 11000,
	})
	require.NoError(t, err)
	_, err = h.Journals.CreateCancellationJournal(ctx, journal.CancellationParams{OriginalJournalID: first.ID})
	require.NoError(t, err)

	open, err := h.Journals.Unreversed(ctx, []journal.Journal{first, second})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, second.ID, open[0].ID)
}

func TestPostValidatesLines(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()
	base := journal.PostingInput{
		SourceType: journal.SourceSales,
		SourceID:   1,
		SourceRef:  "manual",
		Date:       h.Clock.Now(),
	}

	cases := map[string]struct {
		lines []journal.LineInput
		err   error
	}{
		"unbalanced": {
			lines: []journal.LineInput{
				{AccountCode: journal.AccountCash, Debit: 100},
				{AccountCode: journal.AccountSalesRevenue, Credit: 90},
			},
			err: journal.ErrUnbalanced,
		},
		"single line": {
			lines: []journal.LineInput{{AccountCode: journal.AccountCash, Debit: 100}},
			err:   journal.ErrTooFewLines,
		},
		"mixed line": {
			lines: []journal.LineInput{
				{AccountCode: journal.AccountCash, Debit: 100, Credit: 100},
				{AccountCode: journal.AccountSalesRevenue, Credit: 0, Debit: 0},
			},
			err: journal.ErrMixedLine,
		},
		"negative": {
			lines: []journal.LineInput{
				{AccountCode: journal.AccountCash, Debit: -100},
				{AccountCode: journal.AccountSalesRevenue, Credit: -100},
			},
			err: journal.ErrNegativeAmount,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			in.Lines = tc.lines
			_, err := h.Journals.Post(ctx, in)
			require.ErrorIs(t, err, tc.err)
		})
	}
	require.Empty(t, h.DB.AllJournals())
}

func TestCheckIntegrityReportsCorruptedJournal(t *testing.T) {
	h := harness.New(t, harness.Options{})
	ctx := context.Background()
	since := h.Clock.Now().Add(-time.Hour)

	j := postSales(t, h, 7, "SL-20240115-001", 10000, 1000)
	postSales(t, h, 8, "SL-20240115-002", 2000, 200)

	found, err := h.Journals.CheckIntegrity(ctx, since)
	require.NoError(t, err)
	require.Empty(t, found)

	lines := append([]journal.Line(nil), j.Lines...)
	lines[0].Debit = 10500
	h.DB.CorruptJournal(j.ID, lines)

	found, err = h.Journals.CheckIntegrity(ctx, since)
	require.NoError(t, err)
	require.Equal(t, []journal.Imbalance{{JournalID: j.ID, VoucherNo: j.VoucherNo, Debit: 10500, Credit: 11000}}, found)
}
