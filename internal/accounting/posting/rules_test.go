package posting_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	fx "github.com/odyssey-erp/odyssey-gl/internal/accounting/testfixtures"
	_ "github.com/odyssey-erp/odyssey-gl/testing"
)

var day = fx.Day(2024, 3, 15)

func byAccount(t *testing.T, postings []posting.Posting) map[int64]string {
	t.Helper()
	out := make(map[int64]string)
	sums := make(map[int64]decimal.Decimal)
	for _, p := range postings {
		sums[p.AccountID] = sums[p.AccountID].Add(p.Amount)
	}
	for id, amount := range sums {
		out[id] = amount.StringFixed(2)
	}
	return out
}

func requireBalanced(t *testing.T, postings []posting.Posting) {
	t.Helper()
	total := decimal.Zero
	for _, p := range postings {
		total = total.Add(p.Amount)
	}
	require.True(t, total.IsZero(), "postings sum to %s", total)
}

func samples() []posting.Transaction {
	return []posting.Transaction{
		fx.Sale("INV-1", day, "1000", "100"),
		fx.Purchase("BILL-1", day, "10", "50", "50"),
		fx.Expense("EXP-1", day, fx.Rent, "300"),
		fx.Receipt("RCPT-1", day, "1000", "20"),
		fx.Payment("PAY-1", day, "500", "10"),
		fx.Journal("JV-1", day, fx.Capital, fx.Bank, "250"),
		posting.ContraVoucher{Header: fx.Header("CV-1", day), FromAccountID: fx.Bank, ToAccountID: fx.Cash, Amount: fx.D("75")},
		posting.DebitCreditNote{Header: fx.Header("CN-1", day), NoteType: posting.CreditNote, PartnerID: fx.CustomerID, Amount: fx.D("100"), TaxAmount: fx.D("10")},
	}
}

func TestPostingsForSaleExample(t *testing.T) {
	sale := fx.Sale("INV-1", day, "1000", "100")

	postings, err := posting.PostingsFor(sale, fx.Controls())
	require.NoError(t, err)
	require.Equal(t, map[int64]string{
		fx.Receivable:   "1100.00",
		fx.SalesRevenue: "-1000.00",
		fx.TaxPayable:   "-100.00",
	}, byAccount(t, postings))
	requireBalanced(t, postings)
	require.Equal(t, fx.CustomerID, postings[0].PartnerID)
}

func TestPostingsForEveryKind(t *testing.T) {
	cases := map[posting.Kind]map[int64]string{
		posting.KindSale: {
			fx.Receivable: "1100.00", fx.SalesRevenue: "-1000.00", fx.TaxPayable: "-100.00",
		},
		posting.KindPurchase: {
			fx.Inventory: "500.00", fx.TaxReceivable: "50.00", fx.Payable: "-550.00",
		},
		posting.KindExpense: {
			fx.Rent: "300.00", fx.Cash: "-300.00",
		},
		posting.KindReceipt: {
			fx.Bank: "980.00", fx.WHTExpense: "20.00", fx.Receivable: "-1000.00",
		},
		posting.KindPayment: {
			fx.Payable: "500.00", fx.Bank: "-490.00", fx.WHTPayable: "-10.00",
		},
		posting.KindJournal: {
			fx.Capital: "250.00", fx.Bank: "-250.00",
		},
		posting.KindContra: {
			fx.Cash: "75.00", fx.Bank: "-75.00",
		},
		posting.KindNote: {
			fx.Receivable: "-110.00", fx.SalesRevenue: "100.00", fx.TaxPayable: "10.00",
		},
	}

	seen := make(map[posting.Kind]bool)
	for _, txn := range samples() {
		t.Run(string(txn.Kind()), func(t *testing.T) {
			postings, err := posting.PostingsFor(txn, fx.Controls())
			require.NoError(t, err)
			requireBalanced(t, postings)
			require.Equal(t, cases[txn.Kind()], byAccount(t, postings))
		})
		seen[txn.Kind()] = true
	}
	for _, kind := range posting.Kinds() {
		require.True(t, seen[kind], "no sample for kind %s", kind)
	}
}

func TestPostingsForSaleLinesPostCost(t *testing.T) {
	sale := fx.Sale("INV-2", day, "200", "0")
	sale.Lines = []posting.SalesLine{
		{ItemID: 1, Quantity: fx.D("2"), UnitPrice: fx.D("100"), UnitCost: fx.D("60")},
	}

	postings, err := posting.PostingsFor(sale, fx.Controls())
	require.NoError(t, err)
	requireBalanced(t, postings)
	require.Equal(t, map[int64]string{
		fx.Receivable:   "200.00",
		fx.SalesRevenue: "-200.00",
		fx.COGS:         "120.00",
		fx.Inventory:    "-120.00",
	}, byAccount(t, postings))
}

func TestPostingsForIndirectExpenseOwesEmployee(t *testing.T) {
	exp := fx.Expense("EXP-2", day, fx.Salaries, "80")
	exp.PaymentType = posting.ExpenseIndirect
	exp.CashAccountID = 0
	exp.EmployeeID = 7

	postings, err := posting.PostingsFor(exp, fx.Controls())
	require.NoError(t, err)
	require.Equal(t, map[int64]string{fx.Salaries: "80.00", fx.EmployeePayable: "-80.00"}, byAccount(t, postings))
}

func TestPostingsForDebitNoteReducesPayable(t *testing.T) {
	note := posting.DebitCreditNote{
		Header:    fx.Header("DN-1", day),
		NoteType:  posting.DebitNote,
		PartnerID: fx.VendorID,
		Amount:    fx.D("40"),
		TaxAmount: fx.D("4"),
	}

	postings, err := posting.PostingsFor(note, fx.Controls())
	require.NoError(t, err)
	require.Equal(t, map[int64]string{
		fx.Payable:       "44.00",
		fx.Inventory:     "-40.00",
		fx.TaxReceivable: "-4.00",
	}, byAccount(t, postings))
}

func TestPostingsForSkipsZeroTax(t *testing.T) {
	postings, err := posting.PostingsFor(fx.Receipt("RCPT-2", day, "400", "0"), fx.Controls())
	require.NoError(t, err)
	require.Len(t, postings, 2)
}

func TestPostingsForRejectsInconsistentTotals(t *testing.T) {
	sale := fx.Sale("INV-3", day, "1000", "100")
	sale.GrandTotal = fx.D("1200")

	_, err := posting.PostingsFor(sale, fx.Controls())
	require.ErrorIs(t, err, shared.ErrMalformedTransaction)

	var malformed *shared.MalformedTransactionError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "INV-3", malformed.Ref)
	require.Equal(t, string(posting.KindSale), malformed.Kind)

	receipt := fx.Receipt("RCPT-3", day, "100", "5")
	receipt.NetAmount = fx.D("100")
	_, err = posting.PostingsFor(receipt, fx.Controls())
	require.ErrorIs(t, err, shared.ErrMalformedTransaction)
}

func TestPostingsForRejectsUnbalancedJournal(t *testing.T) {
	jv := posting.JournalVoucher{
		Header: fx.Header("JV-2", day),
		Entries: []posting.JournalEntry{
			{AccountID: fx.Cash, Debit: fx.D("100")},
			{AccountID: fx.Capital, Credit: fx.D("90")},
		},
	}

	_, err := posting.PostingsFor(jv, fx.Controls())
	require.ErrorIs(t, err, shared.ErrMalformedTransaction)
	require.ErrorIs(t, err, shared.ErrUnbalanced)
}

func TestPostingsForMissingControl(t *testing.T) {
	controls := fx.Controls()
	controls.TaxPayable = 0

	_, err := posting.PostingsFor(fx.Sale("INV-4", day, "10", "1"), controls)
	require.ErrorIs(t, err, shared.ErrMalformedTransaction)

	_, err = posting.PostingsFor(fx.Sale("INV-5", day, "10", "0"), controls)
	require.NoError(t, err)
}

func TestPostingsForNil(t *testing.T) {
	_, err := posting.PostingsFor(nil, fx.Controls())
	require.ErrorIs(t, err, shared.ErrMalformedTransaction)
}
