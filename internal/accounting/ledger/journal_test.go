package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	fx "github.com/odyssey-erp/odyssey-gl/internal/accounting/testfixtures"
)

func TestJournalizeOrdersByDateThenRef(t *testing.T) {
	chart := fx.Chart(nil)
	book := []posting.Transaction{
		fx.Sale("INV-2", fx.Day(2024, 3, 5), "10", "0"),
		fx.Sale("INV-1", fx.Day(2024, 3, 5), "20", "0"),
		fx.Expense("EXP-1", fx.Day(2024, 3, 2), fx.Rent, "5"),
	}

	lines, rejected := ledger.Journalize(chart, book, march, fx.Controls())
	require.Empty(t, rejected)
	require.Len(t, lines, 6)

	refs := make([]string, 0, len(lines))
	for _, l := range lines {
		refs = append(refs, l.Ref)
	}
	require.Equal(t, []string{"EXP-1", "EXP-1", "INV-1", "INV-1", "INV-2", "INV-2"}, refs)
	require.Equal(t, fx.Rent, lines[0].AccountID)
	require.Equal(t, fx.Receivable, lines[2].AccountID)

	debit, credit := ledger.Totals(lines)
	require.True(t, debit.Equal(credit))
}

func TestJournalizeSkipsRejected(t *testing.T) {
	chart := fx.Chart(nil)
	book := []posting.Transaction{
		fx.Journal("JV-BAD", fx.Day(2024, 3, 4), 9999, fx.Cash, "10"),
		fx.Sale("INV-1", fx.Day(2024, 3, 5), "20", "0"),
	}

	lines, rejected := ledger.Journalize(chart, book, march, fx.Controls())
	require.Len(t, lines, 2)
	require.Len(t, rejected, 1)
	require.Equal(t, "JV-BAD", rejected[0].Ref)
}

func TestPartnerBalancesFollowReceivablesAndPayables(t *testing.T) {
	chart := fx.Chart(nil)
	partners := []ledger.Partner{
		{ID: fx.CustomerID, Code: "C-1", Name: "Acme", Type: ledger.PartnerCustomer},
		{ID: fx.VendorID, Code: "V-1", Name: "Globex", Type: ledger.PartnerVendor},
	}
	book := []posting.Transaction{
		fx.Sale("INV-1", fx.Day(2024, 3, 5), "1000", "0"),
		fx.Receipt("RCPT-1", fx.Day(2024, 3, 9), "400", "0"),
		fx.Purchase("BILL-1", fx.Day(2024, 3, 2), "10", "100", "0"),
		fx.Payment("PAY-1", fx.Day(2024, 3, 10), "400", "0"),
	}

	lines, rejected := ledger.Journalize(chart, book, march, fx.Controls())
	require.Empty(t, rejected)

	balances := ledger.PartnerBalances(partners, lines, fx.Controls())
	require.Equal(t, "600.00", balances[fx.CustomerID].StringFixed(2))
	require.Equal(t, "-600.00", balances[fx.VendorID].StringFixed(2))

	_, err := ledger.FindPartner(partners, 42)
	require.ErrorIs(t, err, shared.ErrPartnerNotFound)
}

func TestPartnerControlAccountOverride(t *testing.T) {
	p := ledger.Partner{ID: 1, Type: ledger.PartnerVendor}
	require.Equal(t, fx.Payable, p.ControlAccount(fx.Controls()))
	p.AccountID = fx.EmployeePayable
	require.Equal(t, fx.EmployeePayable, p.ControlAccount(fx.Controls()))
}

func TestItemQuantities(t *testing.T) {
	items := []ledger.Item{
		{ID: 1, Code: "SKU-1", Quantity: fx.D("5")},
		{ID: 2, Code: "SKU-2", Quantity: fx.D("1")},
	}
	sale := fx.Sale("INV-1", fx.Day(2024, 3, 5), "300", "0")
	sale.Lines = []posting.SalesLine{{ItemID: 1, Quantity: fx.D("3"), UnitPrice: fx.D("100"), UnitCost: fx.D("40")}}
	book := []posting.Transaction{
		fx.Purchase("BILL-1", fx.Day(2024, 3, 2), "10", "40", "0"),
		sale,
		fx.Purchase("BILL-APR", fx.Day(2024, 4, 2), "99", "40", "0"),
	}

	qty := ledger.ItemQuantities(items, book, march)
	require.Equal(t, map[int64]string{1: "12", 2: "1"}, map[int64]string{1: qty[1].String(), 2: qty[2].String()})
	require.True(t, qty[2].Equal(decimal.NewFromInt(1)))
}
