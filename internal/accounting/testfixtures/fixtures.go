// Package testfixtures provides a small, fully wired chart of accounts and
// transaction builders shared by package tests.
package testfixtures

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
)

// Leaf account ids. Ids equal codes so failures read naturally.
const (
	Cash             int64 = 1111
	Bank             int64 = 1112
	Receivable       int64 = 1121
	Inventory        int64 = 1131
	TaxReceivable    int64 = 1141
	Payable          int64 = 2111
	EmployeePayable  int64 = 2112
	WHTPayable       int64 = 2141
	TaxPayable       int64 = 2142
	Capital          int64 = 3111
	RetainedEarnings int64 = 3112
	SalesRevenue     int64 = 4111
	COGS             int64 = 5111
	Salaries         int64 = 5211
	Rent             int64 = 5212
	WHTExpense       int64 = 5213
)

// Partner ids used by the builders.
const (
	CustomerID int64 = 501
	VendorID   int64 = 601
)

type row struct {
	id     int64
	name   string
	typ    coa.AccountType
	parent int64
	cogs   bool
}

var rows = []row{
	{1, "Assets", coa.AccountTypeAsset, 0, false},
	{11, "Current Assets", coa.AccountTypeAsset, 1, false},
	{111, "Cash and Bank", coa.AccountTypeAsset, 11, false},
	{1111, "Cash on Hand", coa.AccountTypeAsset, 111, false},
	{1112, "Bank", coa.AccountTypeAsset, 111, false},
	{112, "Receivables", coa.AccountTypeAsset, 11, false},
	{1121, "Accounts Receivable", coa.AccountTypeAsset, 112, false},
	{113, "Inventory", coa.AccountTypeAsset, 11, false},
	{1131, "Merchandise Inventory", coa.AccountTypeAsset, 113, false},
	{114, "Prepaid Taxes", coa.AccountTypeAsset, 11, false},
	{1141, "VAT Receivable", coa.AccountTypeAsset, 114, false},
	{2, "Liabilities", coa.AccountTypeLiability, 0, false},
	{21, "Current Liabilities", coa.AccountTypeLiability, 2, false},
	{211, "Trade Payables", coa.AccountTypeLiability, 21, false},
	{2111, "Accounts Payable", coa.AccountTypeLiability, 211, false},
	{2112, "Employee Payable", coa.AccountTypeLiability, 211, false},
	{214, "Taxes Payable", coa.AccountTypeLiability, 21, false},
	{2141, "WHT Payable", coa.AccountTypeLiability, 214, false},
	{2142, "VAT Payable", coa.AccountTypeLiability, 214, false},
	{3, "Equity", coa.AccountTypeEquity, 0, false},
	{31, "Owners Equity", coa.AccountTypeEquity, 3, false},
	{311, "Capital and Reserves", coa.AccountTypeEquity, 31, false},
	{3111, "Share Capital", coa.AccountTypeEquity, 311, false},
	{3112, "Retained Earnings", coa.AccountTypeEquity, 311, false},
	{4, "Revenue", coa.AccountTypeRevenue, 0, false},
	{41, "Operating Revenue", coa.AccountTypeRevenue, 4, false},
	{411, "Sales", coa.AccountTypeRevenue, 41, false},
	{4111, "Sales Revenue", coa.AccountTypeRevenue, 411, false},
	{5, "Expenses", coa.AccountTypeExpense, 0, false},
	{51, "Cost of Sales", coa.AccountTypeExpense, 5, false},
	{511, "Cost of Goods Sold", coa.AccountTypeExpense, 51, false},
	{5111, "COGS - Merchandise", coa.AccountTypeExpense, 511, true},
	{52, "Operating Expenses", coa.AccountTypeExpense, 5, false},
	{521, "General and Administrative", coa.AccountTypeExpense, 52, false},
	{5211, "Salaries", coa.AccountTypeExpense, 521, false},
	{5212, "Rent", coa.AccountTypeExpense, 521, false},
	{5213, "Withholding Tax Expense", coa.AccountTypeExpense, 521, false},
}

// Accounts returns a fresh copy of the fixture chart rows with zero balances.
func Accounts() []coa.Account {
	out := make([]coa.Account, 0, len(rows))
	for _, r := range rows {
		acc := coa.Account{
			ID:     r.id,
			Code:   fmt.Sprintf("%d", r.id),
			Name:   r.name,
			Type:   r.typ,
			Level:  len(fmt.Sprintf("%d", r.id)),
			IsCOGS: r.cogs,
		}
		if r.parent != 0 {
			parent := r.parent
			acc.ParentID = &parent
		}
		out = append(out, acc)
	}
	return out
}

// Chart builds the fixture chart, optionally seeding leaf opening balances.
func Chart(openings map[int64]decimal.Decimal) *coa.Chart {
	accounts := Accounts()
	for i := range accounts {
		if bal, ok := openings[accounts[i].ID]; ok {
			accounts[i].Balance = bal
		}
	}
	return coa.MustChart(accounts)
}

// Controls returns the control accounts wired to the fixture chart.
func Controls() posting.ControlAccounts {
	return posting.ControlAccounts{
		Receivable:       Receivable,
		Revenue:          SalesRevenue,
		TaxPayable:       TaxPayable,
		COGS:             COGS,
		Inventory:        Inventory,
		Payable:          Payable,
		TaxReceivable:    TaxReceivable,
		WHTExpense:       WHTExpense,
		WHTPayable:       WHTPayable,
		EmployeePayable:  EmployeePayable,
		RetainedEarnings: RetainedEarnings,
	}
}

// D parses a decimal literal.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Day returns midnight UTC for the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Header builds a transaction header with a fresh id.
func Header(ref string, date time.Time) posting.Header {
	return posting.Header{ID: uuid.New(), Ref: ref, Date: date}
}

// Sale builds a sales invoice without item lines.
func Sale(ref string, date time.Time, sub, tax string) posting.SalesInvoice {
	s, t := D(sub), D(tax)
	return posting.SalesInvoice{
		Header:     Header(ref, date),
		CustomerID: CustomerID,
		SubTotal:   s,
		TaxTotal:   t,
		GrandTotal: s.Add(t),
	}
}

// Purchase builds a single-line purchase bill.
func Purchase(ref string, date time.Time, qty, cost, tax string) posting.PurchaseBill {
	line := posting.PurchaseLine{ItemID: 1, Quantity: D(qty), UnitCost: D(cost)}
	return posting.PurchaseBill{
		Header:     Header(ref, date),
		VendorID:   VendorID,
		TaxTotal:   D(tax),
		GrandTotal: line.Amount().Add(D(tax)),
		Lines:      []posting.PurchaseLine{line},
	}
}

// Receipt builds a customer receipt into the bank account.
func Receipt(ref string, date time.Time, gross, wht string) posting.ReceiptRecord {
	g, w := D(gross), D(wht)
	return posting.ReceiptRecord{
		Header:        Header(ref, date),
		CustomerID:    CustomerID,
		BankAccountID: Bank,
		GrossAmount:   g,
		WHTAmount:     w,
		NetAmount:     g.Sub(w),
	}
}

// Payment builds a vendor payment from the bank account.
func Payment(ref string, date time.Time, gross, wht string) posting.PaymentRecord {
	g, w := D(gross), D(wht)
	return posting.PaymentRecord{
		Header:        Header(ref, date),
		VendorID:      VendorID,
		BankAccountID: Bank,
		GrossAmount:   g,
		WHTAmount:     w,
		NetAmount:     g.Sub(w),
	}
}

// Expense builds a directly paid expense.
func Expense(ref string, date time.Time, account int64, amount string) posting.ExpenseRecord {
	return posting.ExpenseRecord{
		Header:           Header(ref, date),
		ExpenseAccountID: account,
		PaymentType:      posting.ExpenseDirect,
		CashAccountID:    Cash,
		Amount:           D(amount),
	}
}

// Journal builds a two-line journal voucher debiting dr and crediting cr.
func Journal(ref string, date time.Time, dr, cr int64, amount string) posting.JournalVoucher {
	return posting.JournalVoucher{
		Header: Header(ref, date),
		Entries: []posting.JournalEntry{
			{AccountID: dr, Debit: D(amount)},
			{AccountID: cr, Credit: D(amount)},
		},
	}
}
