package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/reports"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func amount(tag language.Tag, v decimal.Decimal) string {
	if v.IsZero() {
		return ""
	}
	return reports.FormatAmount(tag, v)
}

func renderTrialBalance(w io.Writer, tag language.Tag, tb reports.TrialBalance) error {
	fmt.Fprintf(w, "Trial balance %s\n\n", tb.Range)
	tw := newTable(w)
	fmt.Fprintln(tw, "Code\tAccount\tDebit\tCredit\t")
	for _, g := range tb.Groups {
		fmt.Fprintf(tw, "%s\t%s\t\t\t\n", g.Key, g.Label)
		for _, a := range g.Accounts {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", a.Code, a.Name, amount(tag, a.Debit), amount(tag, a.Credit))
		}
	}
	fmt.Fprintf(tw, "\tTotal\t%s\t%s\t\n", reports.FormatAmount(tag, tb.TotalDebit), reports.FormatAmount(tag, tb.TotalCredit))
	return tw.Flush()
}

func renderSection(tw io.Writer, tag language.Tag, s reports.Section) {
	fmt.Fprintf(tw, "%s\t\t\t\n", s.Label)
	for _, l := range s.Accounts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t\n", l.Code, l.Name, reports.FormatAmount(tag, l.Amount))
	}
	fmt.Fprintf(tw, "\tTotal %s\t%s\t\n", s.Label, reports.FormatAmount(tag, s.Total))
}

func renderIncomeStatement(w io.Writer, tag language.Tag, is reports.IncomeStatement) error {
	fmt.Fprintf(w, "Income statement %s\n\n", is.Range)
	tw := newTable(w)
	renderSection(tw, tag, is.Revenue)
	renderSection(tw, tag, is.COGS)
	fmt.Fprintf(tw, "\tGross profit\t%s\t\n", reports.FormatAmount(tag, is.GrossProfit))
	renderSection(tw, tag, is.OperatingExpense)
	fmt.Fprintf(tw, "\tNet income\t%s\t\n", reports.FormatAmount(tag, is.NetIncome))
	return tw.Flush()
}

func renderBalanceSheet(w io.Writer, tag language.Tag, bs reports.BalanceSheet) error {
	fmt.Fprintf(w, "Balance sheet as of %s\n\n", bs.Range.To.Format(acctshared.DateLayout))
	tw := newTable(w)
	renderSection(tw, tag, bs.Assets)
	renderSection(tw, tag, bs.Liabilities)
	renderSection(tw, tag, bs.Equity)
	fmt.Fprintf(tw, "\tLiabilities and equity\t%s\t\n", reports.FormatAmount(tag, bs.TotalLiabilitiesAndEquity))
	return tw.Flush()
}

func renderLedger(w io.Writer, tag language.Tag, title string, opening decimal.Decimal, rows []reports.LedgerRow, debit, credit, closing decimal.Decimal) error {
	fmt.Fprintf(w, "%s\n\n", title)
	tw := newTable(w)
	fmt.Fprintln(tw, "Date\tRef\tKind\tDebit\tCredit\tBalance\t")
	fmt.Fprintf(tw, "\tOpening\t\t\t\t%s\t\n", reports.FormatBalance(tag, opening))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Date.Format(acctshared.DateLayout), r.Ref, r.Kind,
			amount(tag, r.Debit), amount(tag, r.Credit), reports.FormatBalance(tag, r.Balance))
	}
	fmt.Fprintf(tw, "\tTotal\t\t%s\t%s\t%s\t\n",
		reports.FormatAmount(tag, debit), reports.FormatAmount(tag, credit), reports.FormatBalance(tag, closing))
	return tw.Flush()
}

func renderDayBook(w io.Writer, tag language.Tag, db reports.DayBook) error {
	fmt.Fprintf(w, "Day book %s\n\n", db.Range)
	tw := newTable(w)
	fmt.Fprintln(tw, "Date\tRef\tKind\tPartner\tAmount\t")
	for _, r := range db.Rows {
		partner := ""
		if r.PartnerID != 0 {
			partner = fmt.Sprint(r.PartnerID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t\n",
			r.Date.Format(acctshared.DateLayout), r.Ref, r.Kind, partner, reports.FormatAmount(tag, r.Amount))
	}
	return tw.Flush()
}
