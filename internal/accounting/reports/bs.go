package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// CurrentYearProfitLabel names the derived equity line carrying unclosed profit.
const CurrentYearProfitLabel = "Net Profit - Current Year"

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	Range                     shared.DateRange `json:"range"`
	Assets                    Section          `json:"assets"`
	Liabilities               Section          `json:"liabilities"`
	Equity                    Section          `json:"equity"`
	NetIncome                 decimal.Decimal  `json:"net_income"`
	TotalLiabilitiesAndEquity decimal.Decimal  `json:"total_liabilities_and_equity"`
}

// Balanced reports whether assets equal liabilities plus equity within tol.
func (bs BalanceSheet) Balanced(tol decimal.Decimal) bool {
	return shared.WithinTolerance(bs.Assets.Total, bs.TotalLiabilitiesAndEquity, tol)
}

// BuildBalanceSheet aggregates closing balances into assets, liabilities and
// equity. Liability and equity lines are shown credit-positive. Profit not yet
// closed into an equity account, taken from the closing balances of revenue
// and expense leaves, is added as a derived equity line. When the identity
// does not hold within tol the sheet is returned with an unbalanced error.
func BuildBalanceSheet(chart *coa.Chart, res ledger.Result, tol decimal.Decimal) (BalanceSheet, error) {
	assets := Section{Label: "Assets", Total: decimal.Zero}
	liabilities := Section{Label: "Liabilities", Total: decimal.Zero}
	equity := Section{Label: "Equity", Total: decimal.Zero}

	netIncome := decimal.Zero
	for _, acc := range LeafBalances(chart, res) {
		closing := acc.Closing()
		if closing.IsZero() {
			continue
		}
		line := StatementLine{ID: acc.ID, Code: acc.Code, Name: acc.Name}
		switch acc.Type {
		case coa.AccountTypeRevenue, coa.AccountTypeExpense:
			netIncome = netIncome.Sub(closing)
		case coa.AccountTypeAsset:
			line.Amount = closing
			assets.add(line)
		case coa.AccountTypeLiability:
			line.Amount = closing.Neg()
			liabilities.add(line)
		case coa.AccountTypeEquity:
			line.Amount = closing.Neg()
			equity.add(line)
		}
	}
	assets.sort()
	liabilities.sort()
	equity.sort()

	equity.add(StatementLine{Name: CurrentYearProfitLabel, Amount: netIncome})

	bs := BalanceSheet{
		Range:                     res.Range,
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		NetIncome:                 netIncome,
		TotalLiabilitiesAndEquity: liabilities.Total.Add(equity.Total),
	}
	if !tol.IsPositive() {
		tol = shared.DefaultTolerance
	}
	if !bs.Balanced(tol) {
		return bs, &shared.UnbalancedResultError{Check: "balance sheet", Difference: assets.Total.Sub(bs.TotalLiabilitiesAndEquity)}
	}
	return bs, nil
}
