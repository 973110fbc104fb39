package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// StatementLine is one account disclosed in a statement section.
type StatementLine struct {
	ID     int64           `json:"id"`
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// Section groups lines by nature.
type Section struct {
	Label    string          `json:"label"`
	Accounts []StatementLine `json:"accounts"`
	Total    decimal.Decimal `json:"total"`
}

func (s *Section) add(line StatementLine) {
	s.Accounts = append(s.Accounts, line)
	s.Total = s.Total.Add(line.Amount)
}

func (s *Section) sort() {
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].Code < s.Accounts[j].Code })
}

// IncomeStatement contains the structured output for the report.
type IncomeStatement struct {
	Range            shared.DateRange `json:"range"`
	Revenue          Section          `json:"revenue"`
	COGS             Section          `json:"cogs"`
	OperatingExpense Section          `json:"operating_expense"`
	GrossProfit      decimal.Decimal  `json:"gross_profit"`
	NetIncome        decimal.Decimal  `json:"net_income"`
}

// BuildIncomeStatement splits the movement of revenue and expense leaves over
// the range into revenue, cost of goods sold (accounts flagged IsCOGS) and
// operating expense. Revenue lines are shown credit-positive.
func BuildIncomeStatement(chart *coa.Chart, res ledger.Result) IncomeStatement {
	revenue := Section{Label: "Revenue", Total: decimal.Zero}
	cogs := Section{Label: "Cost of Goods Sold", Total: decimal.Zero}
	opex := Section{Label: "Operating Expense", Total: decimal.Zero}

	for _, acc := range LeafBalances(chart, res) {
		movement := acc.Debit.Sub(acc.Credit)
		if movement.IsZero() {
			continue
		}
		line := StatementLine{ID: acc.ID, Code: acc.Code, Name: acc.Name, Amount: movement}
		switch acc.Type {
		case coa.AccountTypeRevenue:
			line.Amount = movement.Neg()
			revenue.add(line)
		case coa.AccountTypeExpense:
			if acc.IsCOGS {
				cogs.add(line)
			} else {
				opex.add(line)
			}
		}
	}
	revenue.sort()
	cogs.sort()
	opex.sort()

	gross := revenue.Total.Sub(cogs.Total)
	return IncomeStatement{
		Range:            res.Range,
		Revenue:          revenue,
		COGS:             cogs,
		OperatingExpense: opex,
		GrossProfit:      gross,
		NetIncome:        gross.Sub(opex.Total),
	}
}
