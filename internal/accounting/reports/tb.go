package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// AccountBalance models a leaf account with aggregated movement.
type AccountBalance struct {
	ID      int64           `json:"id"`
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    coa.AccountType `json:"type"`
	IsCOGS  bool            `json:"is_cogs,omitempty"`
	Opening decimal.Decimal `json:"opening"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// Closing computes the closing balance for the account.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening.Add(a.Debit).Sub(a.Credit)
}

// LeafBalances lists every leaf of chart with its movement in res, ordered by code.
func LeafBalances(chart *coa.Chart, res ledger.Result) []AccountBalance {
	leaves := chart.Leaves()
	out := make([]AccountBalance, 0, len(leaves))
	for _, acc := range leaves {
		m := res.Leaves[acc.ID]
		out = append(out, AccountBalance{
			ID:      acc.ID,
			Code:    acc.Code,
			Name:    acc.Name,
			Type:    acc.Type,
			IsCOGS:  acc.IsCOGS,
			Opening: m.Opening,
			Debit:   m.Debit,
			Credit:  m.Credit,
		})
	}
	return out
}

// TrialBalanceAccount represents a row inside a trial balance group. Debit and
// Credit are the closing balance columns; PeriodDebit and PeriodCredit the
// movement over the range.
type TrialBalanceAccount struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Opening      decimal.Decimal `json:"opening"`
	PeriodDebit  decimal.Decimal `json:"period_debit"`
	PeriodCredit decimal.Decimal `json:"period_credit"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
}

// TrialBalanceGroup aggregates rows under their level-1 ancestor.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Label    string                `json:"label"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
}

// TrialBalance is the final structure rendered by the presentation layer.
type TrialBalance struct {
	Range       shared.DateRange    `json:"range"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
}

// BuildTrialBalance lists every leaf with a non-zero closing balance, positive
// balances in the debit column and negative ones in the credit column. The two
// totals must agree exactly; a difference is reported as an unbalanced result.
func BuildTrialBalance(chart *coa.Chart, res ledger.Result) (TrialBalance, error) {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range LeafBalances(chart, res) {
		closing := acc.Closing()
		if closing.IsZero() {
			continue
		}
		root, _ := chart.Root(acc.ID)
		grp, ok := groups[root.Code]
		if !ok {
			grp = &TrialBalanceGroup{Key: root.Code, Label: root.Name}
			groups[root.Code] = grp
			keys = append(keys, root.Code)
		}
		row := TrialBalanceAccount{
			ID:           acc.ID,
			Code:         acc.Code,
			Name:         acc.Name,
			Opening:      acc.Opening,
			PeriodDebit:  acc.Debit,
			PeriodCredit: acc.Credit,
		}
		if closing.IsPositive() {
			row.Debit = closing
		} else {
			row.Credit = closing.Neg()
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{Range: res.Range, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	if !result.TotalDebit.Equal(result.TotalCredit) {
		return result, &shared.UnbalancedResultError{Check: "trial balance", Difference: result.TotalDebit.Sub(result.TotalCredit)}
	}
	return result, nil
}
