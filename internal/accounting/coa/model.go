package coa

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// LeafLevel is the only level that receives postings.
const LeafLevel = 4

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Permanent reports whether balances of this type carry across fiscal periods.
func (t AccountType) Permanent() bool {
	return t == AccountTypeAsset || t == AccountTypeLiability || t == AccountTypeEquity
}

// Account models a chart of accounts node. Balance is positive for a net debit
// and negative for a net credit regardless of type. On a leaf it holds the
// opening balance of the active period.
type Account struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Type     AccountType     `json:"type"`
	Level    int             `json:"level"`
	ParentID *int64          `json:"parent_id,omitempty"`
	IsCOGS   bool            `json:"is_cogs,omitempty"`
	Balance  decimal.Decimal `json:"balance"`
}

// IsLeaf reports whether the account accepts direct postings.
func (a Account) IsLeaf() bool {
	return a.Level == LeafLevel
}

// MarkCOGSByPrefix flags expense accounts whose code starts with prefix as
// cost of goods sold. It only exists to import legacy charts that encoded the
// classification in the account code.
func MarkCOGSByPrefix(accounts []Account, prefix string) []Account {
	out := make([]Account, len(accounts))
	copy(out, accounts)
	if prefix == "" {
		return out
	}
	for i := range out {
		if out[i].Type == AccountTypeExpense && strings.HasPrefix(out[i].Code, prefix) {
			out[i].IsCOGS = true
		}
	}
	return out
}
