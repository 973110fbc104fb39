package coa

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

var (
	// ErrDuplicateAccount indicates two accounts share an id or code.
	ErrDuplicateAccount = errors.New("coa: duplicate account")
	// ErrInvalidHierarchy indicates a broken parent link or level.
	ErrInvalidHierarchy = errors.New("coa: invalid hierarchy")
	// ErrInvalidAccount indicates a malformed account row.
	ErrInvalidAccount = errors.New("coa: invalid account")
)

// Chart is an immutable, validated index over a chart of accounts.
type Chart struct {
	accounts []Account
	byID     map[int64]int
	byCode   map[string]int
	children map[int64][]int64
}

// NewChart validates the tree and builds lookup indexes. The input slice is copied.
func NewChart(accounts []Account) (*Chart, error) {
	c := &Chart{
		accounts: make([]Account, len(accounts)),
		byID:     make(map[int64]int, len(accounts)),
		byCode:   make(map[string]int, len(accounts)),
		children: make(map[int64][]int64),
	}
	copy(c.accounts, accounts)
	sort.SliceStable(c.accounts, func(i, j int) bool { return c.accounts[i].Code < c.accounts[j].Code })

	for idx, acc := range c.accounts {
		if acc.ID == 0 {
			return nil, fmt.Errorf("%w: account %q has no id", ErrInvalidAccount, acc.Code)
		}
		if acc.Code == "" {
			return nil, fmt.Errorf("%w: account %d has no code", ErrInvalidAccount, acc.ID)
		}
		if !acc.Type.Valid() {
			return nil, fmt.Errorf("%w: account %s has type %q", ErrInvalidAccount, acc.Code, acc.Type)
		}
		if acc.Level < 1 || acc.Level > LeafLevel {
			return nil, fmt.Errorf("%w: account %s has level %d", ErrInvalidHierarchy, acc.Code, acc.Level)
		}
		if acc.IsCOGS && acc.Type != AccountTypeExpense {
			return nil, fmt.Errorf("%w: account %s is COGS but not an expense", ErrInvalidAccount, acc.Code)
		}
		if _, dup := c.byID[acc.ID]; dup {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateAccount, acc.ID)
		}
		if _, dup := c.byCode[acc.Code]; dup {
			return nil, fmt.Errorf("%w: code %s", ErrDuplicateAccount, acc.Code)
		}
		c.byID[acc.ID] = idx
		c.byCode[acc.Code] = idx
	}

	for _, acc := range c.accounts {
		if acc.Level == 1 {
			if acc.ParentID != nil {
				return nil, fmt.Errorf("%w: root account %s has a parent", ErrInvalidHierarchy, acc.Code)
			}
			continue
		}
		if acc.ParentID == nil {
			return nil, fmt.Errorf("%w: account %s at level %d has no parent", ErrInvalidHierarchy, acc.Code, acc.Level)
		}
		pidx, ok := c.byID[*acc.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: account %s references missing parent %d", ErrInvalidHierarchy, acc.Code, *acc.ParentID)
		}
		parent := c.accounts[pidx]
		if parent.Level != acc.Level-1 {
			return nil, fmt.Errorf("%w: account %s (level %d) under %s (level %d)", ErrInvalidHierarchy, acc.Code, acc.Level, parent.Code, parent.Level)
		}
		if parent.Type != acc.Type {
			return nil, fmt.Errorf("%w: account %s type %s differs from parent %s type %s", ErrInvalidHierarchy, acc.Code, acc.Type, parent.Code, parent.Type)
		}
		c.children[parent.ID] = append(c.children[parent.ID], acc.ID)
	}

	for _, acc := range c.accounts {
		if !acc.IsLeaf() && !acc.Balance.IsZero() {
			return nil, fmt.Errorf("%w: aggregation account %s carries a direct balance", ErrInvalidAccount, acc.Code)
		}
	}
	return c, nil
}

// MustChart panics when accounts do not form a valid chart. Intended for fixtures.
func MustChart(accounts []Account) *Chart {
	c, err := NewChart(accounts)
	if err != nil {
		panic(err)
	}
	return c
}

// Accounts returns a copy of every account ordered by code.
func (c *Chart) Accounts() []Account {
	out := make([]Account, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// Len returns the number of accounts.
func (c *Chart) Len() int {
	return len(c.accounts)
}

// Account looks up an account by id.
func (c *Chart) Account(id int64) (Account, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Account{}, false
	}
	return c.accounts[idx], true
}

// ByCode looks up an account by code.
func (c *Chart) ByCode(code string) (Account, bool) {
	idx, ok := c.byCode[code]
	if !ok {
		return Account{}, false
	}
	return c.accounts[idx], true
}

// Leaf returns the account when it exists and accepts postings.
func (c *Chart) Leaf(id int64) (Account, error) {
	acc, ok := c.Account(id)
	if !ok {
		return Account{}, fmt.Errorf("%w: %d", shared.ErrUnknownAccount, id)
	}
	if !acc.IsLeaf() {
		return Account{}, fmt.Errorf("%w: %s is level %d", shared.ErrNotLeafAccount, acc.Code, acc.Level)
	}
	return acc, nil
}

// Leaves returns all level-4 accounts ordered by code.
func (c *Chart) Leaves() []Account {
	out := make([]Account, 0, len(c.accounts))
	for _, acc := range c.accounts {
		if acc.IsLeaf() {
			out = append(out, acc)
		}
	}
	return out
}

// Children returns direct child ids.
func (c *Chart) Children(id int64) []int64 {
	return append([]int64(nil), c.children[id]...)
}

// DescendantLeaves returns the leaf ids under id, including id itself when it is a leaf.
func (c *Chart) DescendantLeaves(id int64) []int64 {
	acc, ok := c.Account(id)
	if !ok {
		return nil
	}
	if acc.IsLeaf() {
		return []int64{id}
	}
	var out []int64
	for _, child := range c.children[id] {
		out = append(out, c.DescendantLeaves(child)...)
	}
	return out
}

// Root returns the level-1 ancestor of id.
func (c *Chart) Root(id int64) (Account, bool) {
	acc, ok := c.Account(id)
	for ok && acc.ParentID != nil {
		acc, ok = c.Account(*acc.ParentID)
	}
	return acc, ok
}

// RollUp propagates leaf values into every ancestor. Accounts are visited from
// level 4 up to level 2 so each parent receives its children's totals only
// after those children have accumulated their own descendants. Missing leaves
// count as zero; values on aggregation accounts in leaves are ignored.
func (c *Chart) RollUp(leaves map[int64]decimal.Decimal) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(c.accounts))
	for _, acc := range c.accounts {
		if acc.IsLeaf() {
			out[acc.ID] = leaves[acc.ID]
		} else {
			out[acc.ID] = decimal.Zero
		}
	}
	order := make([]Account, len(c.accounts))
	copy(order, c.accounts)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Level > order[j].Level })
	for _, acc := range order {
		if acc.ParentID == nil {
			continue
		}
		out[*acc.ParentID] = out[*acc.ParentID].Add(out[acc.ID])
	}
	return out
}

// Openings returns the opening balance of every leaf.
func (c *Chart) Openings() map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, acc := range c.accounts {
		if acc.IsLeaf() {
			out[acc.ID] = acc.Balance
		}
	}
	return out
}
