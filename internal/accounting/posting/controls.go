package posting

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// MappingModule is the module name used for general-ledger control mappings.
const MappingModule = "GL"

// Mapping keys resolved into ControlAccounts.
const (
	KeyReceivable       = "sales.receivable"
	KeyRevenue          = "sales.revenue"
	KeyTaxPayable       = "sales.tax_payable"
	KeyCOGS             = "sales.cogs"
	KeyInventory        = "inventory.default"
	KeyPayable          = "purchase.payable"
	KeyTaxReceivable    = "purchase.tax_receivable"
	KeyWHTExpense       = "receipt.wht_expense"
	KeyWHTPayable       = "payment.wht_payable"
	KeyEmployeePayable  = "expense.employee_payable"
	KeyRetainedEarnings = "equity.retained_earnings"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module    string `json:"module"`
	Key       string `json:"key"`
	AccountID int64  `json:"account_id"`
}

// ControlAccounts are the fixed accounts posting rules fall back to when a
// record does not name its own.
type ControlAccounts struct {
	Receivable       int64 `json:"receivable"`
	Revenue          int64 `json:"revenue"`
	TaxPayable       int64 `json:"tax_payable"`
	COGS             int64 `json:"cogs"`
	Inventory        int64 `json:"inventory"`
	Payable          int64 `json:"payable"`
	TaxReceivable    int64 `json:"tax_receivable"`
	WHTExpense       int64 `json:"wht_expense"`
	WHTPayable       int64 `json:"wht_payable"`
	EmployeePayable  int64 `json:"employee_payable"`
	RetainedEarnings int64 `json:"retained_earnings"`
}

func (c *ControlAccounts) slots() []struct {
	key  string
	ptr  *int64
	kind coa.AccountType
} {
	return []struct {
		key  string
		ptr  *int64
		kind coa.AccountType
	}{
		{KeyReceivable, &c.Receivable, coa.AccountTypeAsset},
		{KeyRevenue, &c.Revenue, coa.AccountTypeRevenue},
		{KeyTaxPayable, &c.TaxPayable, coa.AccountTypeLiability},
		{KeyCOGS, &c.COGS, coa.AccountTypeExpense},
		{KeyInventory, &c.Inventory, coa.AccountTypeAsset},
		{KeyPayable, &c.Payable, coa.AccountTypeLiability},
		{KeyTaxReceivable, &c.TaxReceivable, coa.AccountTypeAsset},
		{KeyWHTExpense, &c.WHTExpense, ""},
		{KeyWHTPayable, &c.WHTPayable, coa.AccountTypeLiability},
		{KeyEmployeePayable, &c.EmployeePayable, coa.AccountTypeLiability},
		{KeyRetainedEarnings, &c.RetainedEarnings, coa.AccountTypeEquity},
	}
}

// ResolveControls builds ControlAccounts from GL mappings. Every key is required.
func ResolveControls(mappings []AccountMapping) (ControlAccounts, error) {
	index := make(map[string]int64, len(mappings))
	for _, m := range mappings {
		if m.Module != "" && !strings.EqualFold(m.Module, MappingModule) {
			continue
		}
		index[m.Key] = m.AccountID
	}
	var controls ControlAccounts
	for _, slot := range controls.slots() {
		id, ok := index[slot.key]
		if !ok || id == 0 {
			return ControlAccounts{}, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, MappingModule, slot.key)
		}
		*slot.ptr = id
	}
	return controls, nil
}

// Mappings flattens controls back into mapping rows.
func (c ControlAccounts) Mappings() []AccountMapping {
	slots := c.slots()
	out := make([]AccountMapping, 0, len(slots))
	for _, slot := range slots {
		out = append(out, AccountMapping{Module: MappingModule, Key: slot.key, AccountID: *slot.ptr})
	}
	return out
}

// Validate checks that every control is a leaf of the expected type.
// The WHT expense slot may be an asset (prepaid tax) or an expense.
func (c ControlAccounts) Validate(chart *coa.Chart) error {
	for _, slot := range c.slots() {
		acc, err := chart.Leaf(*slot.ptr)
		if err != nil {
			return fmt.Errorf("posting: control %s: %w", slot.key, err)
		}
		if slot.kind == "" {
			if acc.Type != coa.AccountTypeExpense && acc.Type != coa.AccountTypeAsset {
				return fmt.Errorf("posting: control %s: account %s must be an expense or asset", slot.key, acc.Code)
			}
			continue
		}
		if acc.Type != slot.kind {
			return fmt.Errorf("posting: control %s: account %s is %s, want %s", slot.key, acc.Code, acc.Type, slot.kind)
		}
	}
	return nil
}
