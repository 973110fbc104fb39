package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Item is an inventory item with its opening quantity for the active period.
type Item struct {
	ID       int64           `json:"id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ItemQuantities returns the closing quantity of each item over period:
// opening plus purchased minus sold. Lines for unknown items are ignored.
func ItemQuantities(items []Item, txns []posting.Transaction, period shared.DateRange) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(items))
	for _, it := range items {
		out[it.ID] = it.Quantity
	}
	for _, txn := range txns {
		if txn == nil || !period.Contains(txn.Head().Date) {
			continue
		}
		switch t := txn.(type) {
		case posting.SalesInvoice:
			for _, line := range t.Lines {
				if qty, ok := out[line.ItemID]; ok {
					out[line.ItemID] = qty.Sub(line.Quantity)
				}
			}
		case posting.PurchaseBill:
			for _, line := range t.Lines {
				if qty, ok := out[line.ItemID]; ok {
					out[line.ItemID] = qty.Add(line.Quantity)
				}
			}
		}
	}
	return out
}
