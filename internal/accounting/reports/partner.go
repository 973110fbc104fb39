package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// PartnerLedger is the subsidiary ledger of one customer or vendor.
type PartnerLedger struct {
	Partner     ledger.Partner   `json:"partner"`
	Range       shared.DateRange `json:"range"`
	Opening     decimal.Decimal  `json:"opening"`
	Rows        []LedgerRow      `json:"rows"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	TotalCredit decimal.Decimal  `json:"total_credit"`
	Closing     decimal.Decimal  `json:"closing"`
	Side        Side             `json:"side"`
}

// BuildPartnerLedger runs the partner's lines on its control account. For a
// customer, sales and debit-side notes are debits while receipts and credit
// notes are credits; for a vendor, payments and debit notes are debits while
// purchases are credits. A customer therefore normally ends Dr and a vendor Cr.
func BuildPartnerLedger(p ledger.Partner, lines []ledger.Line, period shared.DateRange, controls posting.ControlAccounts, opening decimal.Decimal) PartnerLedger {
	selected := ledger.PartnerLines(lines, p, controls)
	rows, closing := running(selected, opening, func(ledger.Line) string { return "" })
	debit, credit := ledger.Totals(selected)
	return PartnerLedger{
		Partner:     p,
		Range:       period,
		Opening:     opening,
		Rows:        rows,
		TotalDebit:  debit,
		TotalCredit: credit,
		Closing:     closing,
		Side:        SideOf(closing),
	}
}

// RefreshPartnerBalances re-derives every partner's cached balance from the
// ledger lines and returns the refreshed copies plus the ids whose stored
// balance had drifted.
func RefreshPartnerBalances(partners []ledger.Partner, lines []ledger.Line, controls posting.ControlAccounts) ([]ledger.Partner, []int64) {
	balances := ledger.PartnerBalances(partners, lines, controls)
	out := make([]ledger.Partner, len(partners))
	var drifted []int64
	for i, p := range partners {
		derived := balances[p.ID]
		if !p.Balance.Equal(derived) {
			drifted = append(drifted, p.ID)
		}
		p.Balance = derived
		out[i] = p
	}
	return out, drifted
}
