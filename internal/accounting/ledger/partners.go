package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// PartnerType separates receivable from payable counterparties.
type PartnerType string

const (
	PartnerCustomer PartnerType = "CUSTOMER"
	PartnerVendor   PartnerType = "VENDOR"
)

// Partner is a customer or vendor master record. Opening is the balance
// carried into the period by the last rollover. Balance is a cached
// projection of the partner ledger and never a source of truth.
type Partner struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      PartnerType     `json:"type"`
	AccountID int64           `json:"account_id,omitempty"`
	Opening   decimal.Decimal `json:"opening"`
	Balance   decimal.Decimal `json:"balance"`
}

// ControlAccount is the subledger account holding the partner's balance.
func (p Partner) ControlAccount(controls posting.ControlAccounts) int64 {
	if p.AccountID != 0 {
		return p.AccountID
	}
	if p.Type == PartnerVendor {
		return controls.Payable
	}
	return controls.Receivable
}

// PartnerLines keeps the lines tagged to p on its control account.
func PartnerLines(lines []Line, p Partner, controls posting.ControlAccounts) []Line {
	account := p.ControlAccount(controls)
	return Filter(lines, func(l Line) bool {
		return l.PartnerID == p.ID && l.AccountID == account
	})
}

// PartnerBalances replays the partner lines on top of each opening into
// signed balances: positive is a debit (customer owes), negative a credit
// (organization owes).
func PartnerBalances(partners []Partner, lines []Line, controls posting.ControlAccounts) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(partners))
	for _, p := range partners {
		debit, credit := Totals(PartnerLines(lines, p, controls))
		out[p.ID] = p.Opening.Add(debit).Sub(credit)
	}
	return out
}

// FindPartner looks up a partner by id.
func FindPartner(partners []Partner, id int64) (Partner, error) {
	for _, p := range partners {
		if p.ID == id {
			return p, nil
		}
	}
	return Partner{}, fmt.Errorf("%w: %d", shared.ErrPartnerNotFound, id)
}
