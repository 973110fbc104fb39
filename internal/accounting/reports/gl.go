package reports

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Side is the display direction of a running balance.
type Side string

const (
	SideDebit  Side = "Dr"
	SideCredit Side = "Cr"
)

// SideOf returns Dr for balances >= 0 and Cr otherwise.
func SideOf(balance decimal.Decimal) Side {
	if balance.IsNegative() {
		return SideCredit
	}
	return SideDebit
}

// LedgerRow is one dated line with the running balance after it.
type LedgerRow struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Ref           string          `json:"ref"`
	Kind          posting.Kind    `json:"kind"`
	Memo          string          `json:"memo,omitempty"`
	AccountCode   string          `json:"account_code,omitempty"`
	PartnerID     int64           `json:"partner_id,omitempty"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
	Side          Side            `json:"side"`
}

// RunningBalance is the magnitude of Balance for display next to Side.
func (r LedgerRow) RunningBalance() decimal.Decimal {
	return r.Balance.Abs()
}

// GeneralLedger is the drill-down of one account.
type GeneralLedger struct {
	Account     coa.Account      `json:"account"`
	Range       shared.DateRange `json:"range"`
	Opening     decimal.Decimal  `json:"opening"`
	Rows        []LedgerRow      `json:"rows"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	TotalCredit decimal.Decimal  `json:"total_credit"`
	Closing     decimal.Decimal  `json:"closing"`
	Side        Side             `json:"side"`
}

// BuildGeneralLedger lists the lines posted to accountID, or to any leaf
// beneath it, in journal order with a running balance that starts at opening.
func BuildGeneralLedger(chart *coa.Chart, lines []ledger.Line, period shared.DateRange, accountID int64, opening decimal.Decimal) (GeneralLedger, error) {
	acc, ok := chart.Account(accountID)
	if !ok {
		return GeneralLedger{}, fmt.Errorf("%w: %d", shared.ErrUnknownAccount, accountID)
	}
	codes := make(map[int64]string)
	for _, id := range chart.DescendantLeaves(accountID) {
		leaf, _ := chart.Account(id)
		codes[id] = leaf.Code
	}
	selected := ledger.Filter(lines, func(l ledger.Line) bool {
		_, ok := codes[l.AccountID]
		return ok
	})

	rows, closing := running(selected, opening, func(l ledger.Line) string { return codes[l.AccountID] })
	debit, credit := ledger.Totals(selected)
	return GeneralLedger{
		Account:     acc,
		Range:       period,
		Opening:     opening,
		Rows:        rows,
		TotalDebit:  debit,
		TotalCredit: credit,
		Closing:     closing,
		Side:        SideOf(closing),
	}, nil
}

func running(lines []ledger.Line, opening decimal.Decimal, code func(ledger.Line) string) ([]LedgerRow, decimal.Decimal) {
	balance := opening
	rows := make([]LedgerRow, 0, len(lines))
	for _, l := range lines {
		balance = balance.Add(l.Debit).Sub(l.Credit)
		rows = append(rows, LedgerRow{
			TransactionID: l.TransactionID,
			Date:          l.Date,
			Ref:           l.Ref,
			Kind:          l.Kind,
			Memo:          l.Memo,
			AccountCode:   code(l),
			PartnerID:     l.PartnerID,
			Debit:         l.Debit,
			Credit:        l.Credit,
			Balance:       balance,
			Side:          SideOf(balance),
		})
	}
	return rows, balance
}
