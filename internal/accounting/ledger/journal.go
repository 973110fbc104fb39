package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Line is one posting with the context of the transaction that produced it.
type Line struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Ref           string          `json:"ref"`
	Kind          posting.Kind    `json:"kind"`
	Date          time.Time       `json:"date"`
	Memo          string          `json:"memo,omitempty"`
	AccountID     int64           `json:"account_id"`
	PartnerID     int64           `json:"partner_id,omitempty"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	seq           int
}

// Amount is the signed value of the line, debit positive.
func (l Line) Amount() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// Journalize expands every in-range transaction into posting lines ordered by
// date, reference and transaction id, keeping the rule order inside a
// transaction. Rejected transactions contribute no lines.
func Journalize(chart *coa.Chart, txns []posting.Transaction, period shared.DateRange, controls posting.ControlAccounts) ([]Line, []*shared.MalformedTransactionError) {
	var (
		lines    []Line
		rejected []*shared.MalformedTransactionError
	)
	for _, txn := range txns {
		if txn == nil || !period.Contains(txn.Head().Date) {
			continue
		}
		postings, err := postingsOnChart(chart, txn, controls)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		h := txn.Head()
		for idx, p := range postings {
			lines = append(lines, Line{
				TransactionID: h.ID,
				Ref:           h.Ref,
				Kind:          txn.Kind(),
				Date:          shared.Day(h.Date),
				Memo:          h.Memo,
				AccountID:     p.AccountID,
				PartnerID:     p.PartnerID,
				Debit:         p.Debit(),
				Credit:        p.Credit(),
				seq:           idx,
			})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		if a.TransactionID != b.TransactionID {
			return a.TransactionID.String() < b.TransactionID.String()
		}
		return a.seq < b.seq
	})
	sortRejected(rejected)
	return lines, rejected
}

// Filter keeps the lines for which keep returns true.
func Filter(lines []Line, keep func(Line) bool) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// ForAccounts keeps lines posted to any of ids.
func ForAccounts(lines []Line, ids ...int64) []Line {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Filter(lines, func(l Line) bool {
		_, ok := set[l.AccountID]
		return ok
	})
}

// Totals sums the debit and credit columns.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}
