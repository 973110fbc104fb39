// Package ledger folds posted transactions into account balances.
package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Options tunes aggregation.
type Options struct {
	Controls  posting.ControlAccounts
	Tolerance decimal.Decimal
	// Since, when before the range start, folds movement dated from Since up
	// to the day before the range into each leaf's opening.
	Since time.Time
}

func (o Options) earlier(r shared.DateRange, date time.Time) bool {
	if o.Since.IsZero() {
		return false
	}
	d := shared.Day(date)
	return !d.Before(shared.Day(o.Since)) && d.Before(r.From)
}

func (o Options) tolerance() decimal.Decimal {
	if o.Tolerance.IsPositive() {
		return o.Tolerance
	}
	return shared.DefaultTolerance
}

// Movement is the activity of one leaf over the aggregated range.
type Movement struct {
	Opening decimal.Decimal `json:"opening"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
}

// Closing mirrors Opening + Debit - Credit.
func (m Movement) Closing() decimal.Decimal {
	return m.Opening.Add(m.Debit).Sub(m.Credit)
}

// Result is the outcome of one aggregation.
type Result struct {
	Range    shared.DateRange
	Leaves   map[int64]Movement
	Balances map[int64]decimal.Decimal
	Rejected []*shared.MalformedTransactionError
}

// Balance returns the closing balance of any account; unknown ids are zero.
func (r Result) Balance(id int64) decimal.Decimal {
	return r.Balances[id]
}

// Err returns a ReportError naming every rejected transaction, or nil.
func (r Result) Err(report string) error {
	if len(r.Rejected) == 0 {
		return nil
	}
	return &shared.ReportError{Report: report, Rejected: r.Rejected}
}

// Aggregate filters txns to period (inclusive), applies the posting rules and
// folds the postings into leaf balances that start from each leaf's opening
// balance in chart. Balances are then rolled up the tree by level. A
// transaction that cannot be posted, or that posts to an unknown or
// aggregation account, is excluded as a whole and listed in Rejected. With
// opts.Since set, earlier movement lands in Opening so closings are positions
// as of the range end. The result does not depend on the order of txns.
func Aggregate(chart *coa.Chart, txns []posting.Transaction, period shared.DateRange, opts Options) (Result, error) {
	leaves := make(map[int64]Movement)
	for id, opening := range chart.Openings() {
		leaves[id] = Movement{Opening: opening}
	}

	var rejected []*shared.MalformedTransactionError
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		within := period.Contains(txn.Head().Date)
		if !within && !opts.earlier(period, txn.Head().Date) {
			continue
		}
		postings, err := postingsOnChart(chart, txn, opts.Controls)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		for _, p := range postings {
			m := leaves[p.AccountID]
			if within {
				m.Debit = m.Debit.Add(p.Debit())
				m.Credit = m.Credit.Add(p.Credit())
			} else {
				m.Opening = m.Opening.Add(p.Debit()).Sub(p.Credit())
			}
			leaves[p.AccountID] = m
		}
	}
	sortRejected(rejected)

	closing := make(map[int64]decimal.Decimal, len(leaves))
	total := decimal.Zero
	for id, m := range leaves {
		c := m.Closing()
		closing[id] = c
		total = total.Add(c)
	}
	result := Result{
		Range:    period,
		Leaves:   leaves,
		Balances: chart.RollUp(closing),
		Rejected: rejected,
	}
	if !shared.WithinTolerance(total, decimal.Zero, opts.tolerance()) {
		return result, &shared.UnbalancedResultError{Check: "sum of leaf balances", Difference: total}
	}
	return result, nil
}

func postingsOnChart(chart *coa.Chart, txn posting.Transaction, controls posting.ControlAccounts) ([]posting.Posting, *shared.MalformedTransactionError) {
	postings, err := posting.PostingsFor(txn, controls)
	if err != nil {
		return nil, asMalformed(txn, err)
	}
	for _, p := range postings {
		if _, err := chart.Leaf(p.AccountID); err != nil {
			m := asMalformed(txn, err)
			m.AccountID = p.AccountID
			return nil, m
		}
	}
	return postings, nil
}

func asMalformed(txn posting.Transaction, err error) *shared.MalformedTransactionError {
	var m *shared.MalformedTransactionError
	if errors.As(err, &m) {
		return m
	}
	h := txn.Head()
	return &shared.MalformedTransactionError{
		TransactionID: h.ID,
		Ref:           h.Ref,
		Kind:          string(txn.Kind()),
		Err:           err,
	}
}

func sortRejected(rejected []*shared.MalformedTransactionError) {
	sort.SliceStable(rejected, func(i, j int) bool {
		if rejected[i].Ref != rejected[j].Ref {
			return rejected[i].Ref < rejected[j].Ref
		}
		return rejected[i].TransactionID.String() < rejected[j].TransactionID.String()
	})
}
