package close

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// StepHook runs before each step; a non-nil error aborts the rollover at that step.
type StepHook func(Step) error

// ComputeOptions tune Compute.
type ComputeOptions struct {
	Tolerance decimal.Decimal
	Strict    bool
	Hook      StepHook
}

// Compute derives the opening state of the period following snap. It never
// mutates snap: every step works on copies, so a failure leaves the caller's
// snapshot exactly as it was.
//
//  1. aggregate the whole expiring period
//  2. carry asset, liability and equity leaves and partner balances forward
//  3. reset revenue and expense leaves to zero
//  4. post net income into retained earnings as one opening adjustment
//  5. open each item at its prior closing quantity
func Compute(snap accounting.Snapshot, opts ComputeOptions) (Outcome, error) {
	if opts.Tolerance.IsZero() {
		opts.Tolerance = shared.DefaultTolerance
	}
	run := func(step Step, fn func() error) error {
		if opts.Hook != nil {
			if err := opts.Hook(step); err != nil {
				return &FailureError{Step: step, Cause: err}
			}
		}
		if err := fn(); err != nil {
			return &FailureError{Step: step, Cause: err}
		}
		return nil
	}
	if snap.Chart == nil {
		return Outcome{}, &FailureError{Step: StepAggregate, Cause: fmt.Errorf("close: snapshot has no chart")}
	}

	var (
		res      ledger.Result
		accounts = snap.Chart.Accounts()
		closing  = make(map[int64]decimal.Decimal)
		income   = decimal.Zero
		items    []ledger.Item
		partners []ledger.Partner
	)

	steps := []struct {
		step Step
		fn   func() error
	}{
		{StepAggregate, func() error {
			var err error
			res, err = ledger.Aggregate(snap.Chart, snap.Transactions, snap.Period.Range(), ledger.Options{Controls: snap.Controls, Tolerance: opts.Tolerance})
			if err != nil {
				return err
			}
			if opts.Strict {
				return res.Err("rollover")
			}
			return nil
		}},
		{StepCarryForward, func() error {
			for i := range accounts {
				if !accounts[i].IsLeaf() {
					continue
				}
				c := res.Leaves[accounts[i].ID].Closing()
				closing[accounts[i].ID] = c
				if accounts[i].Type.Permanent() {
					accounts[i].Balance = c
				}
			}
			lines, _ := ledger.Journalize(snap.Chart, snap.Transactions, snap.Period.Range(), snap.Controls)
			balances := ledger.PartnerBalances(snap.Partners, lines, snap.Controls)
			partners = make([]ledger.Partner, len(snap.Partners))
			for i, p := range snap.Partners {
				p.Opening = balances[p.ID]
				p.Balance = p.Opening
				partners[i] = p
			}
			return nil
		}},
		{StepZeroTemporary, func() error {
			for i := range accounts {
				if accounts[i].IsLeaf() && !accounts[i].Type.Permanent() {
					income = income.Sub(closing[accounts[i].ID])
					accounts[i].Balance = decimal.Zero
				}
			}
			return nil
		}},
		{StepRetainedEarnings, func() error {
			idx := -1
			for i := range accounts {
				if accounts[i].ID == snap.Controls.RetainedEarnings {
					idx = i
					break
				}
			}
			if idx < 0 || !accounts[idx].IsLeaf() || accounts[idx].Type != coa.AccountTypeEquity {
				return fmt.Errorf("%w: retained earnings %d", shared.ErrMappingNotFound, snap.Controls.RetainedEarnings)
			}
			accounts[idx].Balance = accounts[idx].Balance.Sub(income)
			total := decimal.Zero
			for _, acc := range accounts {
				if acc.IsLeaf() {
					total = total.Add(acc.Balance)
				}
			}
			if !shared.WithinTolerance(total, decimal.Zero, opts.Tolerance) {
				return &shared.UnbalancedResultError{Check: "opening balances", Difference: total}
			}
			return nil
		}},
		{StepItems, func() error {
			quantities := ledger.ItemQuantities(snap.Items, snap.Transactions, snap.Period.Range())
			items = make([]ledger.Item, len(snap.Items))
			for i, it := range snap.Items {
				it.Quantity = quantities[it.ID]
				items[i] = it
			}
			return nil
		}},
	}
	for _, s := range steps {
		if err := run(s.step, s.fn); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Accounts: accounts, Items: items, Partners: partners, Closing: closing, NetIncome: income}, nil
}
