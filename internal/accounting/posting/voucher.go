package posting

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator with decimal support registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
			d, ok := v.Interface().(decimal.Decimal)
			if !ok {
				return nil
			}
			f, _ := d.Float64()
			return f
		}, decimal.Decimal{})
	})
	return validate
}

// ValidateVoucher performs entry-time checks on a single transaction: required
// fields, non-negative money, and for journal vouchers the double-entry rules.
func ValidateVoucher(txn Transaction) error {
	if txn == nil {
		return &shared.MalformedTransactionError{Reason: "nil transaction"}
	}
	if txn.Head().ID == uuid.Nil {
		return malformed(txn, 0, "id required", nil)
	}
	if err := Validator().Struct(txn); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return malformed(txn, 0, "", err)
		}
		for _, fe := range fieldErrs {
			if fe.StructField() == "Entries" && (fe.Tag() == "min" || fe.Tag() == "required") {
				return malformed(txn, 0, "", shared.ErrTooFewLines)
			}
		}
		return malformed(txn, 0, describe(fieldErrs), nil)
	}
	if jv, ok := txn.(JournalVoucher); ok {
		if err := checkEntries(jv.Entries); err != nil {
			return malformed(txn, 0, "", err)
		}
	}
	return nil
}

// Validate checks that txn is well formed and that every posting it produces
// lands on a leaf of chart.
func Validate(txn Transaction, chart *coa.Chart, controls ControlAccounts) ([]Posting, error) {
	if err := ValidateVoucher(txn); err != nil {
		return nil, err
	}
	postings, err := PostingsFor(txn, controls)
	if err != nil {
		return nil, err
	}
	for _, p := range postings {
		if _, err := chart.Leaf(p.AccountID); err != nil {
			return nil, malformed(txn, p.AccountID, "", err)
		}
	}
	return postings, nil
}

func checkEntries(entries []JournalEntry) error {
	if len(entries) < 2 {
		return shared.ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, e := range entries {
		if e.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if e.Debit.IsPositive() == e.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d must be either debit or credit", idx)
		}
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", shared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
