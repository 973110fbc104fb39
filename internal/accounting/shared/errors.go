package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedTransaction marks a transaction that cannot be posted.
	ErrMalformedTransaction = errors.New("accounting: malformed transaction")
	// ErrUnbalancedResult indicates the ledger self-check failed.
	ErrUnbalancedResult = errors.New("accounting: ledger does not balance")
	// ErrUnbalanced indicates voucher debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrUnknownAccount indicates an account id missing from the chart.
	ErrUnknownAccount = errors.New("accounting: unknown account")
	// ErrNotLeafAccount indicates a posting against an aggregation account.
	ErrNotLeafAccount = errors.New("accounting: account does not accept postings")
	// ErrInvalidRange indicates from > to.
	ErrInvalidRange = errors.New("accounting: invalid date range")
	// ErrMappingNotFound indicates a control account mapping is missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrMaintenance indicates the organization is being rolled over.
	ErrMaintenance = errors.New("accounting: organization under maintenance")
	// ErrPartnerNotFound indicates an unknown partner id.
	ErrPartnerNotFound = errors.New("accounting: partner not found")
)

// MalformedTransactionError identifies the transaction excluded from aggregation.
type MalformedTransactionError struct {
	TransactionID uuid.UUID
	Ref           string
	Kind          string
	AccountID     int64
	Reason        string
	Err           error
}

func (e *MalformedTransactionError) Error() string {
	var b strings.Builder
	b.WriteString("accounting: malformed transaction")
	if e.Ref != "" {
		fmt.Fprintf(&b, " %s", e.Ref)
	}
	if e.TransactionID != uuid.Nil {
		fmt.Fprintf(&b, " (%s)", e.TransactionID)
	}
	if e.Kind != "" {
		fmt.Fprintf(&b, " kind=%s", e.Kind)
	}
	if e.AccountID != 0 {
		fmt.Fprintf(&b, " account=%d", e.AccountID)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is reports ErrMalformedTransaction as the category.
func (e *MalformedTransactionError) Is(target error) bool {
	return target == ErrMalformedTransaction
}

func (e *MalformedTransactionError) Unwrap() error {
	return e.Err
}

// UnbalancedResultError reports the residual left by the self-check.
type UnbalancedResultError struct {
	Check      string
	Difference decimal.Decimal
}

func (e *UnbalancedResultError) Error() string {
	return fmt.Sprintf("accounting: ledger does not balance (%s off by %s)", e.Check, e.Difference.StringFixed(2))
}

// Is reports ErrUnbalancedResult as the category.
func (e *UnbalancedResultError) Is(target error) bool {
	return target == ErrUnbalancedResult
}

// ReportError is returned when a report cannot be computed authoritatively.
type ReportError struct {
	Report   string
	Rejected []*MalformedTransactionError
}

func (e *ReportError) Error() string {
	refs := make([]string, 0, len(e.Rejected))
	for _, r := range e.Rejected {
		switch {
		case r.Ref != "":
			refs = append(refs, r.Ref)
		default:
			refs = append(refs, r.TransactionID.String())
		}
	}
	return fmt.Sprintf("accounting: unable to compute %s: %d malformed transaction(s) [%s]", e.Report, len(e.Rejected), strings.Join(refs, ", "))
}

// Is reports ErrMalformedTransaction as the category.
func (e *ReportError) Is(target error) bool {
	return target == ErrMalformedTransaction
}

func (e *ReportError) Unwrap() []error {
	out := make([]error, 0, len(e.Rejected))
	for _, r := range e.Rejected {
		out = append(out, r)
	}
	return out
}
