package accounting

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Period represents a fiscal period window of one organization. Revision
// increases with every transaction recorded in the period.
type Period struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	Code           string       `json:"code"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	Status         PeriodStatus `json:"status"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	Revision       int64        `json:"revision,omitempty"`
}

// Range returns the inclusive calendar window of the period.
func (p Period) Range() shared.DateRange {
	return shared.DateRange{From: shared.Day(p.StartDate), To: shared.Day(p.EndDate)}
}

// Ended reports whether now falls after the last day of the period.
func (p Period) Ended(now time.Time) bool {
	return shared.Day(now).After(shared.Day(p.EndDate))
}

// Snapshot is the immutable input of every report for one organization and
// period: the chart with leaf openings, the control accounts and every
// transaction recorded in the period.
type Snapshot struct {
	Period       Period
	Chart        *coa.Chart
	Controls     posting.ControlAccounts
	Transactions []posting.Transaction
	Partners     []ledger.Partner
	Items        []ledger.Item
}

var (
	// ErrPeriodNotFound indicates no period matches the request.
	ErrPeriodNotFound = errors.New("accounting: period not found")
	// ErrPeriodClosed indicates a write against a closed period.
	ErrPeriodClosed = errors.New("accounting: period closed")
	// ErrDateOutOfRange indicates a transaction dated outside the active period.
	ErrDateOutOfRange = errors.New("accounting: date outside period")
	// ErrPeriodChanged indicates the period was written after it was read.
	ErrPeriodChanged = errors.New("accounting: period changed concurrently")
	// ErrDuplicateTransaction indicates a transaction id already recorded.
	ErrDuplicateTransaction = errors.New("accounting: transaction already recorded")
)
