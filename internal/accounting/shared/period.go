package shared

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar date format.
const DateLayout = "2006-01-02"

// DateRange is an inclusive calendar-day window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// NewDateRange normalises both bounds to UTC midnight.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: Day(from), To: Day(to)}
	if r.From.After(r.To) {
		return DateRange{}, fmt.Errorf("%w: %s after %s", ErrInvalidRange, r.From.Format(DateLayout), r.To.Format(DateLayout))
	}
	return r, nil
}

// ParseDateRange parses YYYY-MM-DD bounds.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
	}
	return NewDateRange(f, t)
}

// MustDateRange panics on invalid input. Intended for tests and fixtures.
func MustDateRange(from, to string) DateRange {
	r, err := ParseDateRange(from, to)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.From) && !d.After(r.To)
}

// IsZero reports whether the range was never set.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FiscalContext carries the active period explicitly into every engine call.
type FiscalContext struct {
	OrganizationID int64     `json:"organization_id"`
	PeriodCode     string    `json:"period_code"`
	Period         DateRange `json:"period"`
	Range          DateRange `json:"range"`
}

// Validate ensures the query range sits inside the active period.
func (c FiscalContext) Validate() error {
	if c.OrganizationID <= 0 {
		return fmt.Errorf("accounting: organization required")
	}
	if c.PeriodCode == "" {
		return fmt.Errorf("accounting: period code required")
	}
	if c.Range.From.After(c.Range.To) || c.Period.From.After(c.Period.To) {
		return ErrInvalidRange
	}
	if !c.Period.IsZero() && (c.Range.From.Before(c.Period.From) || c.Range.To.After(c.Period.To)) {
		return fmt.Errorf("%w: %s outside period %s", ErrInvalidRange, c.Range, c.Period)
	}
	return nil
}
