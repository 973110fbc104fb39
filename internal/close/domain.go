package close

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/coa"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/ledger"
)

// RolloverStatus captures the lifecycle of a fiscal rollover.
type RolloverStatus string

const (
	StatusReady      RolloverStatus = "READY"
	StatusProcessing RolloverStatus = "PROCESSING"
	StatusComplete   RolloverStatus = "COMPLETE"
	StatusFailed     RolloverStatus = "FAILED"
)

// Step numbers the rollover procedure.
type Step int

const (
	StepAggregate Step = iota + 1
	StepCarryForward
	StepZeroTemporary
	StepRetainedEarnings
	StepItems
	StepPersist
)

func (s Step) String() string {
	switch s {
	case StepAggregate:
		return "aggregate"
	case StepCarryForward:
		return "carry-forward"
	case StepZeroTemporary:
		return "zero-temporary"
	case StepRetainedEarnings:
		return "retained-earnings"
	case StepItems:
		return "item-quantities"
	case StepPersist:
		return "persist"
	default:
		return fmt.Sprintf("step-%d", int(s))
	}
}

// Target identifies the period the rollover opens.
type Target struct {
	Code      string    `json:"code" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required,gtefield=StartDate"`
}

// Request asks for the active period of an organization to be rolled into Target.
type Request struct {
	OrganizationID int64  `json:"organization_id"`
	PeriodCode     string `json:"period_code,omitempty"`
	Target         Target `json:"target"`
	ActorID        int64  `json:"actor_id"`
	Elevated       bool   `json:"elevated"`
}

// Outcome is the seeded opening state of the new period.
type Outcome struct {
	Accounts  []coa.Account             `json:"accounts"`
	Items     []ledger.Item             `json:"items"`
	Partners  []ledger.Partner          `json:"partners"`
	Closing   map[int64]decimal.Decimal `json:"closing"`
	NetIncome decimal.Decimal           `json:"net_income"`
}

// Openings returns the leaf openings carried into the new period.
func (o Outcome) Openings() map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, acc := range o.Accounts {
		if acc.IsLeaf() {
			out[acc.ID] = acc.Balance
		}
	}
	return out
}

// PartnerOpenings returns the balance each partner carries into the new period.
func (o Outcome) PartnerOpenings() map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(o.Partners))
	for _, p := range o.Partners {
		out[p.ID] = p.Opening
	}
	return out
}

// ItemQuantities returns the opening quantity per item.
func (o Outcome) ItemQuantities() map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(o.Items))
	for _, it := range o.Items {
		out[it.ID] = it.Quantity
	}
	return out
}

// Run is the persisted record of one rollover attempt.
type Run struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	FromPeriodID   int64           `json:"from_period_id"`
	ToPeriodID     int64           `json:"to_period_id,omitempty"`
	Status         RolloverStatus  `json:"status"`
	FailedStep     Step            `json:"failed_step,omitempty"`
	Cause          string          `json:"cause,omitempty"`
	ActorID        int64           `json:"actor_id"`
	NetIncome      decimal.Decimal `json:"net_income"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

var (
	// ErrRolloverPrecondition groups the reasons a rollover may not start.
	ErrRolloverPrecondition = errors.New("close: rollover precondition failed")
	// ErrPeriodNotEnded indicates the period end date has not passed.
	ErrPeriodNotEnded = fmt.Errorf("%w: period has not ended", ErrRolloverPrecondition)
	// ErrRolloverInProgress indicates another rollover holds the organization.
	ErrRolloverInProgress = fmt.Errorf("%w: rollover already in progress", ErrRolloverPrecondition)
	// ErrRolloverForbidden indicates the caller lacks elevated privilege.
	ErrRolloverForbidden = fmt.Errorf("%w: elevated privilege required", ErrRolloverPrecondition)
	// ErrPeriodAlreadyRolled indicates the period was already rolled over.
	ErrPeriodAlreadyRolled = fmt.Errorf("%w: period already rolled over", ErrRolloverPrecondition)
	// ErrInvalidTarget indicates the target period does not follow the expiring one.
	ErrInvalidTarget = fmt.Errorf("%w: invalid target period", ErrRolloverPrecondition)

	// ErrRolloverFailure marks a rollover that failed partway and was rolled back.
	ErrRolloverFailure = errors.New("close: rollover failed")
)

// FailureError reports the step at which a rollover failed.
type FailureError struct {
	Step  Step
	Cause error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("close: rollover failed at step %d (%s): %v", int(e.Step), e.Step, e.Cause)
}

// Is reports ErrRolloverFailure as the category.
func (e *FailureError) Is(target error) bool {
	return target == ErrRolloverFailure
}

func (e *FailureError) Unwrap() error {
	return e.Cause
}
