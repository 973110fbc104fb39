package close

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// Store persists rollover runs and the opening state they produce.
type Store interface {
	LoadSnapshot(ctx context.Context, orgID int64, periodCode string) (accounting.Snapshot, error)
	HasCompletedRun(ctx context.Context, fromPeriodID int64) (bool, error)
	StartRun(ctx context.Context, run Run) error
	FailRun(ctx context.Context, run Run) error
	// SaveOpening writes the new period, its openings and item quantities,
	// closes the expiring period and completes run, all in one transaction.
	SaveOpening(ctx context.Context, run Run, from accounting.Period, target Target, outcome Outcome) (accounting.Period, error)
	LatestRun(ctx context.Context, orgID int64) (Run, error)
}

// AuditPort records rollover events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops derived report caches of an organization.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID int64) error
}

// Options tune the rollover service.
type Options struct {
	Tolerance decimal.Decimal
	Strict    bool
}

// Result describes a completed rollover.
type Result struct {
	Run     Run               `json:"run"`
	Period  accounting.Period `json:"period"`
	Outcome Outcome           `json:"outcome"`
}

// Status is the externally visible rollover state of an organization.
type Status struct {
	State   State `json:"state"`
	LastRun *Run  `json:"last_run,omitempty"`
}

// ErrRunNotFound indicates no rollover has been recorded for the organization.
var ErrRunNotFound = errors.New("close: run not found")

// Service orchestrates fiscal rollovers.
type Service struct {
	store       Store
	machine     *Machine
	locker      *Locker
	audit       AuditPort
	invalidator Invalidator
	opts        Options
	hook        StepHook
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service instance. audit and invalidator may be nil.
func NewService(store Store, locker *Locker, audit AuditPort, invalidator Invalidator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		machine:     NewMachine(),
		locker:      locker,
		audit:       audit,
		invalidator: invalidator,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.machine.now = now
	}
}

// WithStepHook installs a hook run before each computation step.
func (s *Service) WithStepHook(hook StepHook) {
	s.hook = hook
}

// UnderMaintenance reports whether orgID is being rolled over by this or any process.
func (s *Service) UnderMaintenance(ctx context.Context, orgID int64) (bool, error) {
	if s.machine.Processing(orgID) {
		return true, nil
	}
	return s.locker.UnderMaintenance(ctx, orgID)
}

// Status returns the in-process state and the last persisted run.
func (s *Service) Status(ctx context.Context, orgID int64) (Status, error) {
	st := Status{State: s.machine.State(orgID)}
	run, err := s.store.LatestRun(ctx, orgID)
	switch {
	case errors.Is(err, ErrRunNotFound):
	case err != nil:
		return Status{}, err
	default:
		st.LastRun = &run
	}
	return st, nil
}

// Rollover closes the organization's active period and opens req.Target with
// carried balances. Preconditions are rejected without side effects. Any
// failure after the rollover starts is returned as *FailureError, the prior
// period is left as it was, and the organization returns to READY.
func (s *Service) Rollover(ctx context.Context, req Request) (Result, error) {
	snap, err := s.admit(ctx, req)
	if err != nil {
		return Result{}, err
	}

	run := Run{
		ID:             uuid.New(),
		OrganizationID: req.OrganizationID,
		FromPeriodID:   snap.Period.ID,
		Status:         StatusProcessing,
		ActorID:        req.ActorID,
		StartedAt:      s.now(),
	}
	if err := s.machine.Begin(req.OrganizationID, run.ID); err != nil {
		return Result{}, err
	}
	lease, err := s.locker.Acquire(ctx, req.OrganizationID)
	if err != nil {
		s.machine.Abort(req.OrganizationID, run.ID)
		return Result{}, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("release rollover lock", slog.Int64("org_id", req.OrganizationID), slog.Any("error", err))
		}
	}()

	// Reload under the lock so entries recorded since the first read are included.
	snap, err = s.store.LoadSnapshot(ctx, req.OrganizationID, snap.Period.Code)
	if err != nil {
		s.machine.Abort(req.OrganizationID, run.ID)
		return Result{}, err
	}
	if err := s.store.StartRun(ctx, run); err != nil {
		s.machine.Abort(req.OrganizationID, run.ID)
		return Result{}, err
	}
	s.logger.Info("rollover started",
		slog.Int64("org_id", req.OrganizationID),
		slog.String("period", snap.Period.Code),
		slog.String("target", req.Target.Code),
		slog.String("run_id", run.ID.String()))

	outcome, err := Compute(snap, ComputeOptions{Tolerance: s.opts.Tolerance, Strict: s.opts.Strict, Hook: s.hook})
	if err != nil {
		return Result{}, s.fail(ctx, run, err)
	}
	run.NetIncome = outcome.NetIncome

	period, err := s.store.SaveOpening(ctx, run, snap.Period, req.Target, outcome)
	if err != nil {
		if errors.Is(err, ErrPeriodAlreadyRolled) {
			s.machine.Abort(req.OrganizationID, run.ID)
			return Result{}, err
		}
		return Result{}, s.fail(ctx, run, &FailureError{Step: StepPersist, Cause: err})
	}
	finished := s.now()
	run.Status = StatusComplete
	run.ToPeriodID = period.ID
	run.FinishedAt = &finished
	s.machine.Complete(req.OrganizationID, run.ID)

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, req.OrganizationID); err != nil {
			s.logger.Warn("invalidate report cache", slog.Int64("org_id", req.OrganizationID), slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  req.ActorID,
			Action:   "gl.rollover",
			Entity:   "gl_period",
			EntityID: snap.Period.Code,
			Meta: map[string]any{
				"run_id":     run.ID.String(),
				"target":     req.Target.Code,
				"net_income": outcome.NetIncome.StringFixed(2),
			},
			At: finished,
		})
	}
	s.logger.Info("rollover complete",
		slog.Int64("org_id", req.OrganizationID),
		slog.String("period", snap.Period.Code),
		slog.String("target", period.Code),
		slog.String("net_income", outcome.NetIncome.StringFixed(2)))
	return Result{Run: run, Period: period, Outcome: outcome}, nil
}

// CheckPreconditions reports whether req could start now, without side
// effects. It returns the period the rollover would close.
func (s *Service) CheckPreconditions(ctx context.Context, req Request) (accounting.Period, error) {
	snap, err := s.admit(ctx, req)
	if err != nil {
		return accounting.Period{}, err
	}
	return snap.Period, nil
}

func (s *Service) admit(ctx context.Context, req Request) (accounting.Snapshot, error) {
	if !req.Elevated {
		return accounting.Snapshot{}, ErrRolloverForbidden
	}
	if req.ActorID <= 0 {
		return accounting.Snapshot{}, fmt.Errorf("%w: actor required", ErrRolloverForbidden)
	}
	snap, err := s.store.LoadSnapshot(ctx, req.OrganizationID, req.PeriodCode)
	if err != nil {
		return accounting.Snapshot{}, err
	}
	if err := s.checkPreconditions(ctx, snap.Period, req.Target); err != nil {
		return accounting.Snapshot{}, err
	}
	return snap, nil
}

// Preview runs the computation without persisting anything.
func (s *Service) Preview(ctx context.Context, orgID int64, periodCode string) (Outcome, error) {
	snap, err := s.store.LoadSnapshot(ctx, orgID, periodCode)
	if err != nil {
		return Outcome{}, err
	}
	return Compute(snap, ComputeOptions{Tolerance: s.opts.Tolerance, Strict: s.opts.Strict})
}

func (s *Service) checkPreconditions(ctx context.Context, from accounting.Period, target Target) error {
	if from.Status != accounting.PeriodStatusOpen {
		return fmt.Errorf("%w: %s", ErrPeriodAlreadyRolled, from.Code)
	}
	if !from.Ended(s.now()) {
		return fmt.Errorf("%w: %s ends %s", ErrPeriodNotEnded, from.Code, from.EndDate.Format(acctshared.DateLayout))
	}
	if err := ValidateTarget(from, target); err != nil {
		return err
	}
	if s.machine.Processing(from.OrganizationID) {
		return ErrRolloverInProgress
	}
	done, err := s.store.HasCompletedRun(ctx, from.ID)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: %s", ErrPeriodAlreadyRolled, from.Code)
	}
	return nil
}

// ValidateTarget checks that target is well formed and starts after from ends.
func ValidateTarget(from accounting.Period, target Target) error {
	if err := posting.Validator().Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if target.Code == from.Code {
		return fmt.Errorf("%w: code %s already used", ErrInvalidTarget, target.Code)
	}
	if !acctshared.Day(target.StartDate).After(acctshared.Day(from.EndDate)) {
		return fmt.Errorf("%w: %s starts before %s ends", ErrInvalidTarget, target.Code, from.Code)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, run Run, err error) error {
	var failure *FailureError
	if !errors.As(err, &failure) {
		failure = &FailureError{Step: StepPersist, Cause: err}
	}
	finished := s.now()
	run.Status = StatusFailed
	run.FailedStep = failure.Step
	run.Cause = failure.Cause.Error()
	run.FinishedAt = &finished
	if ferr := s.store.FailRun(context.WithoutCancel(ctx), run); ferr != nil {
		s.logger.Error("record failed rollover", slog.String("run_id", run.ID.String()), slog.Any("error", ferr))
	}
	s.machine.Fail(run.OrganizationID, run.ID, failure)
	s.logger.Error("rollover failed",
		slog.Int64("org_id", run.OrganizationID),
		slog.String("run_id", run.ID.String()),
		slog.Int("step", int(failure.Step)),
		slog.Any("error", failure.Cause))
	return failure
}
