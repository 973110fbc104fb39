package close

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
)

// Repository persists rollover runs on top of the general-ledger tables.
type Repository struct {
	pool   *pgxpool.Pool
	ledger *accounting.Repository
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool, ledger *accounting.Repository) *Repository {
	if ledger == nil {
		ledger = accounting.NewRepository(pool)
	}
	return &Repository{pool: pool, ledger: ledger}
}

// LoadSnapshot delegates to the ledger repository.
func (r *Repository) LoadSnapshot(ctx context.Context, orgID int64, periodCode string) (accounting.Snapshot, error) {
	return r.ledger.LoadSnapshot(ctx, orgID, periodCode)
}

// HasCompletedRun reports whether fromPeriodID was already rolled over.
func (r *Repository) HasCompletedRun(ctx context.Context, fromPeriodID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_rollover_runs WHERE from_period_id=$1 AND status='COMPLETE')`, fromPeriodID).Scan(&exists)
	return exists, err
}

// StartRun inserts the PROCESSING record of run.
func (r *Repository) StartRun(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO gl_rollover_runs (id, org_id, from_period_id, status, actor_id, started_at)
VALUES ($1,$2,$3,$4,$5,$6)`, run.ID, run.OrganizationID, run.FromPeriodID, string(run.Status), run.ActorID, run.StartedAt)
	return err
}

// FailRun records the failed step and cause.
func (r *Repository) FailRun(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `UPDATE gl_rollover_runs SET status=$2, failed_step=$3, cause=$4, finished_at=$5 WHERE id=$1`,
		run.ID, string(run.Status), int(run.FailedStep), run.Cause, run.FinishedAt)
	return err
}

// SaveOpening opens target with the computed account, partner and item
// openings and closes from in a single repeatable-read transaction.
func (r *Repository) SaveOpening(ctx context.Context, run Run, from accounting.Period, target Target, outcome Outcome) (accounting.Period, error) {
	var period accounting.Period
	err := r.ledger.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		period, err = accounting.InsertPeriod(ctx, tx, from.OrganizationID, accounting.Period{
			Code:      target.Code,
			StartDate: target.StartDate,
			EndDate:   target.EndDate,
			Status:    accounting.PeriodStatusOpen,
		})
		if err != nil {
			return err
		}
		if err := accounting.InsertOpenings(ctx, tx, period.ID, outcome.Openings()); err != nil {
			return err
		}
		if err := accounting.InsertItemOpenings(ctx, tx, period.ID, outcome.ItemQuantities()); err != nil {
			return err
		}
		if err := accounting.InsertPartnerOpenings(ctx, tx, period.ID, outcome.PartnerOpenings()); err != nil {
			return err
		}
		if err := accounting.UpdatePartnerBalances(ctx, tx, from.OrganizationID, outcome.Partners); err != nil {
			return err
		}
		if err := accounting.ClosePeriod(ctx, tx, from); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE gl_rollover_runs SET status='COMPLETE', to_period_id=$2, net_income=$3, finished_at=NOW() WHERE id=$1`,
			run.ID, period.ID, outcome.NetIncome)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "uq_gl_rollover_complete" {
				return accounting.Period{}, fmt.Errorf("%w: period %d", ErrPeriodAlreadyRolled, from.ID)
			}
			return accounting.Period{}, fmt.Errorf("%w: period code %s exists", ErrInvalidTarget, target.Code)
		}
		if errors.Is(err, accounting.ErrPeriodClosed) {
			return accounting.Period{}, fmt.Errorf("%w: period %d", ErrPeriodAlreadyRolled, from.ID)
		}
		return accounting.Period{}, err
	}
	return period, nil
}

// LatestRun returns the most recent rollover run of orgID.
func (r *Repository) LatestRun(ctx context.Context, orgID int64) (Run, error) {
	var (
		run    Run
		status string
		toID   *int64
		step   *int
		cause  *string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, org_id, from_period_id, to_period_id, status, failed_step, cause, actor_id, COALESCE(net_income, 0), started_at, finished_at
FROM gl_rollover_runs WHERE org_id=$1 ORDER BY started_at DESC LIMIT 1`, orgID).Scan(
		&run.ID, &run.OrganizationID, &run.FromPeriodID, &toID, &status, &step, &cause, &run.ActorID, &run.NetIncome, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	run.Status = RolloverStatus(status)
	if toID != nil {
		run.ToPeriodID = *toID
	}
	if step != nil {
		run.FailedStep = Step(*step)
	}
	if cause != nil {
		run.Cause = *cause
	}
	return run, nil
}
