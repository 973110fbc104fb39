package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// IntegrityChecker runs the ledger closure check for one organization.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, orgID int64, periodCode string) (accounting.IntegrityReport, error)
}

// OrganizationLister enumerates organizations with an open period.
type OrganizationLister interface {
	ListOpenOrganizations(ctx context.Context) ([]int64, error)
}

// Anomaly kinds reported by the integrity check.
const (
	AnomalyTrialBalance = "trial_balance"
	AnomalyRejected     = "rejected_transaction"
	AnomalyPartnerDrift = "partner_drift"
)

// IntegrityJob checks every open period nightly and counts its findings.
type IntegrityJob struct {
	Checker IntegrityChecker
	Orgs    OrganizationLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob constructs the integrity handler.
func NewIntegrityJob(checker IntegrityChecker, orgs OrganizationLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Checker: checker, Orgs: orgs, Logger: logger, Metrics: metrics}
}

// Handle executes the check.
func (j *IntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Checker == nil {
		return errors.New("gl integrity: checker not configured")
	}
	var payload ScopePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run checks each organization of scope and returns the unhealthy reports.
// A failure on one organization does not stop the others.
func (j *IntegrityJob) Run(ctx context.Context, scope ScopePayload) ([]accounting.IntegrityReport, error) {
	tracker := j.metrics().Track(TaskGLIntegrity)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	orgIDs, err := resolveOrganizations(ctx, j.Orgs, scope)
	if err != nil {
		resultErr = err
		return nil, err
	}
	start := time.Now()
	var (
		findings []accounting.IntegrityReport
		errs     []error
	)
	for _, orgID := range orgIDs {
		report, err := j.Checker.CheckIntegrity(ctx, orgID, scope.PeriodCode)
		if err != nil {
			if errors.Is(err, acctshared.ErrMaintenance) {
				j.log().Info("skip organization under maintenance", slog.Int64("org_id", orgID))
				continue
			}
			j.log().Error("integrity check", slog.Int64("org_id", orgID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("org %d: %w", orgID, err))
			continue
		}
		if report.Healthy() {
			continue
		}
		findings = append(findings, report)
		if !report.TotalDebit.Equal(report.TotalCredit) {
			j.metrics().AddAnomalies(AnomalyTrialBalance, orgID, 1)
		}
		j.metrics().AddAnomalies(AnomalyRejected, orgID, len(report.Rejected))
		j.metrics().AddAnomalies(AnomalyPartnerDrift, orgID, len(report.DriftedPartners))
		j.log().Warn("ledger anomaly",
			slog.Int64("org_id", orgID),
			slog.String("period", report.PeriodCode),
			slog.String("total_debit", report.TotalDebit.StringFixed(2)),
			slog.String("total_credit", report.TotalCredit.StringFixed(2)),
			slog.Int("rejected", len(report.Rejected)),
			slog.Int("drifted_partners", len(report.DriftedPartners)))
	}
	j.log().Info("integrity check complete",
		slog.Int("organizations", len(orgIDs)),
		slog.Int("anomalous", len(findings)),
		slog.Duration("duration", time.Since(start)))
	resultErr = errors.Join(errs...)
	return findings, resultErr
}

func resolveOrganizations(ctx context.Context, lister OrganizationLister, scope ScopePayload) ([]int64, error) {
	if len(scope.OrganizationIDs) > 0 {
		return scope.OrganizationIDs, nil
	}
	if lister == nil {
		return nil, errors.New("organization lister not configured")
	}
	return lister.ListOpenOrganizations(ctx)
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}
