package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting"
	acctshared "github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// PartnerRefresher re-derives the cached partner balances of a period.
type PartnerRefresher interface {
	RefreshPartners(ctx context.Context, q accounting.Query) ([]int64, error)
}

// PartnerRefreshJob brings partner balance caches back in line with the ledger.
type PartnerRefreshJob struct {
	Refresher PartnerRefresher
	Orgs      OrganizationLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewPartnerRefreshJob constructs the refresh handler.
func NewPartnerRefreshJob(refresher PartnerRefresher, orgs OrganizationLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *PartnerRefreshJob {
	return &PartnerRefreshJob{Refresher: refresher, Orgs: orgs, Logger: logger, Metrics: metrics}
}

// Handle executes the refresh.
func (j *PartnerRefreshJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Refresher == nil {
		return errors.New("partner refresh: refresher not configured")
	}
	var payload ScopePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskPartnerRefresh)
	defer func() { err = tracker.End(err) }()

	orgIDs, err := resolveOrganizations(ctx, j.Orgs, payload)
	if err != nil {
		return err
	}
	var errs []error
	for _, orgID := range orgIDs {
		drifted, err := j.Refresher.RefreshPartners(ctx, accounting.Query{OrganizationID: orgID, PeriodCode: payload.PeriodCode})
		switch {
		case errors.Is(err, acctshared.ErrMaintenance):
			continue
		case err != nil:
			j.log().Error("refresh partners", slog.Int64("org_id", orgID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("org %d: %w", orgID, err))
		case len(drifted) > 0:
			j.log().Info("partner balances corrected", slog.Int64("org_id", orgID), slog.Any("partners", drifted))
		}
	}
	return errors.Join(errs...)
}

func (j *PartnerRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PartnerRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPartnerRefresh))
	}
	return slog.Default().With(slog.String("job", TaskPartnerRefresh))
}
