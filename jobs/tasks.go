package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/close"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

const (
	// QueueDefault carries scheduled maintenance tasks.
	QueueDefault = "default"
	// QueueCritical carries rollovers.
	QueueCritical = "critical"

	// TaskGLRollover closes a period and opens the next one.
	TaskGLRollover = "gl:rollover"
	// TaskGLIntegrity checks trial balance closure of every open period.
	TaskGLIntegrity = "gl:integrity"
	// TaskPartnerRefresh re-derives cached partner balances.
	TaskPartnerRefresh = "gl:partner_refresh"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "gl:idempotency_cleanup"
)

const rolloverTimeout = 30 * time.Minute

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RolloverPayload is the queued form of a rollover request.
type RolloverPayload struct {
	Request close.Request `json:"request"`
}

// ScopePayload selects the organizations and period a maintenance task runs on.
// No organizations means every organization with an open period.
type ScopePayload struct {
	OrganizationIDs []int64 `json:"organization_ids,omitempty"`
	PeriodCode      string  `json:"period_code,omitempty"`
}

// CleanupPayload bounds the age of idempotency keys to keep.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewRolloverTask builds a rollover task. Rollovers are never retried
// automatically; a failed run is inspected and resubmitted by an operator.
func NewRolloverTask(req close.Request) (*asynq.Task, error) {
	body, err := json.Marshal(RolloverPayload{Request: req})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLRollover, body,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(0),
		asynq.Timeout(rolloverTimeout),
	), nil
}

// NewIntegrityTask builds an integrity check task.
func NewIntegrityTask(scope ScopePayload) (*asynq.Task, error) {
	return newScopeTask(TaskGLIntegrity, scope)
}

// NewPartnerRefreshTask builds a partner balance refresh task.
func NewPartnerRefreshTask(scope ScopePayload) (*asynq.Task, error) {
	return newScopeTask(TaskPartnerRefresh, scope)
}

func newScopeTask(kind string, scope ScopePayload) (*asynq.Task, error) {
	body, err := json.Marshal(scope)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
