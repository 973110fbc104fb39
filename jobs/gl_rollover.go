package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-gl/internal/close"
	jobmetrics "github.com/odyssey-erp/odyssey-gl/internal/jobs"
)

// RolloverService runs fiscal rollovers.
type RolloverService interface {
	Rollover(ctx context.Context, req close.Request) (close.Result, error)
}

// RolloverJob executes queued rollovers.
type RolloverJob struct {
	Service RolloverService
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRolloverJob constructs the rollover handler.
func NewRolloverJob(service RolloverService, logger *slog.Logger, metrics *jobmetrics.Metrics) *RolloverJob {
	return &RolloverJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle runs one rollover. Every error is final: the task is never retried.
func (j *RolloverJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return fmt.Errorf("rollover: service not configured: %w", asynq.SkipRetry)
	}
	var payload RolloverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("rollover: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	req := payload.Request
	logger := j.log().With(slog.Int64("org_id", req.OrganizationID), slog.String("target", req.Target.Code))

	tracker := j.metrics().Track(TaskGLRollover)
	res, err := j.Service.Rollover(ctx, req)
	if err = tracker.End(err); err != nil {
		var failure *close.FailureError
		switch {
		case errors.As(err, &failure):
			j.metrics().RolloverFailed(int(failure.Step))
			logger.Error("rollover failed", slog.Int("step", int(failure.Step)), slog.Any("error", failure.Cause))
		case errors.Is(err, close.ErrRolloverPrecondition):
			logger.Warn("rollover rejected", slog.Any("error", err))
		default:
			logger.Error("rollover error", slog.Any("error", err))
		}
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	logger.Info("rollover complete",
		slog.String("run_id", res.Run.ID.String()),
		slog.Int64("period_id", res.Period.ID),
		slog.String("net_income", res.Outcome.NetIncome.StringFixed(2)))
	if w := task.ResultWriter(); w != nil {
		if body, err := json.Marshal(res.Run); err == nil {
			_, _ = w.Write(body)
		}
	}
	return nil
}

func (j *RolloverJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RolloverJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLRollover))
	}
	return slog.Default().With(slog.String("job", TaskGLRollover))
}
