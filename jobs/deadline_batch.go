package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-console/internal/calendar"
	jobmetrics "github.com/odyssey-erp/odyssey-console/internal/jobs"
)

// BatchRunner computes and stores a deadline batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, batchID string) (calendar.Batch, error)
}

// DeadlineBatchJob computes batches submitted over HTTP.
type DeadlineBatchJob struct {
	Calendar BatchRunner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewDeadlineBatchJob constructs the job handler.
func NewDeadlineBatchJob(runner BatchRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeadlineBatchJob {
	return &DeadlineBatchJob{Calendar: runner, Logger: logger, Metrics: metrics}
}

// Handle executes the deadline batch job. Expired or unknown batches are not
// retried.
func (j *DeadlineBatchJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Calendar == nil {
		return errors.New("deadline batch: handler not configured")
	}
	var payload DeadlineBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.BatchID == "" {
		return asynq.SkipRetry
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskDeadlineBatch)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskDeadlineBatch).With(slog.String("batch_id", payload.BatchID))
	batch, err := j.Calendar.RunBatch(ctx, payload.BatchID)
	if errors.Is(err, calendar.ErrBatchNotFound) {
		logger.Warn("batch expired or unknown")
		return asynq.SkipRetry
	}
	if err != nil {
		logger.Error("run deadline batch", slog.Any("error", err))
		return err
	}

	failed := 0
	for _, item := range batch.Items {
		if item.Error != "" {
			failed++
		}
	}
	metrics.AddItems(TaskDeadlineBatch, "ok", len(batch.Items)-failed)
	metrics.AddItems(TaskDeadlineBatch, "error", failed)
	logger.Info("completed deadline batch", slog.Int("items", len(batch.Items)), slog.Int("failed", failed))
	return nil
}
