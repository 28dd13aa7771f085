package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-console/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PermissionWarmer rebuilds cached role data and reports effective
// permission counts per role.
type PermissionWarmer interface {
	Warm(ctx context.Context) (map[int64]int, error)
}

// PermissionsWarmJob refreshes the role snapshot so request paths never pay
// for a cold resolve.
type PermissionsWarmJob struct {
	Roles   PermissionWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPermissionsWarmJob wires dependencies for the warmup handler.
func NewPermissionsWarmJob(roles PermissionWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsWarmJob {
	return &PermissionsWarmJob{Roles: roles, Logger: logger, Metrics: metrics}
}

// Handle processes permission warmup tasks.
func (j *PermissionsWarmJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Roles == nil {
		return errors.New("permissions warm: handler not configured")
	}
	var payload PermissionsWarmPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskPermissionsWarm)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskPermissionsWarm).With(slog.String("reason", payload.Reason))
	started := time.Now()
	counts, err := j.Roles.Warm(ctx)
	if err != nil {
		logger.Error("warm role snapshot", slog.Any("error", err))
		return err
	}
	for id, n := range counts {
		logger.Debug("role permissions", slog.Int64("role_id", id), slog.Int("effective", n))
	}
	metricsOrDefault(j.Metrics).AddItems(TaskPermissionsWarm, "ok", len(counts))
	logger.Info("completed permissions warmup", slog.Int("roles", len(counts)), slog.Duration("duration", time.Since(started)))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
