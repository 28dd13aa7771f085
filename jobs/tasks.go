package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsWarm rebuilds the role snapshot cache.
	TaskPermissionsWarm = "rbac:permissions:warm"
	// TaskDeadlineBatch computes a stored batch of deadline requests.
	TaskDeadlineBatch = "deadlines:batch"
)

// PermissionsWarmPayload describes why a warmup was requested.
type PermissionsWarmPayload struct {
	Reason string `json:"reason"`
}

// DeadlineBatchPayload identifies the batch to compute.
type DeadlineBatchPayload struct {
	BatchID string `json:"batch_id"`
}

// NewPermissionsWarmTask constructs an Asynq task for the role cache warmup.
func NewPermissionsWarmTask(reason string) (*asynq.Task, error) {
	if reason == "" {
		reason = "scheduled"
	}
	body, err := json.Marshal(PermissionsWarmPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsWarm, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewDeadlineBatchTask constructs an Asynq task computing one batch.
func NewDeadlineBatchTask(batchID string) (*asynq.Task, error) {
	if batchID == "" {
		return nil, fmt.Errorf("jobs: batch id required")
	}
	body, err := json.Marshal(DeadlineBatchPayload{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeadlineBatch, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewTask builds a task by type name with default payload values. It backs
// manual triggers from the operator CLI.
func NewTask(taskType string, arg string) (*asynq.Task, error) {
	switch taskType {
	case TaskPermissionsWarm:
		if arg == "" {
			arg = "manual"
		}
		return NewPermissionsWarmTask(arg)
	case TaskDeadlineBatch:
		return NewDeadlineBatchTask(arg)
	default:
		return nil, fmt.Errorf("jobs: unknown task type %q", taskType)
	}
}
