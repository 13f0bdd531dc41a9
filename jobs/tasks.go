package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAlertsWarmup pre-computes low-stock alerts for common thresholds.
	TaskAlertsWarmup = "alerts:warmup"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// AlertsWarmupPayload lists the thresholds to pre-compute.
type AlertsWarmupPayload struct {
	Thresholds []int `json:"thresholds"`
}

// NewAlertsWarmupTask constructs an alerts warmup task.
func NewAlertsWarmupTask(payload AlertsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertsWarmup, data), nil
}

// IdempotencyCleanupPayload configures the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan string `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
