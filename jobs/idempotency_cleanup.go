package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyCleaner removes idempotency keys older than the retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes consumed idempotency keys. Keys only need
// to outlive retry storms, not live forever.
type IdempotencyCleanupJob struct {
	Store     KeyCleaner
	Logger    *slog.Logger
	Retention time.Duration
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store KeyCleaner, logger *slog.Logger, retention time.Duration) *IdempotencyCleanupJob {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Retention: retention}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := j.Retention
	if payload.OlderThan != "" {
		parsed, err := time.ParseDuration(payload.OlderThan)
		if err != nil {
			return asynq.SkipRetry
		}
		olderThan = parsed
	}
	if err := j.Store.Cleanup(ctx, olderThan); err != nil {
		j.Logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("idempotency cleanup complete", slog.Duration("older_than", olderThan))
	return nil
}
