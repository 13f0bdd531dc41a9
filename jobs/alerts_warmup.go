package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// defaultWarmupThresholds are recomputed on every scheduled run so the
// first dashboard request of the morning hits a warm cache.
var defaultWarmupThresholds = []int{5, 10, 20, 50}

// AlertRefresher rebuilds cached low-stock alerts for a threshold set.
type AlertRefresher interface {
	Refresh(ctx context.Context, thresholds []int) error
}

// AlertsWarmupJob pre-computes low-stock alert snapshots.
type AlertsWarmupJob struct {
	Service AlertRefresher
	Logger  *slog.Logger
}

// NewAlertsWarmupJob initialises the warmup handler.
func NewAlertsWarmupJob(service AlertRefresher, logger *slog.Logger) *AlertsWarmupJob {
	return &AlertsWarmupJob{Service: service, Logger: logger}
}

// Handle executes the warmup.
func (j *AlertsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("alerts warmup: handler not configured")
	}
	var payload AlertsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	thresholds := payload.Thresholds
	if len(thresholds) == 0 {
		thresholds = defaultWarmupThresholds
	}
	if err := j.Service.Refresh(ctx, thresholds); err != nil {
		j.Logger.Error("alerts warmup failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("alerts warmup complete", slog.Int("thresholds", len(thresholds)))
	return nil
}
