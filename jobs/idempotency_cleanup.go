package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskIdempotencyCleanup prunes stale submit idempotency keys.
const TaskIdempotencyCleanup = "custody:idempotency_cleanup"

// KeyPruner deletes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob removes idempotency keys past their retention.
type CleanupJob struct {
	Store     KeyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   JobRecorder
}

// NewCleanupJob initialises the cleanup handler. Retention defaults to 30 days.
func NewCleanupJob(store KeyPruner, retention time.Duration, logger *slog.Logger, metrics JobRecorder) *CleanupJob {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// Handle runs one cleanup pass.
func (j *CleanupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	defer func() {
		if j.Metrics != nil {
			j.Metrics.JobResult(TaskIdempotencyCleanup, err)
		}
	}()
	removed, err := j.Store.Cleanup(ctx, j.Retention)
	if err != nil {
		return fmt.Errorf("idempotency cleanup: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned",
			slog.String("job", TaskIdempotencyCleanup),
			slog.Int64("removed", removed),
			slog.Duration("retention", j.Retention))
	}
	return nil
}
