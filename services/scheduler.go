// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// RetentionJob is one pass of a periodic cleanup.
type RetentionJob interface {
	Run(ctx context.Context) (int, error)
}

// StartRetentionScheduler runs job every interval until the returned
// scheduler is shut down. Overlapping runs are skipped.
func StartRetentionScheduler(ctx context.Context, job RetentionJob, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			n, err := job.Run(ctx)
			if err != nil {
				zap.L().Error("[Scheduler] visit retention failed", zap.Int("pruned", n), zap.Error(err))
				return
			}
			zap.L().Debug("[Scheduler] visit retention pass done", zap.Int("pruned", n))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("visit-retention"),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule visit retention: %w", err)
	}

	sched.Start()
	return sched, nil
}
