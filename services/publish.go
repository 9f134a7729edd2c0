package services

import (
	"context"
	"time"

	"affiliate-system/events"

	"go.uber.org/zap"
)

const defaultPublishTimeout = 5 * time.Second

// publish ships evt after the owning transaction committed.
// Failures are logged only; committed state stands. The caller waits at
// most timeout, even if the publisher ignores ctx. Such a publisher keeps
// its goroutine running past the timeout; KafkaPublisher honours ctx.
func publish(ctx context.Context, p events.Publisher, timeout time.Duration, evt events.Event) {
	if p == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Publish(ctx, evt) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		zap.L().Warn("failed to publish event",
			zap.String("type", string(evt.Type)),
			zap.String("key", evt.Key),
			zap.Duration("timeout", timeout),
			zap.Error(err))
	}
}
