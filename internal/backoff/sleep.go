package backoff

import (
	"context"
	"time"
)

// SleepWithContext sleeps for the given duration, returning early with
// ctx.Err() if the context is done first.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
