package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"ms-clinic-queue/internal/models"
)

// RetryOnConflict reruns fn while it returns ErrConcurrentConflict, up to
// attempts calls in total, waiting a short jittered backoff between calls.
// onConflict, if set, is told about each lost attempt that will be retried.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error, onConflict func(attempt int)) error {
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, models.ErrConcurrentConflict) || attempt >= attempts {
			return err
		}
		if onConflict != nil {
			onConflict(attempt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", models.ErrConcurrentConflict, ctx.Err())
		case <-time.After(ConflictBackoff(attempt)):
		}
	}
}

// ConflictBackoff is the wait before retry number attempt: a few
// milliseconds, growing with attempt and jittered so losers spread out.
func ConflictBackoff(attempt int) time.Duration {
	return time.Duration(1+rand.IntN(5*attempt)) * time.Millisecond
}
