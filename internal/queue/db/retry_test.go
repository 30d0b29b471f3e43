package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"

	"github.com/stretchr/testify/assert"
)

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()

	calls := 0
	var retried []int
	err := db.RetryOnConflict(ctx, 5, func() error {
		calls++
		if calls < 3 {
			return models.ErrConcurrentConflict
		}
		return nil
	}, func(attempt int) { retried = append(retried, attempt) })
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)

	calls = 0
	err = db.RetryOnConflict(ctx, 3, func() error {
		calls++
		return models.ErrConcurrentConflict
	}, nil)
	assert.ErrorIs(t, err, models.ErrConcurrentConflict)
	assert.Equal(t, 3, calls)

	calls = 0
	other := errors.New("boom")
	err = db.RetryOnConflict(ctx, 3, func() error {
		calls++
		return other
	}, nil)
	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls, "only conflicts are retried")
}

func TestRetryOnConflictStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.RetryOnConflict(ctx, 10, func() error { return models.ErrConcurrentConflict }, nil)
	assert.ErrorIs(t, err, models.ErrConcurrentConflict)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConflictBackoffIsBounded(t *testing.T) {
	for attempt := 1; attempt <= 5; attempt++ {
		for i := 0; i < 50; i++ {
			d := db.ConflictBackoff(attempt)
			assert.GreaterOrEqual(t, d, time.Millisecond)
			assert.LessOrEqual(t, d, time.Duration(5*attempt)*time.Millisecond)
		}
	}
}
