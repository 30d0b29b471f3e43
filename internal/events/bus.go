package events

import (
	"context"
	"errors"

	"ms-clinic-queue/internal/models"
)

var ErrBusClosed = errors.New("event bus closed")

// Bus moves committed change events between processes. Delivery is
// at-least-once and unordered across publishers; the Hub restores per-day
// order from the revisions.
type Bus interface {
	Publish(ctx context.Context, events ...models.ChangeEvent) error
	// Run hands every received event to handle until ctx is done.
	Run(ctx context.Context, handle func(models.ChangeEvent)) error
	Close() error
}

// LocalBus connects publishers and the hub inside one process.
type LocalBus struct {
	ch   chan models.ChangeEvent
	done chan struct{}
}

func NewLocalBus(size int) *LocalBus {
	if size < 1 {
		size = 1024
	}
	return &LocalBus{
		ch:   make(chan models.ChangeEvent, size),
		done: make(chan struct{}),
	}
}

func (b *LocalBus) Publish(ctx context.Context, events ...models.ChangeEvent) error {
	for _, e := range events {
		select {
		case b.ch <- e:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrBusClosed
		}
	}
	return nil
}

func (b *LocalBus) Run(ctx context.Context, handle func(models.ChangeEvent)) error {
	for {
		select {
		case e := <-b.ch:
			handle(e)
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		}
	}
}

func (b *LocalBus) Close() error {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
	return nil
}
