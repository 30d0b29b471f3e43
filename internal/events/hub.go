package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
)

// SnapshotReader reads the state of a day at one revision.
type SnapshotReader interface {
	Snapshot(ctx context.Context, day models.BusinessDay) (*models.Snapshot, error)
}

type Options struct {
	// Buffer is the per-subscriber channel size and the most out-of-order
	// events held while waiting for a missing revision.
	Buffer int
	// GapTimeout closes a stream whose next revision has not arrived.
	GapTimeout time.Duration
}

// Hub fans change events out to the subscribers of each business day.
// Events come in through the bus, including the ones this process
// published, so every process applies the same path.
type Hub struct {
	bus       Bus
	snapshots SnapshotReader
	logger    *logger.Logger
	opts      Options
	now       func() time.Time

	mu     sync.Mutex
	nextID uint64
	days   map[models.BusinessDay]map[uint64]*subscriber
}

func NewHub(bus Bus, snapshots SnapshotReader, log *logger.Logger, opts Options) *Hub {
	if opts.Buffer < 1 {
		opts.Buffer = 64
	}
	if opts.GapTimeout <= 0 {
		opts.GapTimeout = 5 * time.Second
	}
	return &Hub{
		bus:       bus,
		snapshots: snapshots,
		logger:    log,
		opts:      opts,
		now:       time.Now,
		days:      make(map[models.BusinessDay]map[uint64]*subscriber),
	}
}

// Publish hands committed events to the bus.
func (h *Hub) Publish(ctx context.Context, events ...models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		h.logger.LogEvent(string(e.Kind), e.BusinessDay, e.Revision)
	}
	return h.bus.Publish(ctx, events...)
}

// Run consumes the bus and closes stalled streams until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(h.opts.GapTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				h.Sweep()
			}
		}
	}()

	err := h.bus.Run(ctx, h.Deliver)
	h.closeAll()
	return err
}

// Deliver routes one event to the subscribers of its day.
func (h *Hub) Deliver(e models.ChangeEvent) {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.days[e.BusinessDay] {
		if reason := sub.offer(e, now); reason != reasonNone {
			h.dropLocked(sub, reason)
		}
	}
}

// Sweep closes streams stuck on a missing revision longer than GapTimeout.
func (h *Hub) Sweep() {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, subs := range h.days {
		for _, sub := range subs {
			if sub.stalled(now, h.opts.GapTimeout) {
				h.dropLocked(sub, reasonGap)
			}
		}
	}
}

// Subscribe registers for day, then reads the snapshot. The returned
// channel yields every event committed after the snapshot revision, in
// order, until cancel is called, ctx ends, or the stream is closed by the
// hub. A closed stream must be re-subscribed for a fresh snapshot.
func (h *Hub) Subscribe(ctx context.Context, day models.BusinessDay) (*models.Snapshot, <-chan models.ChangeEvent, func(), error) {
	sub := h.register(day)

	snap, err := h.snapshots.Snapshot(ctx, day)
	if err != nil {
		h.remove(sub, reasonCanceled)
		return nil, nil, nil, fmt.Errorf("read snapshot for %s: %w", day, err)
	}

	h.mu.Lock()
	if !sub.closed {
		if reason := sub.start(snap.Meta.Revision, h.now()); reason != reasonNone {
			h.dropLocked(sub, reason)
		}
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(sub, reasonCanceled)
		case <-sub.done:
		}
	}()

	cancel := func() { h.remove(sub, reasonCanceled) }
	return snap, sub.ch, cancel, nil
}

// SubscriberCount returns the number of open streams for day.
func (h *Hub) SubscriberCount(day models.BusinessDay) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.days[day])
}

func (h *Hub) register(day models.BusinessDay) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := newSubscriber(h.nextID, day, h.opts.Buffer)
	if h.days[day] == nil {
		h.days[day] = make(map[uint64]*subscriber)
	}
	h.days[day][sub.id] = sub
	return sub
}

func (h *Hub) remove(sub *subscriber, reason closeReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub, reason)
}

func (h *Hub) dropLocked(sub *subscriber, reason closeReason) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	close(sub.done)

	subs := h.days[sub.day]
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(h.days, sub.day)
	}

	if reason == reasonCanceled {
		h.logger.Debug("EVENTS", fmt.Sprintf("Subscriber %d left %s", sub.id, sub.day))
		return
	}
	h.logger.Info("EVENTS", fmt.Sprintf("Closed subscriber %d on %s at rev=%d: %s", sub.id, sub.day, sub.floor, reason))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.days {
		for _, sub := range subs {
			h.dropLocked(sub, reasonShutdown)
		}
	}
}
