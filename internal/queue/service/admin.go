package service

import (
	"context"
	"fmt"

	"ms-clinic-queue/internal/models"
)

// Advance moves the now-serving pointer to the next issued ticket.
func (s *QueueService) Advance(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error) {
	meta, err := s.updateMeta(ctx, "advance", day, func(m *models.DayMeta, issued int) error {
		if m.CurrentPointer >= issued {
			return models.ErrNoMoreTickets
		}
		m.CurrentPointer++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogQueue("ADVANCE", day, fmt.Sprintf("now serving %d", meta.CurrentPointer))
	s.announce(context.WithoutCancel(ctx), day, meta.CurrentPointer)
	return meta, nil
}

func (s *QueueService) SetAvailability(ctx context.Context, day models.BusinessDay, available bool) (*models.DayMeta, error) {
	meta, err := s.updateMeta(ctx, "availability", day, func(m *models.DayMeta, _ int) error {
		m.Available = available
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogQueue("AVAILABILITY", day, fmt.Sprintf("available=%t", meta.Available))
	return meta, nil
}

// SetCapacity changes the daily limit. Lowering it below the issued count
// only stops further bookings.
func (s *QueueService) SetCapacity(ctx context.Context, day models.BusinessDay, capacity int) (*models.DayMeta, error) {
	if capacity < models.MinCapacity || capacity > models.MaxCapacity {
		return nil, models.ErrInvalidCapacity
	}
	meta, err := s.updateMeta(ctx, "capacity", day, func(m *models.DayMeta, _ int) error {
		m.Capacity = capacity
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogQueue("CAPACITY", day, fmt.Sprintf("capacity=%d", meta.Capacity))
	return meta, nil
}

// ResetPointer sets the pointer back to 0 without touching tickets, so
// already served tickets count as waiting again.
func (s *QueueService) ResetPointer(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error) {
	previous := 0
	meta, err := s.updateMeta(ctx, "reset", day, func(m *models.DayMeta, _ int) error {
		previous = m.CurrentPointer
		m.CurrentPointer = 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.LogQueue("RESET", day, fmt.Sprintf("pointer %d -> 0", previous))
	if previous != 0 {
		s.announce(context.WithoutCancel(ctx), day, 0)
	}
	return meta, nil
}

// PurgeDay deletes all tickets of day and resets its pointer.
func (s *QueueService) PurgeDay(ctx context.Context, day models.BusinessDay) (int, *models.DayMeta, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	var deleted int
	var meta models.DayMeta
	var events []models.ChangeEvent
	var previous int
	err := s.withRetry(ctx, "purge", day, func() error {
		result, err := s.DB.PurgeDay(ctx, day)
		if err != nil {
			return err
		}
		deleted, meta, events, previous = result.Deleted, result.Meta, result.Events, result.Previous.CurrentPointer
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	s.Logger.LogQueue("PURGE", day, fmt.Sprintf("deleted %d ticket(s)", deleted))
	s.publish(ctx, events...)
	if previous != 0 {
		s.announce(ctx, day, 0)
	}
	return deleted, &meta, nil
}

// updateMeta runs one compare-and-set on the day's meta with retries and
// publishes the resulting meta-updated event.
func (s *QueueService) updateMeta(ctx context.Context, op string, day models.BusinessDay, mutate func(m *models.DayMeta, issued int) error) (*models.DayMeta, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	var meta *models.DayMeta
	err := s.withRetry(ctx, op, day, func() error {
		var err error
		meta, err = s.DB.UpdateDayMeta(ctx, day, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, metaEvent(meta))
	return meta, nil
}
