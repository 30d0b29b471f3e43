package service

import (
	"context"

	"ms-clinic-queue/internal/models"
)

func (s *QueueService) GetDayMeta(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error) {
	return s.DB.GetDayMeta(ctx, day)
}

// ListTickets returns the day's tickets ordered by ticket number.
func (s *QueueService) ListTickets(ctx context.Context, day models.BusinessDay) ([]models.Ticket, error) {
	return s.DB.ListTickets(ctx, day)
}

func (s *QueueService) Snapshot(ctx context.Context, day models.BusinessDay) (*models.Snapshot, error) {
	return s.DB.Snapshot(ctx, day)
}

func (s *QueueService) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	return s.DB.GetTicketByID(ctx, id)
}

// MyTicket returns the holder's ticket for today.
func (s *QueueService) MyTicket(ctx context.Context, holderID string) (*models.Ticket, error) {
	return s.DB.GetHolderTicket(ctx, holderID, s.Today())
}

// Subscribe returns the day's snapshot and the stream of later changes.
// When the stream closes the caller must subscribe again.
func (s *QueueService) Subscribe(ctx context.Context, day models.BusinessDay) (*models.Snapshot, <-chan models.ChangeEvent, func(), error) {
	return s.Subscriber.Subscribe(ctx, day)
}
