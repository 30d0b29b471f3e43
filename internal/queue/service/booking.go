package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"
)

// BookingRequest is one attempt to take a ticket.
type BookingRequest struct {
	Day      models.BusinessDay
	HolderID string // empty for walk-ins
	Profile  models.ProfileSnapshot
	// ByStaff relaxes the profile rules to name and contact.
	ByStaff bool
}

// MissingFields lists the profile fields a booking still needs.
func MissingFields(p models.ProfileSnapshot, byStaff bool) []string {
	var missing []string
	if strings.TrimSpace(p.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(p.Mobile) == "" {
		missing = append(missing, "mobile")
	}
	if !byStaff && strings.TrimSpace(p.Address) == "" {
		missing = append(missing, "address")
	}
	return missing
}

// bookingGuard checks the preconditions in order against the state read
// inside the booking transaction.
func bookingGuard(req BookingRequest) db.BookingGuard {
	return func(st db.BookingState) error {
		if !st.Meta.Available {
			return models.ErrDoctorUnavailable
		}
		if req.HolderID != "" && st.HolderHasTicket {
			return models.ErrDuplicateBooking
		}
		if st.Issued >= st.Meta.Capacity {
			return fmt.Errorf("%w: %d of %d issued", models.ErrCapacityExceeded, st.Issued, st.Meta.Capacity)
		}
		if missing := MissingFields(req.Profile, req.ByStaff); len(missing) > 0 {
			return fmt.Errorf("%w: missing %s", models.ErrIncompleteProfile, strings.Join(missing, ", "))
		}
		return nil
	}
}

// Book allocates the next ticket of req.Day. The ticket is visible to
// readers only once committed with its number, and the ticket-created event
// is published after the commit.
func (s *QueueService) Book(ctx context.Context, req BookingRequest) (*models.Ticket, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	draft := models.Ticket{
		BusinessDay:    req.Day,
		HolderID:       req.HolderID,
		FullName:       strings.TrimSpace(req.Profile.FullName),
		Email:          strings.TrimSpace(req.Profile.Email),
		Mobile:         strings.TrimSpace(req.Profile.Mobile),
		Address:        strings.TrimSpace(req.Profile.Address),
		CreatedByAdmin: req.ByStaff,
	}
	guard := bookingGuard(req)

	var (
		ticket *models.Ticket
		meta   *models.DayMeta
	)
	err := s.withRetry(ctx, "book", req.Day, func() error {
		var err error
		ticket, meta, err = s.DB.CreateTicket(ctx, draft, guard)
		return err
	})
	if err != nil {
		s.Logger.LogBooking("REJECT", req.Day, fmt.Sprintf("holder=%q: %v", req.HolderID, err))
		return nil, err
	}

	s.Logger.LogBooking("BOOK", req.Day, fmt.Sprintf("ticket %d issued", ticket.TicketNumber))
	created := *ticket
	s.publish(ctx, models.ChangeEvent{
		Kind:        models.TicketCreated,
		BusinessDay: ticket.BusinessDay,
		Revision:    meta.Revision,
		Ticket:      &created,
		EmittedAt:   ticket.CreatedAt,
	})
	return ticket, nil
}

// BookSelf books today's ticket for holderID from their stored profile.
// A missing profile counts as an incomplete one.
func (s *QueueService) BookSelf(ctx context.Context, holderID string) (*models.Ticket, error) {
	var snapshot models.ProfileSnapshot
	profile, err := s.Directory.GetProfile(ctx, holderID)
	switch {
	case err == nil:
		snapshot = profile.Snapshot()
	case errors.Is(err, models.ErrProfileNotFound):
	default:
		return nil, err
	}

	return s.Book(ctx, BookingRequest{Day: s.Today(), HolderID: holderID, Profile: snapshot})
}

// BookForHolder lets staff book today's ticket for a registered user.
func (s *QueueService) BookForHolder(ctx context.Context, staffID, holderID string) (*models.Ticket, error) {
	if err := s.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}
	profile, err := s.Directory.GetProfile(ctx, holderID)
	if err != nil {
		return nil, err
	}

	return s.Book(ctx, BookingRequest{Day: s.Today(), HolderID: holderID, Profile: profile.Snapshot(), ByStaff: true})
}

// BookWalkIn lets staff book today's ticket for someone without an account.
func (s *QueueService) BookWalkIn(ctx context.Context, staffID string, profile models.ProfileSnapshot) (*models.Ticket, error) {
	if err := s.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}

	return s.Book(ctx, BookingRequest{Day: s.Today(), Profile: profile, ByStaff: true})
}

func (s *QueueService) requireStaff(ctx context.Context, id string) error {
	if id == "" {
		return models.ErrForbidden
	}
	staff, err := s.Directory.IsStaff(ctx, id)
	if err != nil {
		return err
	}
	if !staff {
		s.Logger.LogSecurity("FORBIDDEN", fmt.Sprintf("%s attempted a staff booking", id))
		return models.ErrForbidden
	}
	return nil
}
