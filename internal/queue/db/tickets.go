package db

import (
	"context"
	"fmt"
	"time"

	"ms-clinic-queue/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BookingState is what a booking guard sees inside the transaction.
type BookingState struct {
	Meta            models.DayMeta
	Issued          int
	HolderHasTicket bool
}

// BookingGuard rejects a booking by returning an error; the transaction is
// rolled back and nothing is allocated.
type BookingGuard func(state BookingState) error

// CreateTicket allocates the next number for draft.BusinessDay and inserts
// the ticket in one transaction, after guard accepted the state it read.
// The returned meta carries the revision the insert committed at.
func (d *DB) CreateTicket(ctx context.Context, draft models.Ticket, guard BookingGuard) (*models.Ticket, *models.DayMeta, error) {
	day := draft.BusinessDay
	var (
		created models.Ticket
		meta    models.DayMeta
	)

	err := d.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		current, err := d.ensureMeta(ctx, tx, day, lockUpdate)
		if err != nil {
			return err
		}
		issued, err := countTickets(ctx, tx, day)
		if err != nil {
			return err
		}
		holderHas := false
		if draft.HolderID != "" {
			holderHas, err = holderHasTicket(ctx, tx, draft.HolderID, day)
			if err != nil {
				return err
			}
		}

		if guard != nil {
			state := BookingState{Meta: current, Issued: issued, HolderHasTicket: holderHas}
			if err := guard(state); err != nil {
				return err
			}
		}

		next := current
		next.Revision = current.Revision + 1
		if err := d.casMeta(ctx, tx, &next, current.Revision); err != nil {
			return err
		}

		number, err := nextTicketNumber(ctx, tx, day)
		if err != nil {
			return err
		}

		ticket := draft
		if ticket.ID == "" {
			ticket.ID = uuid.New().String()
		}
		ticket.TicketNumber = number
		if ticket.CreatedAt.IsZero() {
			ticket.CreatedAt = d.Now()
		}
		if _, err := tx.NewInsert().Model(&ticket).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				if isHolderConflict(err) {
					return models.ErrDuplicateBooking
				}
				return models.ErrConcurrentConflict
			}
			return fmt.Errorf("insert ticket: %w", err)
		}

		created = ticket
		meta = next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &created, &meta, nil
}

func holderHasTicket(ctx context.Context, idb bun.IDB, holderID string, day models.BusinessDay) (bool, error) {
	return idb.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("holder_id = ?", holderID).
		Where("business_day = ?", day).
		Exists(ctx)
}

func listTickets(ctx context.Context, idb bun.IDB, day models.BusinessDay) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0)
	err := idb.NewSelect().
		Model(&tickets).
		Where("business_day = ?", day).
		Order("ticket_number ASC").
		Scan(ctx)
	return tickets, err
}

// ListTickets returns the day's tickets ordered by ticket number.
func (d *DB) ListTickets(ctx context.Context, day models.BusinessDay) ([]models.Ticket, error) {
	tickets, err := listTickets(ctx, d.Bun, day)
	if err != nil {
		return nil, storeErr(err)
	}
	return tickets, nil
}

func (d *DB) CountTickets(ctx context.Context, day models.BusinessDay) (int, error) {
	n, err := countTickets(ctx, d.Bun, day)
	return n, storeErr(err)
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, models.ErrTicketNotFound
		}
		return nil, storeErr(err)
	}
	return &ticket, nil
}

// GetHolderTicket returns the holder's ticket for day, or ErrTicketNotFound.
func (d *DB) GetHolderTicket(ctx context.Context, holderID string, day models.BusinessDay) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("holder_id = ?", holderID).
		Where("business_day = ?", day).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, models.ErrTicketNotFound
		}
		return nil, storeErr(err)
	}
	return &ticket, nil
}

// PurgeResult is the outcome of PurgeDay.
type PurgeResult struct {
	Deleted  int
	Previous models.DayMeta
	Meta     models.DayMeta
	Events   []models.ChangeEvent
}

// PurgeDay deletes every ticket of day and resets its pointer to 0. The
// events carry consecutive revisions: one ticket-deleted per ticket in
// number order, then the meta-updated.
func (d *DB) PurgeDay(ctx context.Context, day models.BusinessDay) (*PurgeResult, error) {
	var result PurgeResult
	err := d.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		current, err := d.ensureMeta(ctx, tx, day, lockUpdate)
		if err != nil {
			return err
		}
		tickets, err := listTickets(ctx, tx, day)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.Ticket)(nil)).
			Where("business_day = ?", day).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete tickets: %w", err)
		}

		next := current
		next.CurrentPointer = 0
		next.Revision = current.Revision + int64(len(tickets)) + 1
		if err := d.casMeta(ctx, tx, &next, current.Revision); err != nil {
			return err
		}

		now := d.Now()
		events := deletionEvents(tickets, current.Revision, now)
		committed := next
		events = append(events, models.ChangeEvent{
			Kind:        models.MetaUpdated,
			BusinessDay: day,
			Revision:    next.Revision,
			Meta:        &committed,
			EmittedAt:   now,
		})
		result = PurgeResult{Deleted: len(tickets), Previous: current, Meta: next, Events: events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// deletionEvents numbers one ticket-deleted per ticket starting after base.
func deletionEvents(tickets []models.Ticket, base int64, now time.Time) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(tickets)+1)
	for i := range tickets {
		t := tickets[i]
		events = append(events, models.ChangeEvent{
			Kind:        models.TicketDeleted,
			BusinessDay: t.BusinessDay,
			Revision:    base + int64(i) + 1,
			Ticket:      &t,
			EmittedAt:   now,
		})
	}
	return events
}
