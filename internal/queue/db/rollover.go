package db

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"ms-clinic-queue/internal/models"

	"github.com/uptrace/bun"
)

type MetaPolicy string

const (
	MetaDelete  MetaPolicy = "delete"
	MetaArchive MetaPolicy = "archive"
)

// RolloverResult summarizes one rollover attempt.
type RolloverResult struct {
	// Claimed is false when another run already recorded today.
	Claimed       bool
	Today         models.BusinessDay
	Cutoff        models.BusinessDay
	TicketsPurged int
	DaysRetired   []models.BusinessDay
	Events        []models.ChangeEvent
}

func (d *DB) ensureMarker(ctx context.Context, idb bun.IDB) error {
	marker := models.RolloverMarker{ID: models.RolloverMarkerID, UpdatedAt: d.Now()}
	_, err := idb.NewInsert().
		Model(&marker).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

// GetRolloverMarker returns the marker, creating an empty one if missing.
func (d *DB) GetRolloverMarker(ctx context.Context) (*models.RolloverMarker, error) {
	if err := d.ensureMarker(ctx, d.Bun); err != nil {
		return nil, storeErr(err)
	}
	var marker models.RolloverMarker
	err := d.Bun.NewSelect().
		Model(&marker).
		Where("id = ?", models.RolloverMarkerID).
		Scan(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return &marker, nil
}

// Rollover claims today on the marker and, in the same transaction, retires
// every day before cutoff. Only the run whose conditional marker write
// succeeds does any work; the others see Claimed == false.
func (d *DB) Rollover(ctx context.Context, today, cutoff models.BusinessDay, policy MetaPolicy) (*RolloverResult, error) {
	result := &RolloverResult{Today: today, Cutoff: cutoff}

	err := d.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := d.ensureMarker(ctx, tx); err != nil {
			return fmt.Errorf("create rollover marker: %w", err)
		}
		res, err := tx.NewUpdate().
			Model((*models.RolloverMarker)(nil)).
			Set("last_day = ?", today).
			Set("updated_at = ?", d.Now()).
			Where("id = ?", models.RolloverMarkerID).
			Where("last_day < ?", today).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("claim rollover: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return nil
		}
		result.Claimed = true

		var tickets []models.Ticket
		if err := tx.NewSelect().
			Model(&tickets).
			Where("business_day < ?", cutoff).
			Order("business_day ASC", "ticket_number ASC").
			Scan(ctx); err != nil {
			return fmt.Errorf("read expired tickets: %w", err)
		}

		var metas []models.DayMeta
		metaQuery := tx.NewSelect().
			Model(&metas).
			Where("business_day < ?", cutoff).
			Order("business_day ASC")
		if d.isPostgres() {
			metaQuery = metaQuery.For(string(lockUpdate))
		}
		if err := metaQuery.Scan(ctx); err != nil {
			return fmt.Errorf("read expired day meta: %w", err)
		}

		if _, err := tx.NewDelete().
			Model((*models.Ticket)(nil)).
			Where("business_day < ?", cutoff).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete expired tickets: %w", err)
		}
		result.TicketsPurged = len(tickets)

		byDay := make(map[models.BusinessDay][]models.Ticket)
		for _, t := range tickets {
			byDay[t.BusinessDay] = append(byDay[t.BusinessDay], t)
		}

		now := d.Now()
		for _, meta := range metas {
			dayTickets := byDay[meta.BusinessDay]
			delete(byDay, meta.BusinessDay)
			if meta.Archived && len(dayTickets) == 0 {
				continue
			}
			result.Events = append(result.Events, deletionEvents(dayTickets, meta.Revision, now)...)
			result.DaysRetired = append(result.DaysRetired, meta.BusinessDay)

			// The final event of a retired day carries Archived so open
			// streams on it end; under MetaDelete the row is removed below.
			next := meta
			next.Archived = true
			next.Revision = meta.Revision + int64(len(dayTickets)) + 1
			if policy == MetaArchive {
				if err := d.casMeta(ctx, tx, &next, meta.Revision); err != nil {
					return err
				}
			} else {
				next.UpdatedAt = now
			}
			committed := next
			result.Events = append(result.Events, models.ChangeEvent{
				Kind:        models.MetaUpdated,
				BusinessDay: meta.BusinessDay,
				Revision:    next.Revision,
				Meta:        &committed,
				EmittedAt:   now,
			})
		}

		// Tickets of days that never had a meta row.
		for _, day := range slices.Sorted(maps.Keys(byDay)) {
			result.Events = append(result.Events, deletionEvents(byDay[day], 0, now)...)
			result.DaysRetired = append(result.DaysRetired, day)
		}

		if policy == MetaDelete {
			if _, err := tx.NewDelete().
				Model((*models.DayMeta)(nil)).
				Where("business_day < ?", cutoff).
				Exec(ctx); err != nil {
				return fmt.Errorf("delete expired day meta: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
