package db

import (
	"context"
	"database/sql"
	"fmt"

	"ms-clinic-queue/internal/models"

	"github.com/uptrace/bun"
)

// MetaMutation edits a copy of the day's meta. issued is the live ticket
// count read in the same transaction.
type MetaMutation func(meta *models.DayMeta, issued int) error

// rowLock is the row lock taken on the meta row on postgres. SQLite
// transactions take the database write lock up front instead.
type rowLock string

const (
	lockNone   rowLock = ""
	lockShare  rowLock = "SHARE"
	lockUpdate rowLock = "UPDATE"
)

// ensureMeta returns the day's meta, inserting the defaults for an unseen
// day. Writers pass lockUpdate so concurrent writers of the day queue on
// the row instead of failing the revision check.
func (d *DB) ensureMeta(ctx context.Context, idb bun.IDB, day models.BusinessDay, lock rowLock) (models.DayMeta, error) {
	defaults := models.NewDayMeta(day, d.DefaultCapacity, d.Now())
	_, err := idb.NewInsert().
		Model(&defaults).
		On("CONFLICT (business_day) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return models.DayMeta{}, fmt.Errorf("create day meta %s: %w", day, err)
	}

	meta, found, err := d.selectMeta(ctx, idb, day, lock)
	if err != nil {
		return models.DayMeta{}, err
	}
	if !found {
		return models.DayMeta{}, fmt.Errorf("read day meta %s: %w", day, sql.ErrNoRows)
	}
	return meta, nil
}

func (d *DB) selectMeta(ctx context.Context, idb bun.IDB, day models.BusinessDay, lock rowLock) (models.DayMeta, bool, error) {
	var meta models.DayMeta
	q := idb.NewSelect().Model(&meta).Where("business_day = ?", day)
	if lock != lockNone && d.isPostgres() {
		q = q.For(string(lock))
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return models.DayMeta{}, false, nil
		}
		return models.DayMeta{}, false, fmt.Errorf("read day meta %s: %w", day, err)
	}
	return meta, true, nil
}

// readMeta is ensureMeta for readers. Only today's row is created on read;
// any other unseen day gets unsaved defaults at revision 0.
func (d *DB) readMeta(ctx context.Context, idb bun.IDB, day models.BusinessDay, lock rowLock) (models.DayMeta, bool, error) {
	meta, found, err := d.selectMeta(ctx, idb, day, lock)
	if err != nil || found {
		return meta, found, err
	}
	if day != d.today() {
		return models.NewDayMeta(day, d.DefaultCapacity, d.Now()), false, nil
	}
	meta, err = d.ensureMeta(ctx, idb, day, lock)
	return meta, err == nil, err
}

// casMeta writes next over the row only if it still carries prevRevision.
func (d *DB) casMeta(ctx context.Context, idb bun.IDB, next *models.DayMeta, prevRevision int64) error {
	next.UpdatedAt = d.Now()
	res, err := idb.NewUpdate().
		Model(next).
		Column("current_pointer", "capacity", "available", "revision", "archived", "updated_at").
		Where("business_day = ?", next.BusinessDay).
		Where("revision = ?", prevRevision).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrConcurrentConflict
	}
	return nil
}

// GetDayMeta reads the meta for day. Today's row is created on first
// access; other unseen days read as defaults without being stored.
func (d *DB) GetDayMeta(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error) {
	meta, _, err := d.readMeta(ctx, d.Bun, day, lockNone)
	if err != nil {
		return nil, storeErr(err)
	}
	return &meta, nil
}

// UpdateDayMeta applies mutate as one compare-and-set on the day's revision
// and returns the committed meta. A lost race returns ErrConcurrentConflict
// and leaves the row untouched.
func (d *DB) UpdateDayMeta(ctx context.Context, day models.BusinessDay, mutate MetaMutation) (*models.DayMeta, error) {
	var committed models.DayMeta
	err := d.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		meta, err := d.ensureMeta(ctx, tx, day, lockUpdate)
		if err != nil {
			return err
		}
		issued, err := countTickets(ctx, tx, day)
		if err != nil {
			return err
		}

		next := meta
		if err := mutate(&next, issued); err != nil {
			return err
		}
		next.BusinessDay = day
		next.Revision = meta.Revision + 1
		if err := d.casMeta(ctx, tx, &next, meta.Revision); err != nil {
			return err
		}
		committed = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &committed, nil
}

// Snapshot reads the meta and all tickets of day at one revision. On
// postgres the meta row is share-locked so no booking can commit between
// the two reads. A day without a meta row has no tickets either, since
// every ticket insert creates the row first.
func (d *DB) Snapshot(ctx context.Context, day models.BusinessDay) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := d.runInTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		meta, found, err := d.readMeta(ctx, tx, day, lockShare)
		if err != nil {
			return err
		}
		if !found {
			snap = models.Snapshot{Meta: meta, Tickets: []models.Ticket{}}
			return nil
		}
		tickets, err := listTickets(ctx, tx, day)
		if err != nil {
			return err
		}
		snap = models.Snapshot{Meta: meta, Tickets: tickets}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
