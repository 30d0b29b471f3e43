package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB is the queue store: tickets and per-day meta on one SQL database. Every
// mutation is a single transaction; the database is the only serialization
// point between processes. Writers of one day queue on its meta row
// (SELECT ... FOR UPDATE on postgres, an immediate write lock on sqlite).
type DB struct {
	Bun             *bun.DB
	DefaultCapacity int
	Now             func() time.Time
	// BusinessDay maps Now to the clinic day; reads only persist meta for it.
	BusinessDay clock.BusinessDayFunc
}

func New(bunDB *bun.DB, defaultCapacity int) *DB {
	if defaultCapacity < models.MinCapacity || defaultCapacity > models.MaxCapacity {
		defaultCapacity = 50
	}
	return &DB{
		Bun:             bunDB,
		DefaultCapacity: defaultCapacity,
		Now:             func() time.Time { return time.Now().UTC() },
		BusinessDay:     clock.Kolkata(),
	}
}

func (d *DB) today() models.BusinessDay {
	return d.BusinessDay(d.Now())
}

// runInTx runs fn at READ COMMITTED. Consistency comes from the meta row
// lock and the revision compare-and-set, not from the isolation level.
func (d *DB) runInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	return storeErr(d.Bun.RunInTx(ctx, nil, fn))
}

func (d *DB) isPostgres() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

// storeErr passes queue rejections through and classifies the rest.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		models.ErrDoctorUnavailable,
		models.ErrDuplicateBooking,
		models.ErrCapacityExceeded,
		models.ErrIncompleteProfile,
		models.ErrNoMoreTickets,
		models.ErrConcurrentConflict,
		models.ErrStoreUnavailable,
		models.ErrInvalidCapacity,
		models.ErrTicketNotFound,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", models.ErrConcurrentConflict, err)
	}
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isHolderConflict reports whether a unique violation hit the
// one-ticket-per-holder index rather than the ticket number index.
func isHolderConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(pqErr.Constraint, "holder")
	}
	return err != nil && strings.Contains(err.Error(), "holder_id")
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
