package db

import (
	"context"

	"ms-clinic-queue/internal/models"

	"github.com/uptrace/bun"
)

// nextTicketNumber derives the next number for day from the committed
// tickets. It must run inside the transaction that inserts the ticket and
// after the day's meta row was compare-and-set, so no other writer can
// observe the same value and commit.
func nextTicketNumber(ctx context.Context, idb bun.IDB, day models.BusinessDay) (int, error) {
	var highest int
	err := idb.NewSelect().
		Model((*models.Ticket)(nil)).
		ColumnExpr("COALESCE(MAX(ticket_number), 0)").
		Where("business_day = ?", day).
		Scan(ctx, &highest)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

func countTickets(ctx context.Context, idb bun.IDB, day models.BusinessDay) (int, error) {
	return idb.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("business_day = ?", day).
		Count(ctx)
}
