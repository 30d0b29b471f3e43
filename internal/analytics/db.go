package analytics

import (
	"context"
	"fmt"

	"ms-clinic-queue/internal/models"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations. It only reads.
type DB struct {
	bun *bun.DB
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// DailyCountData is one business day of retained queue data.
type DailyCountData struct {
	BusinessDay models.BusinessDay `bun:"business_day"`
	Booked      int                `bun:"booked"`
	Served      int                `bun:"served"`
	WalkIns     int                `bun:"walk_ins"`
}

// GetDailyCounts aggregates tickets per business day in [from, to]. A
// ticket counts as served once the day's pointer has reached its number.
func (db *DB) GetDailyCounts(ctx context.Context, from, to models.BusinessDay) ([]DailyCountData, error) {
	var rows []DailyCountData
	err := db.bun.NewRaw(`
		SELECT
			t.business_day AS business_day,
			COUNT(*) AS booked,
			COALESCE(SUM(CASE WHEN m.current_pointer >= t.ticket_number THEN 1 ELSE 0 END), 0) AS served,
			COALESCE(SUM(CASE WHEN t.created_by_admin THEN 1 ELSE 0 END), 0) AS walk_ins
		FROM
			tickets t
		LEFT JOIN
			day_meta m ON m.business_day = t.business_day
		WHERE
			t.business_day >= ? AND t.business_day <= ?
		GROUP BY
			t.business_day
		ORDER BY
			t.business_day
	`, string(from), string(to)).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("daily counts %s..%s: %w", from, to, err)
	}
	return rows, nil
}

// GetDayMeta returns the meta row of day, or nil when the day was never
// touched or has been purged.
func (db *DB) GetDayMeta(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error) {
	var metas []models.DayMeta
	err := db.bun.NewSelect().
		Model(&metas).
		Where("business_day = ?", day).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("day meta %s: %w", day, err)
	}
	if len(metas) == 0 {
		return nil, nil
	}
	return &metas[0], nil
}
