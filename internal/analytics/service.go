package analytics

import (
	"context"

	"ms-clinic-queue/internal/models"
)

// Store is the read side the analytics service needs.
type Store interface {
	GetDailyCounts(ctx context.Context, from, to models.BusinessDay) ([]DailyCountData, error)
	GetDayMeta(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error)
}

// Service computes queue statistics from retained tickets.
type Service struct {
	store Store
	today func() models.BusinessDay
}

// NewService creates a new analytics service
func NewService(store Store, today func() models.BusinessDay) *Service {
	return &Service{store: store, today: today}
}

// TodayStats summarises the current business day.
type TodayStats struct {
	BusinessDay    models.BusinessDay `json:"business_day"`
	Total          int                `json:"total"`
	Completed      int                `json:"completed"`
	Pending        int                `json:"pending"`
	CurrentPointer int                `json:"current_pointer"`
	Capacity       int                `json:"capacity"`
	Available      bool               `json:"available"`
}

// DailyCount contains metrics for a single day
type DailyCount struct {
	BusinessDay models.BusinessDay `json:"business_day"`
	Booked      int                `json:"booked"`
	Served      int                `json:"served"`
	WalkIns     int                `json:"walk_ins"`
}

// WindowStats is a run of consecutive days ending today.
type WindowStats struct {
	Days        int          `json:"days"`
	TotalBooked int          `json:"total_booked"`
	TotalServed int          `json:"total_served"`
	Daily       []DailyCount `json:"daily"`
}

// Summary is the analytics payload served to staff.
type Summary struct {
	Today  TodayStats  `json:"today"`
	Last7  WindowStats `json:"last_7_days"`
	Last30 WindowStats `json:"last_30_days"`
}

// GetSummary returns today's counts and the 7 and 30 day windows.
// Days removed by rollover show up as zero rows.
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	today := s.today()
	from := today.AddDays(-29)

	rows, err := s.store.GetDailyCounts(ctx, from, today)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.GetDayMeta(ctx, today)
	if err != nil {
		return nil, err
	}

	byDay := make(map[models.BusinessDay]DailyCountData, len(rows))
	for _, row := range rows {
		byDay[row.BusinessDay] = row
	}

	summary := &Summary{
		Last7:  window(byDay, today, 7),
		Last30: window(byDay, today, 30),
	}

	current := byDay[today]
	summary.Today = TodayStats{
		BusinessDay: today,
		Total:       current.Booked,
		Completed:   current.Served,
		Pending:     current.Booked - current.Served,
	}
	if meta != nil {
		summary.Today.CurrentPointer = meta.CurrentPointer
		summary.Today.Capacity = meta.Capacity
		summary.Today.Available = meta.Available
	}
	return summary, nil
}

func window(byDay map[models.BusinessDay]DailyCountData, today models.BusinessDay, days int) WindowStats {
	stats := WindowStats{Days: days, Daily: make([]DailyCount, 0, days)}
	for i := days - 1; i >= 0; i-- {
		day := today.AddDays(-i)
		row := byDay[day]
		stats.Daily = append(stats.Daily, DailyCount{
			BusinessDay: day,
			Booked:      row.Booked,
			Served:      row.Served,
			WalkIns:     row.WalkIns,
		})
		stats.TotalBooked += row.Booked
		stats.TotalServed += row.Served
	}
	return stats
}
