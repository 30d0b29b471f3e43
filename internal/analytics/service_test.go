package analytics_test

import (
	"context"
	"errors"
	"testing"

	"ms-clinic-queue/internal/analytics"
	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const today = models.BusinessDay("2025-03-10")

func seed(t *testing.T) *analytics.DB {
	t.Helper()
	ctx := context.Background()

	bunDB, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(ctx, bunDB))

	store := db.New(bunDB, 50)
	book := func(day models.BusinessDay, n int, byStaff bool) {
		for i := 0; i < n; i++ {
			_, _, err := store.CreateTicket(ctx, models.Ticket{
				BusinessDay:    day,
				FullName:       "Patient",
				Mobile:         "9000000000",
				CreatedByAdmin: byStaff,
			}, nil)
			require.NoError(t, err)
		}
	}
	advance := func(day models.BusinessDay, to int) {
		_, err := store.UpdateDayMeta(ctx, day, func(m *models.DayMeta, _ int) error {
			m.CurrentPointer = to
			m.Available = true
			return nil
		})
		require.NoError(t, err)
	}

	book(today, 4, false)
	book(today, 1, true)
	advance(today, 2)

	book(today.AddDays(-3), 3, false)
	advance(today.AddDays(-3), 3)

	book(today.AddDays(-10), 2, true)
	book(today.AddDays(-40), 6, false)

	return analytics.NewDB(bunDB)
}

func TestGetSummary(t *testing.T) {
	store := seed(t)
	svc := analytics.NewService(store, func() models.BusinessDay { return today })

	summary, err := svc.GetSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, analytics.TodayStats{
		BusinessDay:    today,
		Total:          5,
		Completed:      2,
		Pending:        3,
		CurrentPointer: 2,
		Capacity:       50,
		Available:      true,
	}, summary.Today)

	require.Len(t, summary.Last7.Daily, 7)
	assert.Equal(t, today.AddDays(-6), summary.Last7.Daily[0].BusinessDay)
	assert.Equal(t, today, summary.Last7.Daily[6].BusinessDay)
	assert.Equal(t, 8, summary.Last7.TotalBooked)
	assert.Equal(t, 5, summary.Last7.TotalServed)
	assert.Equal(t, analytics.DailyCount{BusinessDay: today.AddDays(-3), Booked: 3, Served: 3}, summary.Last7.Daily[3])
	assert.Equal(t, 1, summary.Last7.Daily[6].WalkIns)

	require.Len(t, summary.Last30.Daily, 30)
	assert.Equal(t, 10, summary.Last30.TotalBooked, "day 40 is outside the window")
	assert.Equal(t, 2, summary.Last30.Daily[19].WalkIns)
}

func TestGetSummaryEmptyStore(t *testing.T) {
	ctx := context.Background()
	bunDB, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(ctx, bunDB))

	svc := analytics.NewService(analytics.NewDB(bunDB), func() models.BusinessDay { return today })
	summary, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Today.Total)
	assert.Equal(t, 0, summary.Today.Capacity, "no meta row is created by reads")
	assert.Zero(t, summary.Last30.TotalBooked)
}

type failingStore struct{}

func (failingStore) GetDailyCounts(context.Context, models.BusinessDay, models.BusinessDay) ([]analytics.DailyCountData, error) {
	return nil, errors.New("db down")
}

func (failingStore) GetDayMeta(context.Context, models.BusinessDay) (*models.DayMeta, error) {
	return nil, nil
}

func TestGetSummaryPropagatesStoreErrors(t *testing.T) {
	svc := analytics.NewService(failingStore{}, func() models.BusinessDay { return today })
	_, err := svc.GetSummary(context.Background())
	assert.EqualError(t, err, "db down")
}
