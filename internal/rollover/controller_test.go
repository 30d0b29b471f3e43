package rollover_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"
	"ms-clinic-queue/internal/rollover"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// 23:50 IST on 2025-03-09.
var lateEvening = time.Date(2025, 3, 9, 18, 20, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func setupStore(t *testing.T, c clock.Clock) *db.DB {
	t.Helper()
	ctx := context.Background()
	bunDB, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, database.CreateSchema(ctx, bunDB))

	store := db.New(bunDB, 50)
	store.Now = c.Now
	return store
}

func seedDay(t *testing.T, store *db.DB, day models.BusinessDay, tickets int) {
	t.Helper()
	ctx := context.Background()
	_, err := store.UpdateDayMeta(ctx, day, func(m *models.DayMeta, _ int) error {
		m.Available = true
		return nil
	})
	require.NoError(t, err)
	for i := 0; i < tickets; i++ {
		_, _, err := store.CreateTicket(ctx, models.Ticket{BusinessDay: day, FullName: "P", Mobile: "1"}, nil)
		require.NoError(t, err)
	}
}

func TestTickAcrossMidnight(t *testing.T) {
	c := clock.NewManual(lateEvening)
	store := setupStore(t, c)
	pub := &recordingPublisher{}
	ctrl := rollover.NewController(store, pub, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata()})
	ctx := context.Background()

	// First run records the current day.
	result, err := ctrl.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, result.Claimed)
	assert.Zero(t, result.TicketsPurged)

	yesterday := models.BusinessDay("2025-03-09")
	seedDay(t, store, yesterday, 3)

	result, err = ctrl.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, result.Claimed, "same day is a no-op")

	c.Advance(20 * time.Minute) // 00:10 IST
	result, err = ctrl.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, result.Claimed)
	assert.Equal(t, models.BusinessDay("2025-03-10"), result.Today)
	assert.Equal(t, 3, result.TicketsPurged)
	assert.Equal(t, rollover.Idle, ctrl.State())

	require.Len(t, pub.events, 4)
	assert.Equal(t, models.MetaUpdated, pub.events[3].Kind)
	assert.True(t, pub.events[3].Meta.Archived)

	// The new day starts numbering at 1.
	ticket, _, err := store.CreateTicket(ctx, models.Ticket{BusinessDay: "2025-03-10", FullName: "New", Mobile: "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, ticket.TicketNumber)
}

func TestTickIsIdempotent(t *testing.T) {
	c := clock.NewManual(lateEvening.Add(time.Hour))
	store := setupStore(t, c)
	seedDay(t, store, "2025-03-09", 2)
	ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata()})
	ctx := context.Background()

	_, err := ctrl.Tick(ctx)
	require.NoError(t, err)
	afterOnce, err := store.Snapshot(ctx, "2025-03-09")
	require.NoError(t, err)

	second, err := ctrl.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, second.Claimed)
	afterTwice, err := store.Snapshot(ctx, "2025-03-09")
	require.NoError(t, err)

	assert.Equal(t, afterOnce.Meta.Revision, afterTwice.Meta.Revision)
	assert.Equal(t, afterOnce.Tickets, afterTwice.Tickets)
	assert.True(t, afterTwice.Meta.Archived)
}

func TestCompetingControllersRollOverOnce(t *testing.T) {
	c := clock.NewManual(lateEvening.Add(time.Hour))
	store := setupStore(t, c)
	seedDay(t, store, "2025-03-09", 4)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan *db.RolloverResult, 4)
	for i := 0; i < 4; i++ {
		ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata()})
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := ctrl.Tick(ctx)
			if assert.NoError(t, err) {
				results <- result
			}
		}()
	}
	wg.Wait()
	close(results)

	claimed, purged := 0, 0
	for r := range results {
		if r.Claimed {
			claimed++
			purged += r.TicketsPurged
		}
	}
	assert.Equal(t, 1, claimed)
	assert.Equal(t, 4, purged)
}

func TestRetentionKeepsRecentDays(t *testing.T) {
	c := clock.NewManual(time.Date(2025, 3, 12, 6, 0, 0, 0, time.UTC))
	store := setupStore(t, c)
	seedDay(t, store, "2025-03-09", 1)
	seedDay(t, store, "2025-03-11", 1)
	ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{
		RetentionDays: 2,
		MetaPolicy:    db.MetaDelete,
		Clock:         c,
		BusinessDay:   clock.Kolkata(),
	})

	result, err := ctrl.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.BusinessDay("2025-03-10"), result.Cutoff)
	assert.Equal(t, []models.BusinessDay{"2025-03-09"}, result.DaysRetired)

	kept, err := store.ListTickets(context.Background(), "2025-03-11")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestStatus(t *testing.T) {
	c := clock.NewManual(lateEvening)
	store := setupStore(t, c)
	ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata()})
	ctx := context.Background()

	status, err := ctrl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, rollover.Idle, status.State)
	assert.Empty(t, status.LastDay)
	assert.Nil(t, status.LastRunAt)
	assert.Equal(t, db.MetaArchive, status.MetaPolicy)

	_, err = ctrl.Tick(ctx)
	require.NoError(t, err)

	status, err = ctrl.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BusinessDay("2025-03-09"), status.LastDay)
	assert.NotNil(t, status.LastRunAt)
}

func TestSchedulerRunsImmediately(t *testing.T) {
	c := clock.NewManual(lateEvening)
	store := setupStore(t, c)
	ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata()})

	sched, err := rollover.NewScheduler(context.Background(), ctrl, time.Hour, logger.NewDiscard())
	require.NoError(t, err)
	sched.Start()
	defer sched.Shutdown()

	assert.Eventually(t, func() bool {
		marker, err := store.GetRolloverMarker(context.Background())
		return err == nil && marker.LastDay == "2025-03-09"
	}, 2*time.Second, 10*time.Millisecond)

	status, err := ctrl.Status(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, status.NextCheckAt)
}

// MockStore is a mock implementation of the rollover Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Rollover(ctx context.Context, today, cutoff models.BusinessDay, policy db.MetaPolicy) (*db.RolloverResult, error) {
	args := m.Called(today, cutoff, policy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.RolloverResult), args.Error(1)
}

func (m *MockStore) GetRolloverMarker(ctx context.Context) (*models.RolloverMarker, error) {
	args := m.Called()
	return args.Get(0).(*models.RolloverMarker), args.Error(1)
}

func TestTickRetriesLostMarkerRace(t *testing.T) {
	c := clock.NewFixed(lateEvening.Add(time.Hour))
	today := models.BusinessDay("2025-03-10")
	store := new(MockStore)
	store.On("GetRolloverMarker").Return(&models.RolloverMarker{LastDay: "2025-03-09"}, nil)
	store.On("Rollover", today, today, db.MetaArchive).Return(nil, models.ErrConcurrentConflict).Twice()
	store.On("Rollover", today, today, db.MetaArchive).Return(&db.RolloverResult{Claimed: true, Today: today}, nil).Once()

	ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata()})
	started := time.Now()
	result, err := ctrl.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Claimed)
	assert.GreaterOrEqual(t, time.Since(started), 2*time.Millisecond, "each retry waits a backoff")
	store.AssertNumberOfCalls(t, "Rollover", 3)
}

func TestTickGivesUpAfterMaxAttempts(t *testing.T) {
	c := clock.NewFixed(lateEvening.Add(time.Hour))
	store := new(MockStore)
	store.On("GetRolloverMarker").Return(&models.RolloverMarker{LastDay: "2025-03-09"}, nil)
	store.On("Rollover", mock.Anything, mock.Anything, mock.Anything).Return(nil, models.ErrConcurrentConflict)

	ctrl := rollover.NewController(store, nil, logger.NewDiscard(), rollover.Options{Clock: c, BusinessDay: clock.Kolkata(), MaxAttempts: 4})
	_, err := ctrl.Tick(context.Background())
	assert.ErrorIs(t, err, models.ErrConcurrentConflict)
	store.AssertNumberOfCalls(t, "Rollover", 4)
	assert.Equal(t, rollover.Idle, ctrl.State())
}
