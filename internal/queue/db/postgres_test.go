package db_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/config"
	"ms-clinic-queue/internal/database"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"
	"ms-clinic-queue/internal/queue/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresConcurrentBooking runs the booking path against a real
// Postgres, where concurrent writers of a day queue on its meta row.
func TestPostgresConcurrentBooking(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "clinic",
				"POSTGRES_PASSWORD": "clinic",
				"POSTGRES_DB":       "clinic_queue",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Driver:        "postgres",
		DSN:           fmt.Sprintf("postgres://clinic:clinic@%s:%s/clinic_queue?sslmode=disable", host, port.Port()),
		MaxOpenConns:  20,
		MaxIdleConns:  20,
		MaxLifetime:   time.Minute,
		ConnectTries:  5,
		AutoMigrate:   true,
		MigrationsDir: "../../../migrations",
	}
	log := logger.NewDiscard()

	openStore := func(t *testing.T) *db.DB {
		bunDB, err := database.Open(ctx, cfg, log)
		require.NoError(t, err)
		t.Cleanup(func() { bunDB.Close() })
		store := db.New(bunDB, 50)
		store.Now = func() time.Time { return morning }
		return store
	}

	first := openStore(t)
	require.NoError(t, database.Prepare(ctx, first.Bun, cfg, log))
	yesterday := today.AddDays(-1)

	t.Run("store writers wait instead of conflicting", func(t *testing.T) {
		openDay(t, first, yesterday, 50)

		const n = 20
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			numbers []int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ticket, _, err := first.CreateTicket(ctx, walkIn(yesterday, fmt.Sprintf("P%d", i)), nil)
				if assert.NoError(t, err, "a single attempt must get through") {
					mu.Lock()
					numbers = append(numbers, ticket.TicketNumber)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, sequence(n), sorted(numbers))

		snap, err := first.Snapshot(ctx, yesterday)
		require.NoError(t, err)
		assert.Len(t, snap.Tickets, n)
		assert.Equal(t, int64(n+1), snap.Meta.Revision, "one bump for opening plus one per ticket")
	})

	t.Run("services on separate pools book gap-free", func(t *testing.T) {
		services := []*service.QueueService{
			newPostgresService(first),
			newPostgresService(openStore(t)),
			newPostgresService(openStore(t)),
		}
		_, err := services[0].SetAvailability(ctx, today, true)
		require.NoError(t, err)
		_, err = services[1].SetCapacity(ctx, today, 200)
		require.NoError(t, err)

		const n = 60
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			numbers []int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ticket, err := services[i%len(services)].Book(ctx, service.BookingRequest{
					Day:     today,
					Profile: models.ProfileSnapshot{FullName: fmt.Sprintf("W%d", i), Mobile: "9000000000"},
					ByStaff: true,
				})
				if assert.NoError(t, err) {
					mu.Lock()
					numbers = append(numbers, ticket.TicketNumber)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, sequence(n), sorted(numbers))
	})

	result, err := first.Rollover(ctx, today.AddDays(1), today.AddDays(1), db.MetaArchive)
	require.NoError(t, err)
	assert.True(t, result.Claimed)
	assert.Equal(t, 80, result.TicketsPurged)
}

func newPostgresService(store *db.DB) *service.QueueService {
	return service.NewQueueService(store, nil, nil, nil, nil, logger.NewDiscard(), service.Options{
		Clock:       clock.NewFixed(morning),
		BusinessDay: clock.Kolkata(),
	})
}

func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func sorted(numbers []int) []int {
	out := append([]int(nil), numbers...)
	sort.Ints(out)
	return out
}
