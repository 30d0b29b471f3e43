package events_test

import (
	"context"
	"testing"
	"time"

	"ms-clinic-queue/internal/events"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBusRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := events.NewRedisBus(client, logger.NewDiscard())
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	received := make(chan models.ChangeEvent, 4)
	go bus.Run(ctx, func(e models.ChangeEvent) { received <- e })

	// Wait for the pattern subscription before publishing.
	require.Eventually(t, func() bool {
		return mr.PubSubNumPat() > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, created(1, 1)))

	select {
	case e := <-received:
		assert.Equal(t, models.TicketCreated, e.Kind)
		assert.Equal(t, day, e.BusinessDay)
		assert.Equal(t, 1, e.Ticket.TicketNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered through redis")
	}
}
