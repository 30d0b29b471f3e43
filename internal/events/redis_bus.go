package events

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"

	"github.com/go-redis/redis/v8"
)

const redisChannelPrefix = "queue:events:"

// RedisBus publishes each day on its own pub/sub channel and listens on
// all of them with one pattern subscription.
type RedisBus struct {
	client *redis.Client
	logger *logger.Logger
}

func NewRedisBus(client *redis.Client, log *logger.Logger) *RedisBus {
	return &RedisBus{client: client, logger: log}
}

func channelFor(day models.BusinessDay) string {
	return redisChannelPrefix + day.String()
}

func (b *RedisBus) Publish(ctx context.Context, events ...models.ChangeEvent) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal change event: %w", err)
		}
		if err := b.client.Publish(ctx, channelFor(e.BusinessDay), payload).Err(); err != nil {
			return fmt.Errorf("publish %s rev=%d: %w", e.Kind, e.Revision, err)
		}
	}
	return nil
}

func (b *RedisBus) Run(ctx context.Context, handle func(models.ChangeEvent)) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", redisChannelPrefix, err)
	}
	b.logger.Info("REDIS", fmt.Sprintf("Listening for queue events on %s*", redisChannelPrefix))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.logger.Warn("REDIS", fmt.Sprintf("Dropping malformed event on %s: %v", msg.Channel, err))
				continue
			}
			handle(e)
		}
	}
}

// Close is a no-op; the redis client is owned by the caller.
func (b *RedisBus) Close() error {
	return nil
}
