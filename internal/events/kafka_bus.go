package events

import (
	"context"
	"encoding/json"

	"ms-clinic-queue/internal/kafka"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
)

// KafkaBus keys every event by its business day so one partition carries a
// day in commit order. Each process reads with its own consumer group.
type KafkaBus struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   *logger.Logger
}

func NewKafkaBus(brokers []string, topic, groupID string, log *logger.Logger) *KafkaBus {
	return &KafkaBus{
		producer: kafka.NewProducer(brokers, topic, log),
		consumer: kafka.NewConsumer(brokers, topic, groupID, log),
		logger:   log,
	}
}

func (b *KafkaBus) Publish(ctx context.Context, events ...models.ChangeEvent) error {
	// Batches are keyed per day; split a mixed batch.
	byDay := make(map[models.BusinessDay][]interface{})
	var order []models.BusinessDay
	for _, e := range events {
		if _, ok := byDay[e.BusinessDay]; !ok {
			order = append(order, e.BusinessDay)
		}
		byDay[e.BusinessDay] = append(byDay[e.BusinessDay], e)
	}
	for _, day := range order {
		if err := b.producer.PublishJSON(ctx, day.String(), byDay[day]...); err != nil {
			return err
		}
	}
	return nil
}

func (b *KafkaBus) Run(ctx context.Context, handle func(models.ChangeEvent)) error {
	return b.consumer.Start(ctx, func(_, value []byte) error {
		var e models.ChangeEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		handle(e)
		return nil
	})
}

func (b *KafkaBus) Close() error {
	perr := b.producer.Close()
	if cerr := b.consumer.Close(); cerr != nil {
		return cerr
	}
	return perr
}
