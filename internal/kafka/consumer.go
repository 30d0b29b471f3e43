package kafka

import (
	"context"
	"errors"
	"fmt"

	"ms-clinic-queue/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a consumer for topic in groupID. Every process that
// needs its own copy of the stream must use a distinct group.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start reads messages until ctx ends. Handler errors are logged and the
// message is skipped.
func (c *Consumer) Start(ctx context.Context, handler func(key, value []byte) error) error {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		if err := handler(msg.Key, msg.Value); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to handle message at offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
