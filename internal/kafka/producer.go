package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-clinic-queue/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Producer writes JSON messages to one topic. Messages with the same key
// land on the same partition, which keeps a business day in order.
type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

// PublishJSON marshals each value and writes them as one batch under key.
func (p *Producer) PublishJSON(ctx context.Context, key string, values ...interface{}) error {
	msgs := make([]kafka.Message, 0, len(values))
	for _, v := range values {
		msgBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal kafka message: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(key), Value: msgBytes})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := p.Writer.WriteMessages(ctx, msgs...); err != nil {
		p.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish to %s: %v", p.Writer.Topic, err))
		return err
	}
	p.Logger.Debug("KAFKA", fmt.Sprintf("Published %d message(s) to %s key=%s", len(msgs), p.Writer.Topic, key))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
