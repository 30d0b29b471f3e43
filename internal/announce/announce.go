// Package announce notifies the outside world when the now-serving pointer
// moves. Playback (voice, displays, push) belongs to the receivers.
package announce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-clinic-queue/internal/kafka"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
)

// Announcement is the payload sent for one pointer change.
type Announcement struct {
	BusinessDay models.BusinessDay `json:"business_day"`
	Pointer     int                `json:"pointer"`
	Text        string             `json:"text"`
	AnnouncedAt time.Time          `json:"announced_at"`
}

func NewAnnouncement(day models.BusinessDay, pointer int) Announcement {
	text := fmt.Sprintf("Token number %d", pointer)
	if pointer == 0 {
		text = "Queue reset"
	}
	return Announcement{BusinessDay: day, Pointer: pointer, Text: text, AnnouncedAt: time.Now().UTC()}
}

type Sink interface {
	Announce(ctx context.Context, day models.BusinessDay, pointer int) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, day models.BusinessDay, pointer int) error

func (f Func) Announce(ctx context.Context, day models.BusinessDay, pointer int) error {
	return f(ctx, day, pointer)
}

type LogSink struct {
	Logger *logger.Logger
}

func (s LogSink) Announce(_ context.Context, day models.BusinessDay, pointer int) error {
	a := NewAnnouncement(day, pointer)
	s.Logger.LogQueue("ANNOUNCE", day, a.Text)
	return nil
}

// KafkaSink publishes announcements keyed by business day.
type KafkaSink struct {
	Producer *kafka.Producer
}

func NewKafkaSink(brokers []string, topic string, log *logger.Logger) *KafkaSink {
	return &KafkaSink{Producer: kafka.NewProducer(brokers, topic, log)}
}

func (s *KafkaSink) Announce(ctx context.Context, day models.BusinessDay, pointer int) error {
	return s.Producer.PublishJSON(ctx, day.String(), NewAnnouncement(day, pointer))
}

func (s *KafkaSink) Close() error {
	return s.Producer.Close()
}

// Multi calls every sink and joins their errors.
type Multi []Sink

func (m Multi) Announce(ctx context.Context, day models.BusinessDay, pointer int) error {
	var errs []error
	for _, s := range m {
		if err := s.Announce(ctx, day, pointer); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
