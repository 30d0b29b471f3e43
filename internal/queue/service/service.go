package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-clinic-queue/internal/announce"
	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"
)

type QueueDBLayer interface {
	GetDayMeta(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error)
	UpdateDayMeta(ctx context.Context, day models.BusinessDay, mutate db.MetaMutation) (*models.DayMeta, error)
	CreateTicket(ctx context.Context, draft models.Ticket, guard db.BookingGuard) (*models.Ticket, *models.DayMeta, error)
	ListTickets(ctx context.Context, day models.BusinessDay) ([]models.Ticket, error)
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetHolderTicket(ctx context.Context, holderID string, day models.BusinessDay) (*models.Ticket, error)
	Snapshot(ctx context.Context, day models.BusinessDay) (*models.Snapshot, error)
	PurgeDay(ctx context.Context, day models.BusinessDay) (*db.PurgeResult, error)
}

// Directory is the identity collaborator.
type Directory interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	IsStaff(ctx context.Context, id string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, events ...models.ChangeEvent) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, day models.BusinessDay) (*models.Snapshot, <-chan models.ChangeEvent, func(), error)
}

type Options struct {
	MaxRetries int
	// OpTimeout bounds one operation including retries. Operations are
	// detached from the caller's cancellation.
	OpTimeout   time.Duration
	Clock       clock.Clock
	BusinessDay clock.BusinessDayFunc
}

type QueueService struct {
	DB          QueueDBLayer
	Directory   Directory
	Publisher   Publisher
	Subscriber  Subscriber
	Announcer   announce.Sink
	Logger      *logger.Logger
	clock       clock.Clock
	businessDay clock.BusinessDayFunc
	maxRetries  int
	opTimeout   time.Duration
}

func NewQueueService(store QueueDBLayer, dir Directory, pub Publisher, sub Subscriber, ann announce.Sink, log *logger.Logger, opts Options) *QueueService {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 5
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.BusinessDay == nil {
		opts.BusinessDay = clock.Kolkata()
	}
	if ann == nil {
		ann = announce.LogSink{Logger: log}
	}
	return &QueueService{
		DB:          store,
		Directory:   dir,
		Publisher:   pub,
		Subscriber:  sub,
		Announcer:   ann,
		Logger:      log,
		clock:       opts.Clock,
		businessDay: opts.BusinessDay,
		maxRetries:  opts.MaxRetries,
		opTimeout:   opts.OpTimeout,
	}
}

// Today is the current business day.
func (s *QueueService) Today() models.BusinessDay {
	return clock.Today(s.clock, s.businessDay)
}

// detach keeps an operation running when the caller goes away.
func (s *QueueService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
}

// withRetry reruns fn while it loses compare-and-set races, up to maxRetries
// attempts in total.
func (s *QueueService) withRetry(ctx context.Context, op string, day models.BusinessDay, fn func() error) error {
	err := db.RetryOnConflict(ctx, s.maxRetries, fn, func(attempt int) {
		s.Logger.Debug("QUEUE", fmt.Sprintf("%s on %s lost a race (attempt %d/%d), retrying", op, day, attempt, s.maxRetries))
	})
	if errors.Is(err, models.ErrConcurrentConflict) {
		s.Logger.Warn("QUEUE", fmt.Sprintf("%s on %s gave up: %v", op, day, err))
	}
	return err
}

func (s *QueueService) publish(ctx context.Context, events ...models.ChangeEvent) {
	if s.Publisher == nil || len(events) == 0 {
		return
	}
	if err := s.Publisher.Publish(ctx, events...); err != nil {
		s.Logger.Error("EVENTS", fmt.Sprintf("Failed to publish %d event(s) for %s: %v", len(events), events[0].BusinessDay, err))
	}
}

func (s *QueueService) announce(ctx context.Context, day models.BusinessDay, pointer int) {
	if err := s.Announcer.Announce(ctx, day, pointer); err != nil {
		s.Logger.Error("QUEUE", fmt.Sprintf("Announcement for %s pointer %d failed: %v", day, pointer, err))
	}
}

func metaEvent(meta *models.DayMeta) models.ChangeEvent {
	committed := *meta
	return models.ChangeEvent{
		Kind:        models.MetaUpdated,
		BusinessDay: meta.BusinessDay,
		Revision:    meta.Revision,
		Meta:        &committed,
		EmittedAt:   meta.UpdatedAt,
	}
}
