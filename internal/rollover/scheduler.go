package rollover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-clinic-queue/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs Tick on a fixed interval, starting immediately. A tick
// still running when the next is due pushes the next one back.
type Scheduler struct {
	sched  gocron.Scheduler
	job    gocron.Job
	logger *logger.Logger
}

func NewScheduler(ctx context.Context, ctrl *Controller, interval time.Duration, log *logger.Logger) (*Scheduler, error) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Error("ROLLOVER", fmt.Sprintf("Error initializing scheduler: %v", err))
		return nil, err
	}

	job, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := ctrl.Tick(ctx); err != nil && !errors.Is(err, ErrInProgress) {
				log.Warn("ROLLOVER", fmt.Sprintf("Scheduled rollover check failed: %v", err))
			}
		}),
		gocron.WithName("daily-rollover"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		sched.Shutdown()
		return nil, err
	}
	ctrl.setNextCheck(job.NextRun)

	log.Info("ROLLOVER", fmt.Sprintf("Rollover check scheduled every %s (job %s)", interval, job.ID()))
	return &Scheduler{sched: sched, job: job, logger: log}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	s.logger.Info("ROLLOVER", "Stopping rollover scheduler")
	return s.sched.Shutdown()
}
