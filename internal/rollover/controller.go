// Package rollover retires finished business days so numbering restarts at
// 1 every Asia/Kolkata day.
package rollover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-clinic-queue/internal/clock"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"
)

type State string

const (
	Idle        State = "idle"
	RollingOver State = "rolling_over"
)

var ErrInProgress = errors.New("rollover already running in this process")

type Store interface {
	Rollover(ctx context.Context, today, cutoff models.BusinessDay, policy db.MetaPolicy) (*db.RolloverResult, error)
	GetRolloverMarker(ctx context.Context) (*models.RolloverMarker, error)
}

type Publisher interface {
	Publish(ctx context.Context, events ...models.ChangeEvent) error
}

type Options struct {
	RetentionDays int
	MetaPolicy    db.MetaPolicy
	Clock         clock.Clock
	BusinessDay   clock.BusinessDayFunc
	// MaxAttempts bounds the store calls when the marker write loses a race.
	MaxAttempts int
}

// Status is what staff see about the cleanup job.
type Status struct {
	State         State              `json:"state"`
	LastDay       models.BusinessDay `json:"last_day"`
	Today         models.BusinessDay `json:"today"`
	RetentionDays int                `json:"retention_days"`
	MetaPolicy    db.MetaPolicy      `json:"meta_policy"`
	LastRunAt     *time.Time         `json:"last_run_at,omitempty"`
	LastPurged    int                `json:"last_purged"`
	LastError     string             `json:"last_error,omitempty"`
	NextCheckAt   *time.Time         `json:"next_check_at,omitempty"`
}

// Controller runs the Idle -> RollingOver -> Idle cycle. Several processes
// may run one each; the marker write in the store decides which of them
// does the work.
type Controller struct {
	store       Store
	publisher   Publisher
	logger      *logger.Logger
	clock       clock.Clock
	businessDay clock.BusinessDayFunc
	retention   int
	policy      db.MetaPolicy
	maxAttempts int

	mu         sync.Mutex
	state      State
	lastRunAt  time.Time
	lastPurged int
	lastErr    error
	nextCheck  func() (time.Time, error)
}

func NewController(store Store, pub Publisher, log *logger.Logger, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.BusinessDay == nil {
		opts.BusinessDay = clock.Kolkata()
	}
	if opts.RetentionDays < 0 {
		opts.RetentionDays = 0
	}
	if opts.MetaPolicy != db.MetaDelete {
		opts.MetaPolicy = db.MetaArchive
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	return &Controller{
		store:       store,
		publisher:   pub,
		logger:      log,
		clock:       opts.Clock,
		businessDay: opts.BusinessDay,
		retention:   opts.RetentionDays,
		policy:      opts.MetaPolicy,
		maxAttempts: opts.MaxAttempts,
		state:       Idle,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tick rolls over if today has not been recorded yet. It returns the store
// result, with Claimed false when there was nothing to do.
func (c *Controller) Tick(ctx context.Context) (*db.RolloverResult, error) {
	c.mu.Lock()
	if c.state == RollingOver {
		c.mu.Unlock()
		return nil, ErrInProgress
	}
	c.state = RollingOver
	c.mu.Unlock()

	result, err := c.run(ctx)

	c.mu.Lock()
	c.state = Idle
	c.lastRunAt = c.clock.Now()
	c.lastErr = err
	if result != nil && result.Claimed {
		c.lastPurged = result.TicketsPurged
	}
	c.mu.Unlock()
	return result, err
}

func (c *Controller) run(ctx context.Context) (*db.RolloverResult, error) {
	today := clock.Today(c.clock, c.businessDay)

	marker, err := c.store.GetRolloverMarker(ctx)
	if err != nil {
		c.logger.Error("ROLLOVER", fmt.Sprintf("Failed to read rollover marker: %v", err))
		return nil, err
	}
	if !marker.LastDay.Before(today) {
		return &db.RolloverResult{Today: today}, nil
	}

	cutoff := today.AddDays(-c.retention)
	c.logger.LogRollover(string(RollingOver), fmt.Sprintf("%s -> %s, retiring days before %s (%s)", marker.LastDay, today, cutoff, c.policy))

	var result *db.RolloverResult
	err = db.RetryOnConflict(ctx, c.maxAttempts, func() error {
		var err error
		result, err = c.store.Rollover(ctx, today, cutoff, c.policy)
		return err
	}, func(attempt int) {
		c.logger.Warn("ROLLOVER", fmt.Sprintf("Rollover for %s lost a race (attempt %d/%d), retrying", today, attempt, c.maxAttempts))
	})
	if err != nil {
		c.logger.Error("ROLLOVER", fmt.Sprintf("Rollover for %s failed: %v", today, err))
		return nil, err
	}

	if !result.Claimed {
		c.logger.LogRollover(string(Idle), fmt.Sprintf("%s already rolled over by another process", today))
		return result, nil
	}

	if c.publisher != nil && len(result.Events) > 0 {
		if err := c.publisher.Publish(ctx, result.Events...); err != nil {
			c.logger.Error("EVENTS", fmt.Sprintf("Failed to publish rollover events: %v", err))
		}
	}
	c.logger.LogRollover(string(Idle), fmt.Sprintf("✅ %s recorded; purged %d ticket(s) across %d day(s)", today, result.TicketsPurged, len(result.DaysRetired)))
	return result, nil
}

func (c *Controller) Status(ctx context.Context) (*Status, error) {
	marker, err := c.store.GetRolloverMarker(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	status := &Status{
		State:         c.state,
		LastDay:       marker.LastDay,
		Today:         clock.Today(c.clock, c.businessDay),
		RetentionDays: c.retention,
		MetaPolicy:    c.policy,
		LastPurged:    c.lastPurged,
	}
	if !c.lastRunAt.IsZero() {
		at := c.lastRunAt
		status.LastRunAt = &at
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	if c.nextCheck != nil {
		if next, err := c.nextCheck(); err == nil {
			status.NextCheckAt = &next
		}
	}
	return status, nil
}

func (c *Controller) setNextCheck(fn func() (time.Time, error)) {
	c.mu.Lock()
	c.nextCheck = fn
	c.mu.Unlock()
}
