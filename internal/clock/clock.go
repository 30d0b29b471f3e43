package clock

import (
	"fmt"
	"sync"
	"time"

	"ms-clinic-queue/internal/models"
)

// DefaultZone is the clinic's calendar zone.
const DefaultZone = "Asia/Kolkata"

// Clock allows injecting time in services.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed returns a clock that always returns the same instant (useful for tests).
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}

// Manual is a settable clock for tests that cross day boundaries.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// BusinessDayFunc maps an instant to the clinic's business day.
type BusinessDayFunc func(now time.Time) models.BusinessDay

// InZone returns a BusinessDayFunc for the named IANA zone.
func InZone(name string) (BusinessDayFunc, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %s: %w", name, err)
	}
	return func(now time.Time) models.BusinessDay {
		return models.BusinessDayOf(now, loc)
	}, nil
}

// Kolkata is the business day function for Asia/Kolkata. It falls back to a
// fixed +05:30 offset when the zone database is missing.
func Kolkata() BusinessDayFunc {
	fn, err := InZone(DefaultZone)
	if err != nil {
		loc := time.FixedZone("IST", 5*3600+1800)
		return func(now time.Time) models.BusinessDay {
			return models.BusinessDayOf(now, loc)
		}
	}
	return fn
}

// Today is a convenience for the business day of c's current instant.
func Today(c Clock, fn BusinessDayFunc) models.BusinessDay {
	return fn(c.Now())
}
