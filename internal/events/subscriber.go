package events

import (
	"time"

	"ms-clinic-queue/internal/models"
)

type closeReason string

const (
	reasonNone     closeReason = ""
	reasonOverflow closeReason = "buffer overflow"
	reasonGap      closeReason = "revision gap"
	reasonRetired  closeReason = "day retired"
	reasonCanceled closeReason = "unsubscribed"
	reasonShutdown closeReason = "hub stopped"
)

// subscriber sequences events for one stream. Until the snapshot revision
// is known every event is held; afterwards events are released strictly in
// revision order starting at floor+1, and duplicates are dropped.
type subscriber struct {
	id       uint64
	day      models.BusinessDay
	ch       chan models.ChangeEvent
	done     chan struct{}
	ready    bool
	floor    int64
	pending  map[int64]models.ChangeEvent
	gapSince time.Time
	limit    int
	closed   bool
}

func newSubscriber(id uint64, day models.BusinessDay, buffer int) *subscriber {
	return &subscriber{
		id:      id,
		day:     day,
		ch:      make(chan models.ChangeEvent, buffer),
		done:    make(chan struct{}),
		pending: make(map[int64]models.ChangeEvent),
		limit:   buffer,
	}
}

// start fixes the floor at the snapshot revision.
func (s *subscriber) start(revision int64, now time.Time) closeReason {
	s.ready = true
	s.floor = revision
	for rev := range s.pending {
		if rev <= revision {
			delete(s.pending, rev)
		}
	}
	return s.drain(now)
}

func (s *subscriber) offer(e models.ChangeEvent, now time.Time) closeReason {
	if s.ready && e.Revision <= s.floor {
		return reasonNone
	}
	if _, dup := s.pending[e.Revision]; !dup {
		s.pending[e.Revision] = e
	}
	if !s.ready {
		if len(s.pending) > s.limit {
			return reasonOverflow
		}
		return reasonNone
	}
	return s.drain(now)
}

func (s *subscriber) drain(now time.Time) closeReason {
	for {
		e, ok := s.pending[s.floor+1]
		if !ok {
			break
		}
		delete(s.pending, s.floor+1)
		select {
		case s.ch <- e:
		default:
			return reasonOverflow
		}
		s.floor++
		if e.Kind == models.MetaUpdated && e.Meta != nil && e.Meta.Archived {
			return reasonRetired
		}
	}

	if len(s.pending) == 0 {
		s.gapSince = time.Time{}
		return reasonNone
	}
	if s.gapSince.IsZero() {
		s.gapSince = now
	}
	if len(s.pending) > s.limit {
		return reasonOverflow
	}
	return reasonNone
}

// stalled reports a gap older than timeout.
func (s *subscriber) stalled(now time.Time, timeout time.Duration) bool {
	return s.ready && !s.gapSince.IsZero() && now.Sub(s.gapSince) >= timeout
}
