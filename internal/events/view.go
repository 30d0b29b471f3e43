package events

import (
	"sort"

	"ms-clinic-queue/internal/models"
)

// View is a subscriber's local copy of a day, built from a snapshot and
// kept current by applying change events.
type View struct {
	Meta    models.DayMeta
	Tickets []models.Ticket
}

func NewView(snap models.Snapshot) *View {
	tickets := make([]models.Ticket, len(snap.Tickets))
	copy(tickets, snap.Tickets)
	v := &View{Meta: snap.Meta, Tickets: tickets}
	v.sort()
	return v
}

// Apply folds e into the view. Events at or below the view's revision are
// ignored, so replays are harmless.
func (v *View) Apply(e models.ChangeEvent) bool {
	if e.BusinessDay != v.Meta.BusinessDay || e.Revision <= v.Meta.Revision {
		return false
	}

	switch e.Kind {
	case models.TicketCreated:
		if e.Ticket != nil {
			if i := v.index(e.Ticket.ID); i >= 0 {
				v.Tickets[i] = *e.Ticket
			} else {
				v.Tickets = append(v.Tickets, *e.Ticket)
			}
			v.sort()
		}
	case models.TicketUpdated:
		if e.Ticket != nil {
			if i := v.index(e.Ticket.ID); i >= 0 {
				v.Tickets[i] = *e.Ticket
			}
		}
	case models.TicketDeleted:
		if e.Ticket != nil {
			if i := v.index(e.Ticket.ID); i >= 0 {
				v.Tickets = append(v.Tickets[:i], v.Tickets[i+1:]...)
			}
		}
	case models.MetaUpdated:
		if e.Meta != nil {
			v.Meta = *e.Meta
		}
	}
	v.Meta.Revision = e.Revision
	return true
}

// NowServing returns the ticket at the pointer, if it is still listed.
func (v *View) NowServing() (models.Ticket, bool) {
	for _, t := range v.Tickets {
		if t.TicketNumber == v.Meta.CurrentPointer {
			return t, true
		}
	}
	return models.Ticket{}, false
}

func (v *View) index(id string) int {
	for i := range v.Tickets {
		if v.Tickets[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *View) sort() {
	sort.Slice(v.Tickets, func(i, j int) bool {
		return v.Tickets[i].TicketNumber < v.Tickets[j].TicketNumber
	})
}
