package models

import "time"

type EventKind string

const (
	TicketCreated EventKind = "ticket-created"
	TicketUpdated EventKind = "ticket-updated"
	TicketDeleted EventKind = "ticket-deleted"
	MetaUpdated   EventKind = "meta-updated"
)

// ChangeEvent describes one committed mutation of a business day. Revision
// is the day's DayMeta revision after the mutation; it orders and
// deduplicates events of the same day.
type ChangeEvent struct {
	Kind        EventKind   `json:"kind"`
	BusinessDay BusinessDay `json:"business_day"`
	Revision    int64       `json:"revision"`
	Ticket      *Ticket     `json:"ticket,omitempty"`
	Meta        *DayMeta    `json:"meta,omitempty"`
	EmittedAt   time.Time   `json:"emitted_at"`
}

// Snapshot is the full state of a day at Meta.Revision.
type Snapshot struct {
	Meta    DayMeta  `json:"meta"`
	Tickets []Ticket `json:"tickets"`
}
