package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket is one queue entry. Every column is written once at booking time;
// the row is only ever removed by rollover or an administrative purge.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID             string      `bun:"id,pk" json:"id"`
	TicketNumber   int         `bun:"ticket_number,notnull" json:"ticket_number"`
	BusinessDay    BusinessDay `bun:"business_day,notnull" json:"business_day"`
	HolderID       string      `bun:"holder_id,nullzero" json:"holder_id,omitempty"`
	FullName       string      `bun:"full_name,notnull" json:"full_name"`
	Email          string      `bun:"email" json:"email,omitempty"`
	Mobile         string      `bun:"mobile" json:"mobile"`
	Address        string      `bun:"address" json:"address,omitempty"`
	CreatedByAdmin bool        `bun:"created_by_admin,notnull" json:"created_by_admin"`
	CreatedAt      time.Time   `bun:"created_at,notnull" json:"created_at"`
}

// ProfileSnapshot is the subset of a holder profile denormalized into a ticket.
type ProfileSnapshot struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
	Mobile   string `json:"mobile"`
	Address  string `json:"address,omitempty"`
}
