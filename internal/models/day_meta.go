package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	MinCapacity = 1
	MaxCapacity = 200
)

// DayMeta is the shared per-day queue state. Revision is bumped by every
// mutation of the day, including ticket inserts and deletes, and is the
// compare-and-set token for all writes to the row.
type DayMeta struct {
	bun.BaseModel `bun:"table:day_meta"`

	BusinessDay    BusinessDay `bun:"business_day,pk" json:"business_day"`
	CurrentPointer int         `bun:"current_pointer,notnull" json:"current_pointer"`
	Capacity       int         `bun:"capacity,notnull" json:"capacity"`
	Available      bool        `bun:"available,notnull" json:"available"`
	Revision       int64       `bun:"revision,notnull" json:"revision"`
	Archived       bool        `bun:"archived,notnull" json:"archived"`
	UpdatedAt      time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// NewDayMeta returns the lazily-created defaults for an unseen day.
func NewDayMeta(day BusinessDay, capacity int, now time.Time) DayMeta {
	return DayMeta{
		BusinessDay: day,
		Capacity:    capacity,
		UpdatedAt:   now,
	}
}

// RolloverMarker records the last business day a rollover completed for.
type RolloverMarker struct {
	bun.BaseModel `bun:"table:rollover_markers"`

	ID        string      `bun:"id,pk" json:"id"`
	LastDay   BusinessDay `bun:"last_day,notnull" json:"last_day"`
	UpdatedAt time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// RolloverMarkerID is the key of the single marker row.
const RolloverMarkerID = "clinic"
