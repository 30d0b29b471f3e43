package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Profile is a registered user as held by the identity collaborator.
type Profile struct {
	bun.BaseModel `bun:"table:profiles"`

	ID        string    `bun:"id,pk" json:"id"`
	FullName  string    `bun:"full_name" json:"full_name"`
	Email     string    `bun:"email" json:"email"`
	Mobile    string    `bun:"mobile" json:"mobile"`
	Address   string    `bun:"address" json:"address"`
	IsAdmin   bool      `bun:"is_admin,notnull" json:"is_admin"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Snapshot copies the booking-relevant fields.
func (p Profile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		FullName: p.FullName,
		Email:    p.Email,
		Mobile:   p.Mobile,
		Address:  p.Address,
	}
}
