package service

import (
	"testing"

	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"

	"github.com/stretchr/testify/assert"
)

func TestBookingGuardOrder(t *testing.T) {
	open := models.DayMeta{Available: true, Capacity: 2}
	complete := models.ProfileSnapshot{FullName: "A", Mobile: "1", Address: "X"}

	tests := []struct {
		name  string
		req   BookingRequest
		state db.BookingState
		want  error
	}{
		{"closed beats everything", BookingRequest{HolderID: "u"}, db.BookingState{Meta: models.DayMeta{Capacity: 1}, Issued: 5, HolderHasTicket: true}, models.ErrDoctorUnavailable},
		{"duplicate beats capacity", BookingRequest{HolderID: "u"}, db.BookingState{Meta: open, Issued: 2, HolderHasTicket: true}, models.ErrDuplicateBooking},
		{"walk-ins are never duplicates", BookingRequest{Profile: complete}, db.BookingState{Meta: open, HolderHasTicket: true}, nil},
		{"capacity beats profile", BookingRequest{HolderID: "u"}, db.BookingState{Meta: open, Issued: 2}, models.ErrCapacityExceeded},
		{"profile last", BookingRequest{HolderID: "u"}, db.BookingState{Meta: open}, models.ErrIncompleteProfile},
		{"accepted", BookingRequest{HolderID: "u", Profile: complete}, db.BookingState{Meta: open, Issued: 1}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bookingGuard(tt.req)(tt.state)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMissingFields(t *testing.T) {
	assert.Equal(t, []string{"full_name", "mobile", "address"}, MissingFields(models.ProfileSnapshot{}, false))
	assert.Equal(t, []string{"full_name", "mobile"}, MissingFields(models.ProfileSnapshot{Address: "x"}, true))
	assert.Empty(t, MissingFields(models.ProfileSnapshot{FullName: "a", Mobile: " 1 "}, true))
	assert.Equal(t, []string{"address"}, MissingFields(models.ProfileSnapshot{FullName: "a", Mobile: "1", Address: "  "}, false))
}
