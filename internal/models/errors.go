package models

import "errors"

var (
	ErrDoctorUnavailable  = errors.New("doctor is not available today")
	ErrDuplicateBooking   = errors.New("a ticket is already booked for this holder today")
	ErrCapacityExceeded   = errors.New("daily ticket capacity reached")
	ErrIncompleteProfile  = errors.New("profile is missing required fields")
	ErrNoMoreTickets      = errors.New("no more tickets to advance to")
	ErrConcurrentConflict = errors.New("concurrent update conflict")
	ErrStoreUnavailable   = errors.New("queue store unavailable")

	ErrInvalidCapacity    = errors.New("capacity must be between 1 and 200")
	ErrInvalidBusinessDay = errors.New("invalid business day")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrForbidden          = errors.New("staff access required")
)
