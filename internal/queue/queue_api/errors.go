package queue_api

import (
	"errors"
	"fmt"
	"net/http"

	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/slip"
	"ms-clinic-queue/internal/rollover"
	"ms-clinic-queue/internal/utils"
)

type apiError struct {
	status  int
	code    string
	message string
}

var errorTable = []struct {
	target error
	apiError
}{
	{models.ErrDoctorUnavailable, apiError{http.StatusConflict, "DOCTOR_UNAVAILABLE", "The doctor is not available today"}},
	{models.ErrDuplicateBooking, apiError{http.StatusConflict, "DUPLICATE_BOOKING", "You already have a ticket for today"}},
	{models.ErrCapacityExceeded, apiError{http.StatusConflict, "CAPACITY_EXCEEDED", "All tickets for today have been issued"}},
	{models.ErrIncompleteProfile, apiError{http.StatusUnprocessableEntity, "INCOMPLETE_PROFILE", "Complete your profile before booking"}},
	{models.ErrNoMoreTickets, apiError{http.StatusConflict, "NO_MORE_TICKETS", "No more tickets to call"}},
	{models.ErrConcurrentConflict, apiError{http.StatusConflict, "CONCURRENT_CONFLICT", "The queue changed concurrently, please retry"}},
	{models.ErrStoreUnavailable, apiError{http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Queue store is unavailable"}},
	{models.ErrInvalidCapacity, apiError{http.StatusBadRequest, "INVALID_CAPACITY", "Capacity must be between 1 and 200"}},
	{models.ErrInvalidBusinessDay, apiError{http.StatusBadRequest, "INVALID_DAY", "Business day must be YYYY-MM-DD"}},
	{models.ErrTicketNotFound, apiError{http.StatusNotFound, "TICKET_NOT_FOUND", "Ticket not found"}},
	{models.ErrProfileNotFound, apiError{http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile not found"}},
	{models.ErrForbidden, apiError{http.StatusForbidden, "FORBIDDEN", "Staff access required"}},
	{slip.ErrInvalidSlip, apiError{http.StatusBadRequest, "INVALID_SLIP", "Slip is not valid"}},
	{rollover.ErrInProgress, apiError{http.StatusConflict, "ROLLOVER_IN_PROGRESS", "A rollover is already running"}},
}

func classify(err error) apiError {
	for _, entry := range errorTable {
		if errors.Is(err, entry.target) {
			return entry.apiError
		}
	}
	return apiError{http.StatusInternalServerError, "INTERNAL", "Internal server error"}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := classify(err)
	if e.status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %s failed: %v", r.Method, r.URL.Path, op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s %s: %s rejected: %v", r.Method, r.URL.Path, op, err))
	}
	utils.WriteJSON(w, e.status, utils.ErrorResponse(e.code, e.message, err.Error()))
}
