package queue_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ms-clinic-queue/internal/auth"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
	"ms-clinic-queue/internal/queue/db"
	"ms-clinic-queue/internal/queue/slip"
	"ms-clinic-queue/internal/rollover"
	"ms-clinic-queue/internal/utils"

	"github.com/go-chi/chi/v5"
)

// QueueService is the part of service.QueueService the API drives.
type QueueService interface {
	Today() models.BusinessDay
	GetDayMeta(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error)
	ListTickets(ctx context.Context, day models.BusinessDay) ([]models.Ticket, error)
	Snapshot(ctx context.Context, day models.BusinessDay) (*models.Snapshot, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	MyTicket(ctx context.Context, holderID string) (*models.Ticket, error)
	Subscribe(ctx context.Context, day models.BusinessDay) (*models.Snapshot, <-chan models.ChangeEvent, func(), error)

	BookSelf(ctx context.Context, holderID string) (*models.Ticket, error)
	BookForHolder(ctx context.Context, staffID, holderID string) (*models.Ticket, error)
	BookWalkIn(ctx context.Context, staffID string, profile models.ProfileSnapshot) (*models.Ticket, error)

	Advance(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error)
	SetAvailability(ctx context.Context, day models.BusinessDay, available bool) (*models.DayMeta, error)
	SetCapacity(ctx context.Context, day models.BusinessDay, capacity int) (*models.DayMeta, error)
	ResetPointer(ctx context.Context, day models.BusinessDay) (*models.DayMeta, error)
	PurgeDay(ctx context.Context, day models.BusinessDay) (int, *models.DayMeta, error)
}

// ProfileService is implemented by identity.Service.
type ProfileService interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile models.Profile) (*models.Profile, error)
	SearchProfiles(ctx context.Context, query string, limit int) ([]models.Profile, error)
	IsStaff(ctx context.Context, id string) (bool, error)
}

// RolloverRunner is implemented by rollover.Controller.
type RolloverRunner interface {
	Tick(ctx context.Context) (*db.RolloverResult, error)
	Status(ctx context.Context) (*rollover.Status, error)
}

type Handler struct {
	Queue    QueueService
	Profiles ProfileService
	Rollover RolloverRunner
	Slips    *slip.Generator
	Logger   *logger.Logger
}

func NewHandler(queue QueueService, profiles ProfileService, roll RolloverRunner, slips *slip.Generator, log *logger.Logger) *Handler {
	return &Handler{
		Queue:    queue,
		Profiles: profiles,
		Rollover: roll,
		Slips:    slips,
		Logger:   log,
	}
}

// TodayResponse is returned by GET /today.
type TodayResponse struct {
	BusinessDay models.BusinessDay `json:"business_day"`
	Meta        *models.DayMeta    `json:"meta"`
}

func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	today := h.Queue.Today()
	meta, err := h.Queue.GetDayMeta(r.Context(), today)
	if err != nil {
		h.writeError(w, r, "GetToday", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Today's queue", TodayResponse{BusinessDay: today, Meta: meta}))
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	snap, err := h.Queue.Snapshot(r.Context(), day)
	if err != nil {
		h.writeError(w, r, "GetSnapshot", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Queue snapshot", snap))
}

func (h *Handler) GetTickets(w http.ResponseWriter, r *http.Request) {
	day, ok := h.dayParam(w, r)
	if !ok {
		return
	}
	tickets, err := h.Queue.ListTickets(r.Context(), day)
	if err != nil {
		h.writeError(w, r, "GetTickets", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d ticket(s)", len(tickets)), tickets))
}

func (h *Handler) BookSelf(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	ticket, err := h.Queue.BookSelf(r.Context(), uid)
	if err != nil {
		h.writeError(w, r, "BookSelf", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("BookSelf: %s got ticket %d", uid, ticket.TicketNumber))
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket booked", ticket))
}

func (h *Handler) GetMyTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Queue.MyTicket(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, "GetMyTicket", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Your ticket", ticket))
}

// GetSlip renders a QR slip. Holders may fetch their own tickets; staff
// may fetch any.
func (h *Handler) GetSlip(w http.ResponseWriter, r *http.Request) {
	h.serveSlip(w, r, "GetSlip", "image/png", h.Slips.PNG)
}

// GetSlipPDF renders the printable slip with the same access rules.
func (h *Handler) GetSlipPDF(w http.ResponseWriter, r *http.Request) {
	h.serveSlip(w, r, "GetSlipPDF", "application/pdf", h.Slips.PDF)
}

func (h *Handler) serveSlip(w http.ResponseWriter, r *http.Request, op, contentType string, render func(models.Ticket) ([]byte, error)) {
	ticketID := chi.URLParam(r, "ticketId")
	ticket, err := h.Queue.GetTicket(r.Context(), ticketID)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	uid := auth.UserID(r.Context())
	if ticket.HolderID != uid {
		staff, err := h.Profiles.IsStaff(r.Context(), uid)
		if err != nil {
			h.writeError(w, r, op, err)
			return
		}
		if !staff {
			// Do not reveal other holders' tickets.
			h.writeError(w, r, op, models.ErrTicketNotFound)
			return
		}
	}

	body, err := render(*ticket)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Profiles.GetProfile(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, "GetProfile", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Profile", profile))
}

// ProfileRequest is the editable part of a profile. Staff status is never
// taken from the request.
type ProfileRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Address  string `json:"address"`
}

func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !h.decode(w, r, "PutProfile", &req) {
		return
	}

	uid := auth.UserID(r.Context())
	profile := models.Profile{
		ID:       uid,
		FullName: strings.TrimSpace(req.FullName),
		Email:    strings.TrimSpace(req.Email),
		Mobile:   strings.TrimSpace(req.Mobile),
		Address:  strings.TrimSpace(req.Address),
	}
	saved, err := h.Profiles.SaveProfile(r.Context(), profile)
	if err != nil {
		h.writeError(w, r, "PutProfile", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Profile saved", saved))
}

// StaffBookRequest books for a registered holder when HolderID is set,
// otherwise for a walk-in described by the profile fields.
type StaffBookRequest struct {
	HolderID string `json:"holder_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Address  string `json:"address"`
}

func (h *Handler) StaffBook(w http.ResponseWriter, r *http.Request) {
	var req StaffBookRequest
	if !h.decode(w, r, "StaffBook", &req) {
		return
	}

	staffID := auth.UserID(r.Context())
	var (
		ticket *models.Ticket
		err    error
	)
	if holder := strings.TrimSpace(req.HolderID); holder != "" {
		ticket, err = h.Queue.BookForHolder(r.Context(), staffID, holder)
	} else {
		ticket, err = h.Queue.BookWalkIn(r.Context(), staffID, models.ProfileSnapshot{
			FullName: req.FullName,
			Email:    req.Email,
			Mobile:   req.Mobile,
			Address:  req.Address,
		})
	}
	if err != nil {
		h.writeError(w, r, "StaffBook", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("StaffBook: %s issued ticket %d", staffID, ticket.TicketNumber))
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket booked", ticket))
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Queue.Advance(r.Context(), h.Queue.Today())
	if err != nil {
		h.writeError(w, r, "Advance", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Now serving %d", meta.CurrentPointer), meta))
}

type AvailabilityRequest struct {
	Available *bool `json:"available"`
}

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if !h.decode(w, r, "SetAvailability", &req) {
		return
	}
	if req.Available == nil {
		h.badRequest(w, "SetAvailability", "MISSING_FIELD", "available is required")
		return
	}

	meta, err := h.Queue.SetAvailability(r.Context(), h.Queue.Today(), *req.Available)
	if err != nil {
		h.writeError(w, r, "SetAvailability", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Availability updated", meta))
}

type CapacityRequest struct {
	Capacity *int `json:"capacity"`
}

func (h *Handler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req CapacityRequest
	if !h.decode(w, r, "SetCapacity", &req) {
		return
	}
	if req.Capacity == nil {
		h.badRequest(w, "SetCapacity", "MISSING_FIELD", "capacity is required")
		return
	}

	meta, err := h.Queue.SetCapacity(r.Context(), h.Queue.Today(), *req.Capacity)
	if err != nil {
		h.writeError(w, r, "SetCapacity", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Capacity updated", meta))
}

func (h *Handler) ResetPointer(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Queue.ResetPointer(r.Context(), h.Queue.Today())
	if err != nil {
		h.writeError(w, r, "ResetPointer", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pointer reset", meta))
}

// PurgeResponse reports an administrative purge of today's tickets.
type PurgeResponse struct {
	Deleted int             `json:"deleted"`
	Meta    *models.DayMeta `json:"meta"`
}

func (h *Handler) PurgeTickets(w http.ResponseWriter, r *http.Request) {
	deleted, meta, err := h.Queue.PurgeDay(r.Context(), h.Queue.Today())
	if err != nil {
		h.writeError(w, r, "PurgeTickets", err)
		return
	}
	h.Logger.Warn("API", fmt.Sprintf("PurgeTickets: %s deleted %d ticket(s)", auth.UserID(r.Context()), deleted))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets deleted", PurgeResponse{Deleted: deleted, Meta: meta}))
}

func (h *Handler) RunRollover(w http.ResponseWriter, r *http.Request) {
	result, err := h.Rollover.Tick(r.Context())
	if err != nil {
		h.writeError(w, r, "RunRollover", err)
		return
	}
	message := "Already rolled over today"
	if result.Claimed {
		message = fmt.Sprintf("Rolled over; %d ticket(s) purged", result.TicketsPurged)
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(message, result))
}

func (h *Handler) GetRolloverStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Rollover.Status(r.Context())
	if err != nil {
		h.writeError(w, r, "GetRolloverStatus", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Rollover status", status))
}

const defaultSearchLimit = 20

func (h *Handler) SearchProfiles(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			h.badRequest(w, "SearchProfiles", "INVALID_LIMIT", "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	profiles, err := h.Profiles.SearchProfiles(r.Context(), query, limit)
	if err != nil {
		h.writeError(w, r, "SearchProfiles", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d profile(s)", len(profiles)), profiles))
}

type VerifySlipRequest struct {
	Token string `json:"token"`
}

// VerifySlipResponse tells staff whether a scanned slip is a live ticket
// and how it stands against the current pointer.
type VerifySlipResponse struct {
	Ticket         *models.Ticket `json:"ticket"`
	Today          bool           `json:"today"`
	CurrentPointer int            `json:"current_pointer"`
	Served         bool           `json:"served"`
}

func (h *Handler) VerifySlip(w http.ResponseWriter, r *http.Request) {
	var req VerifySlipRequest
	if !h.decode(w, r, "VerifySlip", &req) {
		return
	}

	payload, err := h.Slips.Open(strings.TrimSpace(req.Token))
	if err != nil {
		h.writeError(w, r, "VerifySlip", err)
		return
	}
	ticket, err := h.Queue.GetTicket(r.Context(), payload.TicketID)
	if err != nil {
		h.writeError(w, r, "VerifySlip", err)
		return
	}
	if ticket.TicketNumber != payload.TicketNumber || ticket.BusinessDay != payload.BusinessDay {
		h.writeError(w, r, "VerifySlip", slip.ErrInvalidSlip)
		return
	}

	meta, err := h.Queue.GetDayMeta(r.Context(), ticket.BusinessDay)
	if err != nil {
		h.writeError(w, r, "VerifySlip", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Slip verified", VerifySlipResponse{
		Ticket:         ticket,
		Today:          ticket.BusinessDay == h.Queue.Today(),
		CurrentPointer: meta.CurrentPointer,
		Served:         meta.CurrentPointer >= ticket.TicketNumber,
	}))
}

func (h *Handler) dayParam(w http.ResponseWriter, r *http.Request) (models.BusinessDay, bool) {
	raw := chi.URLParam(r, "day")
	if raw == "today" {
		return h.Queue.Today(), true
	}
	day, err := models.ParseBusinessDay(raw)
	if err != nil {
		h.writeError(w, r, "dayParam", err)
		return "", false
	}
	return day, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to decode request body: %v", op, err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("INVALID_BODY", "Invalid request body", err.Error()))
		return false
	}
	return true
}

func (h *Handler) badRequest(w http.ResponseWriter, op, code, message string) {
	h.Logger.Warn("API", fmt.Sprintf("%s: %s", op, message))
	utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse(code, message, ""))
}
