package analytics_api

import (
	"context"
	"fmt"
	"net/http"

	"ms-clinic-queue/internal/analytics"
	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/utils"

	"github.com/go-chi/chi/v5"
)

// SummaryProvider is implemented by analytics.Service.
type SummaryProvider interface {
	GetSummary(ctx context.Context) (*analytics.Summary, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service SummaryProvider
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service SummaryProvider, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the analytics routes. Callers wrap r with the
// staff middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/analytics", h.GetSummary)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.GetSummary(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetSummary failed: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError,
			utils.ErrorResponse("ANALYTICS_UNAVAILABLE", "Failed to compute analytics", err.Error()))
		return
	}

	h.Logger.Debug("ANALYTICS", fmt.Sprintf("Summary for %s: total=%d completed=%d",
		summary.Today.BusinessDay, summary.Today.Total, summary.Today.Completed))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Queue analytics", summary))
}
