package queue_api

import (
	"net/http"
	"time"

	"ms-clinic-queue/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware is a chi-compatible handler wrapper.
type Middleware = func(http.Handler) http.Handler

// RouteRegistrar mounts extra routes, like the analytics handler.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter assembles the /api/queue surface. authn verifies the bearer
// token; staff must run after it. staffExtras are mounted behind both.
func NewRouter(h *Handler, authn, staff Middleware, log *logger.Logger, staffExtras ...RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/queue", func(r chi.Router) {
		// --- Public Routes ---
		r.Get("/today", h.GetToday)
		r.Get("/{day}/snapshot", h.GetSnapshot)
		r.Get("/{day}/tickets", h.GetTickets)
		r.Get("/{day}/stream", h.Stream)
		log.Info("ROUTER", "Public queue routes registered under /api/queue")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/book", h.BookSelf)
			r.Get("/me", h.GetMyTicket)
			r.Get("/tickets/{ticketId}/slip.png", h.GetSlip)
			r.Get("/tickets/{ticketId}/slip.pdf", h.GetSlipPDF)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.PutProfile)

			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Route("/admin", func(r chi.Router) {
					r.Post("/book", h.StaffBook)
					r.Post("/advance", h.Advance)
					r.Put("/availability", h.SetAvailability)
					r.Put("/capacity", h.SetCapacity)
					r.Post("/reset", h.ResetPointer)
					r.Delete("/tickets", h.PurgeTickets)
					r.Post("/rollover", h.RunRollover)
					r.Get("/rollover", h.GetRolloverStatus)
					r.Get("/profiles", h.SearchProfiles)
					r.Post("/slips/verify", h.VerifySlip)
				})
				for _, extra := range staffExtras {
					extra.RegisterRoutes(r)
				}
			})
			log.Info("ROUTER", "Staff routes registered under /api/queue/admin")
		})
	})

	return r
}

// RequestLogger logs every request through the API category.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
