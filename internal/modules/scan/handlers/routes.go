package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all scan routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/scan", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/last", h.HandleLast)
		r.Get("/status", h.HandleStatus)
		r.Get("/history/{ticker}", h.HandleHistory)
	})

	r.Post("/digest", h.HandleDigest)
}
