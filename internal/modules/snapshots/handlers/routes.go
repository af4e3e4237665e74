package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/snapshots", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/take", h.HandleTake)
		r.Post("/backfill-benchmarks", h.HandleBackfill)
		r.Get("/twr", h.HandleTWR)
	})
}
