package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all guru routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/gurus", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleAdd)
		r.Post("/sync", h.HandleSyncAll)
		r.Get("/grand-portfolio", h.HandleGrandPortfolio)

		r.Route("/{cik}", func(r chi.Router) {
			r.Delete("/", h.HandleRemove)
			r.Post("/sync", h.HandleSync)
			r.Get("/filing", h.HandleFiling)
			r.Get("/holdings", h.HandleHoldings)
			r.Get("/top", h.HandleTop)
			r.Get("/qoq", h.HandleQoQ)
		})
	})

	r.Route("/resonance", func(r chi.Router) {
		r.Get("/", h.HandleResonance)
		r.Get("/great-minds", h.HandleGreatMinds)
		r.Get("/{ticker}", h.HandleResonanceTicker)
	})
}
