package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all fx routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/fx-watch", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Post("/check", h.HandleCheck)
		r.Post("/alert", h.HandleAlert)

		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})

	r.Get("/forex/{base}/{quote}/history-long", h.HandleHistoryLong)
}
