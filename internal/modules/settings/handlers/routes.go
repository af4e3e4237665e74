package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all settings routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/preferences", h.HandleGetPreferences)
		r.Put("/preferences", h.HandleUpdatePreferences)

		r.Get("/telegram", h.HandleGetTelegram)
		r.Put("/telegram", h.HandleUpdateTelegram)
		r.Post("/telegram/test", h.HandleTestTelegram)
	})
}
