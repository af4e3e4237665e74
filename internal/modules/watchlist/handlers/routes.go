package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all watchlist routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stocks", func(r chi.Router) {
		r.Get("/", h.HandleListStocks)
		r.Get("/removed", h.HandleListRemoved)
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
	})

	r.Post("/ticker", h.HandleAddStock)
	r.Route("/ticker/{ticker}", func(r chi.Router) {
		r.Patch("/category", h.HandleChangeCategory)
		r.Post("/deactivate", h.HandleDeactivate)
		r.Post("/reactivate", h.HandleReactivate)

		r.Get("/thesis", h.HandleGetThesis)
		r.Post("/thesis", h.HandleSetThesis)

		r.Get("/alerts", h.HandleListAlerts)
		r.Post("/alerts", h.HandleAddAlert)
	})

	r.Delete("/alerts/{id}", h.HandleDeleteAlert)
}
