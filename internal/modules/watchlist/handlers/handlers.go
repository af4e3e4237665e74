// Package handlers provides HTTP handlers for watchlist operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/watchlist"
)

// Handler handles watchlist HTTP requests.
type Handler struct {
	service *watchlist.Service
	log     zerolog.Logger
}

// NewHandler creates a watchlist handler.
func NewHandler(service *watchlist.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "watchlist").Logger(),
	}
}

// HandleListStocks handles GET /api/stocks.
func (h *Handler) HandleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.List()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stocks": stocks,
		"count":  len(stocks),
	})
}

// HandleListRemoved handles GET /api/stocks/removed.
func (h *Handler) HandleListRemoved(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.service.Removed()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stocks": stocks,
		"count":  len(stocks),
	})
}

// HandleAddStock handles POST /api/ticker.
func (h *Handler) HandleAddStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker   string `json:"ticker"`
		Name     string `json:"name"`
		Category string `json:"category"`
		IsETF    bool   `json:"is_etf"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	stock, err := h.service.Add(req.Ticker, req.Name, domain.Category(req.Category), req.IsETF)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, stock)
}

// HandleChangeCategory handles PATCH /api/ticker/{ticker}/category.
func (h *Handler) HandleChangeCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	stock, err := h.service.ChangeCategory(chi.URLParam(r, "ticker"), domain.Category(req.Category))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stock)
}

// HandleDeactivate handles POST /api/ticker/{ticker}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if err := h.service.Deactivate(ticker); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": watchlist.NormalizeTicker(ticker),
		"active": false,
	})
}

// HandleReactivate handles POST /api/ticker/{ticker}/reactivate.
func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.Reactivate(chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stock)
}

// HandleExport handles GET /api/stocks/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Export()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}

// HandleImport handles POST /api/stocks/import.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var payload watchlist.ExportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, domain.Validationf("invalid import payload"))
		return
	}

	result, err := h.service.Import(payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetThesis handles GET /api/ticker/{ticker}/thesis.
func (h *Handler) HandleGetThesis(w http.ResponseWriter, r *http.Request) {
	stock, err := h.service.Thesis(chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":            stock.Ticker,
		"thesis":            stock.Thesis,
		"thesis_updated_at": stock.ThesisUpdatedAt,
	})
}

// HandleSetThesis handles POST /api/ticker/{ticker}/thesis.
func (h *Handler) HandleSetThesis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Thesis string `json:"thesis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	stock, err := h.service.SetThesis(chi.URLParam(r, "ticker"), req.Thesis)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":            stock.Ticker,
		"thesis":            stock.Thesis,
		"thesis_updated_at": stock.ThesisUpdatedAt,
	})
}

// HandleListAlerts handles GET /api/ticker/{ticker}/alerts.
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.Alerts(chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// HandleAddAlert handles POST /api/ticker/{ticker}/alerts.
func (h *Handler) HandleAddAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind      string  `json:"kind"`
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	alert, err := h.service.AddAlert(chi.URLParam(r, "ticker"), watchlist.AlertKind(req.Kind), req.Threshold)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, alert)
}

// HandleDeleteAlert handles DELETE /api/alerts/{id}.
func (h *Handler) HandleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, domain.Validationf("alert id must be an integer"))
		return
	}

	if err := h.service.DeleteAlert(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps an error onto the transport taxonomy.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal {
		h.log.Error().Err(err).Msg("internal error")
	}
	h.writeJSON(w, kind.HTTPStatus(), map[string]interface{}{
		"error_code": string(kind),
		"detail":     domain.DetailOf(err),
	})
}
