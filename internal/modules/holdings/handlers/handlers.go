// Package handlers provides HTTP handlers for holdings operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/holdings"
)

// Handler handles holdings HTTP requests.
type Handler struct {
	service *holdings.Service
	log     zerolog.Logger
}

// NewHandler creates a holdings handler.
func NewHandler(service *holdings.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "holdings").Logger(),
	}
}

type holdingRequest struct {
	Ticker    string   `json:"ticker"`
	Category  string   `json:"category"`
	Quantity  float64  `json:"quantity"`
	CostBasis *float64 `json:"cost_basis"`
	Currency  string   `json:"currency"`
	Broker    *string  `json:"broker"`
}

func (req holdingRequest) toHolding() holdings.Holding {
	return holdings.Holding{
		Ticker:    req.Ticker,
		Category:  domain.Category(req.Category),
		Quantity:  req.Quantity,
		CostBasis: req.CostBasis,
		Currency:  req.Currency,
		Broker:    req.Broker,
	}
}

// HandleList handles GET /api/holdings.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"holdings": all,
		"count":    len(all),
	})
}

// HandleCreate handles POST /api/holdings.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req holdingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	holding, err := h.service.Add(req.toHolding())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, holding)
}

// HandleCreateCash handles POST /api/holdings/cash.
func (h *Handler) HandleCreateCash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Broker   *string `json:"broker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	holding, err := h.service.AddCash(req.Amount, req.Currency, req.Broker)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, holding)
}

// HandleUpdate handles PUT /api/holdings/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req holdingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	holding, err := h.service.Update(id, req.toHolding())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, holding)
}

// HandleDelete handles DELETE /api/holdings/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.service.Delete(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// HandleExport handles GET /api/holdings/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Export()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}

// HandleImport handles POST /api/holdings/import.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var payload holdings.ExportPayload
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

// HandleRebalance handles GET /api/rebalance?display_currency=USD.
func (h *Handler) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Rebalance(r.Context(), r.URL.Query().Get("display_currency"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domain.Validationf("holding id must be an integer")
	}
	return id, nil
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
