// Package handlers provides HTTP handlers for tracked investors.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/gurus"
)

// Handler handles guru HTTP requests.
type Handler struct {
	service *gurus.Service
	log     zerolog.Logger
}

// NewHandler creates a gurus handler.
func NewHandler(service *gurus.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "gurus").Logger(),
	}
}

// HandleList handles GET /api/gurus.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Gurus()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"gurus": list,
		"count": len(list),
	})
}

// HandleAdd handles POST /api/gurus.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CIK  string `json:"cik"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	guru, err := h.service.AddGuru(req.CIK, req.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, guru)
}

// HandleRemove handles DELETE /api/gurus/{cik}.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	cik := chi.URLParam(r, "cik")
	if err := h.service.RemoveGuru(cik); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": cik})
}

// HandleSyncAll handles POST /api/gurus/sync.
func (h *Handler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.SyncAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// HandleSync handles POST /api/gurus/{cik}/sync.
func (h *Handler) HandleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncGuru(r.Context(), chi.URLParam(r, "cik"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleFiling handles GET /api/gurus/{cik}/filing.
func (h *Handler) HandleFiling(w http.ResponseWriter, r *http.Request) {
	current, history, err := h.service.CurrentFiling(chi.URLParam(r, "cik"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"current": current,
		"history": history,
	})
}

// HandleHoldings handles GET /api/gurus/{cik}/holdings.
func (h *Handler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	filing, holdings, err := h.service.Holdings(chi.URLParam(r, "cik"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"filing":   filing,
		"holdings": holdings,
		"count":    len(holdings),
	})
}

// HandleTop handles GET /api/gurus/{cik}/top.
func (h *Handler) HandleTop(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, domain.Validationf("n must be a positive integer"))
			return
		}
		n = parsed
	}

	filing, positions, err := h.service.TopPositions(chi.URLParam(r, "cik"), n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"filing":    filing,
		"positions": positions,
		"count":     len(positions),
	})
}

// HandleQoQ handles GET /api/gurus/{cik}/qoq.
func (h *Handler) HandleQoQ(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.QoQ(chi.URLParam(r, "cik"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// HandleGrandPortfolio handles GET /api/gurus/grand-portfolio.
func (h *Handler) HandleGrandPortfolio(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.GrandPortfolio()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

// HandleResonance handles GET /api/resonance.
func (h *Handler) HandleResonance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Resonance()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resonance": rows,
		"count":     len(rows),
	})
}

// HandleGreatMinds handles GET /api/resonance/great-minds.
func (h *Handler) HandleGreatMinds(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.GreatMinds()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

// HandleResonanceTicker handles GET /api/resonance/{ticker}.
func (h *Handler) HandleResonanceTicker(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.ResonanceForTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, row)
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
