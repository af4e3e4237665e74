// Package handlers provides HTTP handlers for scans and the weekly digest.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/scan"
)

// Handler handles scan HTTP requests.
type Handler struct {
	scans  *scan.Service
	digest *scan.Digest
	log    zerolog.Logger
}

// NewHandler creates a scan handler.
func NewHandler(scans *scan.Service, digest *scan.Digest, log zerolog.Logger) *Handler {
	return &Handler{
		scans:  scans,
		digest: digest,
		log:    log.With().Str("handler", "scan").Logger(),
	}
}

// HandleStart handles POST /api/scan: kicks off a background scan and
// returns 202, or 409 while one is running.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	runID, err := h.scans.Start()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"run_id": runID,
	})
}

// HandleLast handles GET /api/scan/last.
func (h *Handler) HandleLast(w http.ResponseWriter, r *http.Request) {
	run, err := h.scans.LastRun()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleStatus handles GET /api/scan/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scan":   h.scans.Status(),
		"digest": h.digest.Status(),
	})
}

// HandleHistory handles GET /api/scan/history/{ticker}.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, domain.Validationf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	logs, err := h.scans.History(chi.URLParam(r, "ticker"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

// HandleDigest handles POST /api/digest: kicks off a background digest and
// returns 202, or 409 while one is running.
func (h *Handler) HandleDigest(w http.ResponseWriter, r *http.Request) {
	runID, err := h.digest.Start()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"run_id": runID,
	})
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
