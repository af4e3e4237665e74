// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/snapshots"
)

// Handler handles snapshot HTTP requests.
type Handler struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a snapshots handler.
func NewHandler(service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleList handles GET /api/snapshots?days=90 or ?start=...&end=...
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	days, start, end, err := rangeParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	all, err := h.service.List(days, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": all,
		"count":     len(all),
	})
}

// HandleTake handles POST /api/snapshots/take.
func (h *Handler) HandleTake(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.service.TakeDailySnapshot(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// HandleBackfill handles POST /api/snapshots/backfill-benchmarks.
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.BackfillBenchmarks(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleTWR handles GET /api/snapshots/twr?days=365 or ?start=...&end=...
func (h *Handler) HandleTWR(w http.ResponseWriter, r *http.Request) {
	days, start, end, err := rangeParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.service.TWR(days, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// rangeParams reads the shared days/start/end query parameters. days
// defaults to 365 when nothing is given.
func rangeParams(r *http.Request) (int, string, string, error) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")

	days := 365
	if raw := q.Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, "", "", domain.Validationf("days must be a positive integer")
		}
		days = parsed
	}
	return days, start, end, nil
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
