// Package handlers provides HTTP handlers for fx watches.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/fx"
)

// Handler handles fx HTTP requests.
type Handler struct {
	monitor *fx.Monitor
	log     zerolog.Logger
}

// NewHandler creates an fx handler.
func NewHandler(monitor *fx.Monitor, log zerolog.Logger) *Handler {
	return &Handler{
		monitor: monitor,
		log:     log.With().Str("handler", "fx").Logger(),
	}
}

type watchRequest struct {
	Base                  string `json:"base"`
	Quote                 string `json:"quote"`
	RecentHighDays        int    `json:"recent_high_days"`
	ConsecutiveDays       int    `json:"consecutive_days"`
	AlertOnRecentHigh     *bool  `json:"alert_on_recent_high"`
	AlertOnConsecutive    *bool  `json:"alert_on_consecutive"`
	ReminderIntervalHours int    `json:"reminder_interval_hours"`
}

// HandleList handles GET /api/fx-watch.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	watches, err := h.monitor.Watches()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"watches": watches,
		"count":   len(watches),
	})
}

// HandleCreate handles POST /api/fx-watch.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	// Unset toggles default to armed.
	watch := fx.Watch{
		Base:                  req.Base,
		Quote:                 req.Quote,
		RecentHighDays:        req.RecentHighDays,
		ConsecutiveDays:       req.ConsecutiveDays,
		AlertOnRecentHigh:     req.AlertOnRecentHigh == nil || *req.AlertOnRecentHigh,
		AlertOnConsecutive:    req.AlertOnConsecutive == nil || *req.AlertOnConsecutive,
		ReminderIntervalHours: req.ReminderIntervalHours,
	}

	created, err := h.monitor.AddWatch(watch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PATCH /api/fx-watch/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var patch fx.WatchPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	updated, err := h.monitor.UpdateWatch(id, patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/fx-watch/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.monitor.RemoveWatch(id); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// HandleCheck handles POST /api/fx-watch/check: evaluate without sending.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	results, err := h.monitor.CheckAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// HandleAlert handles POST /api/fx-watch/alert: evaluate and send, subject
// to cool-downs and the notification gate.
func (h *Handler) HandleAlert(w http.ResponseWriter, r *http.Request) {
	result, err := h.monitor.AlertAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleHistoryLong handles GET /api/forex/{base}/{quote}/history-long.
func (h *Handler) HandleHistoryLong(w http.ResponseWriter, r *http.Request) {
	bars, pair, err := h.monitor.HistoryLong(r.Context(), chi.URLParam(r, "base"), chi.URLParam(r, "quote"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pair":  pair,
		"bars":  bars,
		"count": len(bars),
	})
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, domain.Validationf("watch id must be an integer")
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
