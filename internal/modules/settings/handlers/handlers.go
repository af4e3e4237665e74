// Package handlers provides HTTP handlers for settings operations.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/settings"
)

// notifier is the slice of the notification gate the test endpoint needs.
type notifier interface {
	Send(ctx context.Context, text string) error
}

// Handler handles settings HTTP requests.
type Handler struct {
	service *settings.Service
	gate    notifier
	log     zerolog.Logger
}

// NewHandler creates a settings handler.
func NewHandler(service *settings.Service, gate notifier, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		gate:    gate,
		log:     log.With().Str("handler", "settings").Logger(),
	}
}

// HandleGetPreferences handles GET /api/settings/preferences.
func (h *Handler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.Preferences()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": prefs})
}

// HandleUpdatePreferences handles PUT /api/settings/preferences.
func (h *Handler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preferences map[string]bool `json:"preferences"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}
	if len(req.Preferences) == 0 {
		h.writeError(w, domain.Validationf("preferences must not be empty"))
		return
	}

	updated, err := h.service.UpdatePreferences(req.Preferences)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"preferences": updated})
}

// HandleGetTelegram handles GET /api/settings/telegram.
func (h *Handler) HandleGetTelegram(w http.ResponseWriter, r *http.Request) {
	tg, err := h.service.Telegram()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tg)
}

// HandleUpdateTelegram handles PUT /api/settings/telegram.
func (h *Handler) HandleUpdateTelegram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.Validationf("invalid request body"))
		return
	}

	if err := h.service.UpdateTelegram(req.Token, req.ChatID); err != nil {
		h.writeError(w, err)
		return
	}

	tg, err := h.service.Telegram()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tg)
}

// HandleTestTelegram handles POST /api/settings/telegram/test. It delivers
// a test message through the resolved channel, bypassing category gating:
// the user asked for it explicitly.
func (h *Handler) HandleTestTelegram(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Send(r.Context(), "folio: test notification ✔"); err != nil {
		h.log.Warn().Err(err).Msg("telegram test failed")
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"sent":   false,
			"detail": err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"sent": true})
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
