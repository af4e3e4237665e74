package settings

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/notify"
	"github.com/aristath/folio/internal/secrets"
)

// Setting keys. The telegram token is stored encrypted; everything else is
// plain text.
const (
	keyPreferences      = "notification_preferences"
	keyTelegramToken    = "telegram_bot_token"
	keyTelegramChatID   = "telegram_chat_id"
	keyBenchmarkTickers = "benchmark_tickers"
)

// TelegramSettings is the client-safe view of the channel override. The
// token itself never leaves the service.
type TelegramSettings struct {
	ChatID   string `json:"chat_id"`
	TokenSet bool   `json:"token_set"`
}

// Service provides typed access over the settings rows.
type Service struct {
	repo *Repository
	box  *secrets.Box // nil when no ENCRYPTION_KEY is configured
	log  zerolog.Logger
}

// NewService creates a settings service. box may be nil; storing a telegram
// token then fails validation instead of writing plaintext.
func NewService(repo *Repository, box *secrets.Box, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		box:  box,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// Preferences returns the per-category notification switches with every
// known category present, defaulting to enabled.
func (s *Service) Preferences() (map[string]bool, error) {
	prefs := make(map[string]bool, len(notify.Categories))
	for _, c := range notify.Categories {
		prefs[string(c)] = true
	}

	raw, err := s.repo.Get(keyPreferences)
	if err != nil {
		return nil, err
	}
	if raw == nil || *raw == "" {
		return prefs, nil
	}

	var stored map[string]bool
	if err := json.Unmarshal([]byte(*raw), &stored); err != nil {
		s.log.Warn().Err(err).Msg("unreadable notification preferences, using defaults")
		return prefs, nil
	}
	for category, enabled := range stored {
		prefs[category] = enabled
	}
	return prefs, nil
}

// UpdatePreferences stores the per-category switches. Unknown categories
// are rejected so typos do not silently create dead settings.
func (s *Service) UpdatePreferences(prefs map[string]bool) (map[string]bool, error) {
	for category := range prefs {
		if !notify.Category(category).IsValid() {
			return nil, domain.Validationf("unknown notification category %q", category)
		}
	}

	current, err := s.Preferences()
	if err != nil {
		return nil, err
	}
	for category, enabled := range prefs {
		current[category] = enabled
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := s.repo.Set(keyPreferences, string(encoded)); err != nil {
		return nil, err
	}
	return current, nil
}

// NotificationEnabled reports the switch for one category, defaulting to
// enabled. Implements the notification gate's preference source.
func (s *Service) NotificationEnabled(category string) (bool, error) {
	prefs, err := s.Preferences()
	if err != nil {
		return true, err
	}
	enabled, ok := prefs[category]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// Telegram returns the client-safe view of the channel override.
func (s *Service) Telegram() (TelegramSettings, error) {
	token, err := s.repo.Get(keyTelegramToken)
	if err != nil {
		return TelegramSettings{}, err
	}
	chatID, err := s.repo.Get(keyTelegramChatID)
	if err != nil {
		return TelegramSettings{}, err
	}

	out := TelegramSettings{TokenSet: token != nil && *token != ""}
	if chatID != nil {
		out.ChatID = *chatID
	}
	return out, nil
}

// UpdateTelegram stores the channel override. The token is encrypted at
// rest; an empty token clears the override. Requires an encryption key when
// a token is supplied.
func (s *Service) UpdateTelegram(token, chatID string) error {
	if token != "" {
		if s.box == nil {
			return domain.Validationf("ENCRYPTION_KEY must be configured to store a telegram token")
		}
		sealed, err := s.box.Encrypt(token)
		if err != nil {
			return fmt.Errorf("failed to encrypt telegram token: %w", err)
		}
		if err := s.repo.Set(keyTelegramToken, sealed); err != nil {
			return err
		}
	} else {
		if err := s.repo.Delete(keyTelegramToken); err != nil {
			return err
		}
	}

	if chatID != "" {
		return s.repo.Set(keyTelegramChatID, chatID)
	}
	return s.repo.Delete(keyTelegramChatID)
}

// TelegramCredentials returns the decrypted channel override for use at
// send time. Unset, unreadable or undecryptable values come back empty;
// the gate then falls back to the system default channel. Implements the
// notification gate's credential source.
func (s *Service) TelegramCredentials() (string, string) {
	var token, chatID string

	if raw, err := s.repo.Get(keyTelegramToken); err == nil && raw != nil && s.box != nil {
		token = s.box.Decrypt(*raw)
	}
	if raw, err := s.repo.Get(keyTelegramChatID); err == nil && raw != nil {
		chatID = *raw
	}
	return token, chatID
}

// Get exposes raw settings reads for the config overlay.
func (s *Service) Get(key string) (*string, error) { return s.repo.Get(key) }

// SetBenchmarkTickers stores the snapshot benchmark list as CSV.
func (s *Service) SetBenchmarkTickers(csv string) error {
	return s.repo.Set(keyBenchmarkTickers, csv)
}
