// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for databases and caches (always absolute)
	DatabasePath string // SQLite database file
	DiskCacheDir string // Badger L2 cache directory
	Port         int
	DevMode      bool

	LogLevel  string
	LogFormat string // text or json
	LogDir    string // optional log file directory

	APIKey        string // shared auth key; empty disables auth
	EncryptionKey string // passphrase for secret encryption

	JPFinAPIKey    string // JP financial-statements provider
	TWFinAPIToken  string // TW financial-statements provider
	EdgarUserAgent string // polite User-Agent for the filings provider

	TelegramBotToken string
	TelegramChatID   string

	DisplayCurrency  string
	BenchmarkTickers []string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		DatabasePath: getEnv("DATABASE_URL", filepath.Join(absDataDir, "folio.db")),
		DiskCacheDir: getEnv("DISK_CACHE_DIR", filepath.Join(absDataDir, "diskcache")),
		Port:         getEnvAsInt("PORT", 8000),
		DevMode:      getEnvAsBool("DEV_MODE", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogDir:    getEnv("LOG_DIR", ""),

		APIKey:        getEnv("FOLIO_API_KEY", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		JPFinAPIKey:    getEnv("JPFIN_API_KEY", ""),
		TWFinAPIToken:  getEnv("TWFIN_API_TOKEN", ""),
		EdgarUserAgent: getEnv("EDGAR_USER_AGENT", "folio/1.0 (contact not configured)"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		DisplayCurrency:  getEnv("DISPLAY_CURRENCY", "USD"),
		BenchmarkTickers: getEnvAsSlice("BENCHMARK_TICKERS", []string{"SPY", "VT", "EWJ", "EWT"}),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:          getEnv("R2_BUCKET", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// settingsGetter is the slice of the settings repository the config layer
// needs. Values stored in the settings database take precedence over
// environment variables.
type settingsGetter interface {
	Get(key string) (*string, error)
}

// UpdateFromSettings overlays database-stored settings onto the loaded
// configuration. This should be called after the database is initialized.
func (c *Config) UpdateFromSettings(settings settingsGetter) error {
	chatID, err := settings.Get("telegram_chat_id")
	if err != nil {
		return fmt.Errorf("failed to get telegram_chat_id from settings: %w", err)
	}
	if chatID != nil && *chatID != "" {
		c.TelegramChatID = *chatID
	}

	benchmarks, err := settings.Get("benchmark_tickers")
	if err != nil {
		return fmt.Errorf("failed to get benchmark_tickers from settings: %w", err)
	}
	if benchmarks != nil && *benchmarks != "" {
		c.BenchmarkTickers = splitAndTrim(*benchmarks)
	}

	currency, err := settings.Get("display_currency")
	if err != nil {
		return fmt.Errorf("failed to get display_currency from settings: %w", err)
	}
	if currency != nil && *currency != "" {
		c.DisplayCurrency = strings.ToUpper(strings.TrimSpace(*currency))
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid LOG_FORMAT %q (want text or json)", c.LogFormat)
	}
	if len(c.BenchmarkTickers) == 0 {
		return fmt.Errorf("benchmark ticker list must not be empty")
	}
	return nil
}

// R2Configured reports whether every field of the off-site backup target is set.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.R2Bucket != ""
}

// AuthEnabled reports whether the shared-key check is active.
func (c *Config) AuthEnabled() bool { return c.APIKey != "" }

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitAndTrim(value); len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
