package notify

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Schema holds the DDL for the notification ledger: one row per category
// tracking the most recent send.
const Schema = `
CREATE TABLE IF NOT EXISTS notification_ledger (
	category     TEXT PRIMARY KEY,
	last_sent_at INTEGER NOT NULL
);
`

// LedgerRepository persists the last-send instant per category.
type LedgerRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLedgerRepository creates a ledger repository.
func NewLedgerRepository(db *sql.DB, log zerolog.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:  db,
		log: log.With().Str("repository", "notification_ledger").Logger(),
	}
}

// LastSent returns when the category last went out, nil when it never has.
func (r *LedgerRepository) LastSent(category Category) (*time.Time, error) {
	var unix int64
	err := r.db.QueryRow(
		"SELECT last_sent_at FROM notification_ledger WHERE category = ?",
		string(category),
	).Scan(&unix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notification ledger for %s: %w", category, err)
	}
	t := time.Unix(unix, 0).UTC()
	return &t, nil
}

// LogSent records a send at the given instant, replacing any earlier entry.
func (r *LedgerRepository) LogSent(category Category, at time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO notification_ledger (category, last_sent_at)
		VALUES (?, ?)
		ON CONFLICT(category) DO UPDATE SET last_sent_at = excluded.last_sent_at
	`, string(category), at.Unix())
	if err != nil {
		return fmt.Errorf("failed to log notification for %s: %w", category, err)
	}
	return nil
}
