package scan

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
)

const logColumns = `id, run_id, ticker, signal, market_status, market_status_details, scanned_at`

// Repository persists per-ticker scan log rows.
type Repository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewRepository creates a scan repository.
func NewRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *Repository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Repository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "scan").Logger(),
	}
}

// InsertLogs stores one run's rows in a single transaction.
func (r *Repository) InsertLogs(rows []LogRow) error {
	if len(rows) == 0 {
		return nil
	}
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO scan_logs (run_id, ticker, signal, market_status, market_status_details, scanned_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare scan log insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range rows {
			details, err := json.Marshal(row.MarketStatusDetails)
			if err != nil {
				return fmt.Errorf("failed to marshal market details: %w", err)
			}
			_, err = stmt.Exec(row.RunID, row.Ticker, string(row.Signal), string(row.MarketStatus), string(details), row.ScannedAt)
			if err != nil {
				return fmt.Errorf("failed to insert scan log for %s: %w", row.Ticker, err)
			}
		}
		return nil
	})
}

// LogsByRun returns every row of one run, by ticker.
func (r *Repository) LogsByRun(runID string) ([]LogRow, error) {
	return r.queryLogs(
		"SELECT "+logColumns+" FROM scan_logs WHERE run_id = ? ORDER BY ticker",
		runID,
	)
}

// LogsByTicker returns a ticker's most recent rows, newest first.
func (r *Repository) LogsByTicker(ticker string, limit int) ([]LogRow, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.queryLogs(
		"SELECT "+logColumns+" FROM scan_logs WHERE ticker = ? ORDER BY scanned_at DESC, id DESC LIMIT ?",
		ticker, limit,
	)
}

func (r *Repository) queryLogs(query string, args ...interface{}) ([]LogRow, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan logs: %w", err)
	}
	defer rows.Close()

	var logs []LogRow
	for rows.Next() {
		var row LogRow
		var signal, status, details string
		if err := rows.Scan(&row.ID, &row.RunID, &row.Ticker, &signal, &status, &details, &row.ScannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		row.Signal = domain.ScanSignal(signal)
		row.MarketStatus = domain.MarketStatus(status)
		if err := json.Unmarshal([]byte(details), &row.MarketStatusDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal market details: %w", err)
		}
		logs = append(logs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scan logs: %w", err)
	}
	return logs, nil
}
