package watchlist

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const alertColumns = `id, ticker, kind, threshold, active, triggered_at, created_at`

// AlertRepository handles price-alert rows.
type AlertRepository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewAlertRepository creates a price-alert repository.
func NewAlertRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *AlertRepository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &AlertRepository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "price_alerts").Logger(),
	}
}

// Create inserts a new active alert and returns its id.
func (r *AlertRepository) Create(ticker string, kind AlertKind, threshold float64) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO price_alerts (ticker, kind, threshold, active, created_at)
		VALUES (?, ?, ?, 1, ?)
	`, NormalizeTicker(ticker), string(kind), threshold, r.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to create price alert for %s: %w", ticker, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read price alert id: %w", err)
	}
	return id, nil
}

// Get returns one alert by id, nil when no row exists.
func (r *AlertRepository) Get(id int64) (*PriceAlert, error) {
	rows, err := r.db.Query("SELECT "+alertColumns+" FROM price_alerts WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query price alert %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	alert, err := scanAlert(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan price alert: %w", err)
	}
	return &alert, nil
}

// ListByTicker returns every alert for a ticker, newest first.
func (r *AlertRepository) ListByTicker(ticker string) ([]PriceAlert, error) {
	return r.queryAlerts(
		"SELECT "+alertColumns+" FROM price_alerts WHERE ticker = ? ORDER BY id DESC",
		NormalizeTicker(ticker),
	)
}

// GetActive returns every active alert across tickers.
func (r *AlertRepository) GetActive() ([]PriceAlert, error) {
	return r.queryAlerts("SELECT " + alertColumns + " FROM price_alerts WHERE active = 1 ORDER BY ticker, id")
}

func (r *AlertRepository) queryAlerts(query string, args ...interface{}) ([]PriceAlert, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price alerts: %w", err)
	}
	defer rows.Close()

	var alerts []PriceAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price alerts: %w", err)
	}
	return alerts, nil
}

func scanAlert(rows *sql.Rows) (PriceAlert, error) {
	var a PriceAlert
	var active int
	var kind string
	err := rows.Scan(&a.ID, &a.Ticker, &kind, &a.Threshold, &active, &a.TriggeredAt, &a.CreatedAt)
	if err != nil {
		return PriceAlert{}, err
	}
	a.Kind = AlertKind(kind)
	a.Active = active != 0
	return a, nil
}

// MarkTriggered deactivates a fired alert and stamps the trigger instant.
// Alerts fire once; the user re-arms by creating a new one.
func (r *AlertRepository) MarkTriggered(id int64, at time.Time) error {
	_, err := r.db.Exec(
		"UPDATE price_alerts SET active = 0, triggered_at = ? WHERE id = ?",
		at.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark price alert %d triggered: %w", id, err)
	}
	return nil
}

// Delete removes an alert row. Reports whether a row was touched.
func (r *AlertRepository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM price_alerts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete price alert %d: %w", id, err)
	}
	return touched(res), nil
}
