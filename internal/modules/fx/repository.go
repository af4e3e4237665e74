package fx

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

// watchColumns is the column list for the fx_watches table, used instead of
// SELECT * so schema changes break loudly.
const watchColumns = `id, base, quote, recent_high_days, consecutive_days,
alert_on_recent_high, alert_on_consecutive, reminder_interval_hours,
last_alerted_at, is_active, created_at, updated_at`

// Repository handles fx watch rows.
type Repository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewRepository creates an fx repository.
func NewRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *Repository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Repository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "fx").Logger(),
	}
}

// Get returns a watch by id, nil when no row exists.
func (r *Repository) Get(id int64) (*Watch, error) {
	rows, err := r.db.Query("SELECT "+watchColumns+" FROM fx_watches WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query fx watch: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	w, err := scanWatch(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fx watch: %w", err)
	}
	return &w, nil
}

// GetByPair returns the watch for a base/quote pair, nil when none exists.
func (r *Repository) GetByPair(base, quote string) (*Watch, error) {
	rows, err := r.db.Query("SELECT "+watchColumns+" FROM fx_watches WHERE base = ? AND quote = ?", base, quote)
	if err != nil {
		return nil, fmt.Errorf("failed to query fx watch: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	w, err := scanWatch(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fx watch: %w", err)
	}
	return &w, nil
}

// GetAll returns every watch, active first, then by pair.
func (r *Repository) GetAll() ([]Watch, error) {
	return r.queryWatches("SELECT " + watchColumns + " FROM fx_watches ORDER BY is_active DESC, base, quote")
}

// GetActive returns the watches the monitor evaluates.
func (r *Repository) GetActive() ([]Watch, error) {
	return r.queryWatches("SELECT " + watchColumns + " FROM fx_watches WHERE is_active = 1 ORDER BY base, quote")
}

func (r *Repository) queryWatches(query string, args ...interface{}) ([]Watch, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fx watches: %w", err)
	}
	defer rows.Close()

	var watches []Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fx watch: %w", err)
		}
		watches = append(watches, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fx watches: %w", err)
	}
	return watches, nil
}

func scanWatch(rows *sql.Rows) (Watch, error) {
	var w Watch
	var onHigh, onConsec, active int
	err := rows.Scan(
		&w.ID, &w.Base, &w.Quote, &w.RecentHighDays, &w.ConsecutiveDays,
		&onHigh, &onConsec, &w.ReminderIntervalHours,
		&w.LastAlertedAt, &active, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return Watch{}, err
	}
	w.AlertOnRecentHigh = onHigh != 0
	w.AlertOnConsecutive = onConsec != 0
	w.IsActive = active != 0
	return w, nil
}

// Create inserts a new watch and returns its id.
func (r *Repository) Create(w Watch) (int64, error) {
	now := r.clock.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO fx_watches
			(base, quote, recent_high_days, consecutive_days, alert_on_recent_high,
			 alert_on_consecutive, reminder_interval_hours, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, w.Base, w.Quote, w.RecentHighDays, w.ConsecutiveDays, boolToInt(w.AlertOnRecentHigh),
		boolToInt(w.AlertOnConsecutive), w.ReminderIntervalHours, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create fx watch %s/%s: %w", w.Base, w.Quote, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read fx watch id: %w", err)
	}
	return id, nil
}

// Update rewrites the trigger parameters and active flag of one watch.
// Reports whether a row was touched.
func (r *Repository) Update(w Watch) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE fx_watches
		SET recent_high_days = ?, consecutive_days = ?, alert_on_recent_high = ?,
		    alert_on_consecutive = ?, reminder_interval_hours = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, w.RecentHighDays, w.ConsecutiveDays, boolToInt(w.AlertOnRecentHigh),
		boolToInt(w.AlertOnConsecutive), w.ReminderIntervalHours, boolToInt(w.IsActive),
		r.clock.Now().Unix(), w.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update fx watch %d: %w", w.ID, err)
	}
	return touched(res), nil
}

// StampAlerted records the instant a watch last alerted.
func (r *Repository) StampAlerted(id int64, at int64) error {
	_, err := r.db.Exec(
		"UPDATE fx_watches SET last_alerted_at = ?, updated_at = ? WHERE id = ?",
		at, r.clock.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to stamp fx watch %d: %w", id, err)
	}
	return nil
}

// Delete removes a watch. Reports whether a row existed.
func (r *Repository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM fx_watches WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete fx watch %d: %w", id, err)
	}
	return touched(res), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func touched(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}
