package watchlist

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

// stockColumns is the column list for the stocks table, used instead of
// SELECT * so schema changes break loudly.
const stockColumns = `ticker, name, category, is_etf, active, thesis,
thesis_updated_at, last_scan_signal, created_at, updated_at`

// Repository handles stock rows.
type Repository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewRepository creates a watchlist repository.
func NewRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *Repository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Repository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "watchlist").Logger(),
	}
}

// NormalizeTicker canonicalizes user input: trimmed, uppercased.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Get returns a stock by ticker, nil when no row exists.
func (r *Repository) Get(ticker string) (*Stock, error) {
	query := "SELECT " + stockColumns + " FROM stocks WHERE ticker = ?"

	rows, err := r.db.Query(query, NormalizeTicker(ticker))
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	stock, err := scanStock(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan stock: %w", err)
	}
	return &stock, nil
}

// GetAll returns every stock, active first, then by ticker.
func (r *Repository) GetAll() ([]Stock, error) {
	query := "SELECT " + stockColumns + " FROM stocks ORDER BY active DESC, ticker"
	return r.queryStocks(query)
}

// GetActive returns the active watchlist ordered by ticker.
func (r *Repository) GetActive() ([]Stock, error) {
	query := "SELECT " + stockColumns + " FROM stocks WHERE active = 1 ORDER BY ticker"
	return r.queryStocks(query)
}

// GetRemoved returns deactivated stocks ordered by ticker.
func (r *Repository) GetRemoved() ([]Stock, error) {
	query := "SELECT " + stockColumns + " FROM stocks WHERE active = 0 ORDER BY ticker"
	return r.queryStocks(query)
}

func (r *Repository) queryStocks(query string, args ...interface{}) ([]Stock, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}
	return stocks, nil
}

func scanStock(rows *sql.Rows) (Stock, error) {
	var s Stock
	var isETF, active int
	err := rows.Scan(
		&s.Ticker, &s.Name, &s.Category, &isETF, &active,
		&s.Thesis, &s.ThesisUpdatedAt, &s.LastScanSignal,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return Stock{}, err
	}
	s.IsETF = isETF != 0
	s.Active = active != 0
	return s, nil
}

// Create inserts a new stock row.
func (r *Repository) Create(s Stock) error {
	now := r.clock.Now().Unix()
	_, err := r.db.Exec(`
		INSERT INTO stocks (ticker, name, category, is_etf, active, thesis, thesis_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, NormalizeTicker(s.Ticker), s.Name, string(s.Category), boolToInt(s.IsETF), boolToInt(s.Active),
		s.Thesis, s.ThesisUpdatedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to create stock %s: %w", s.Ticker, err)
	}
	return nil
}

// UpdateCategory changes the category of one stock. Reports whether a row
// was touched.
func (r *Repository) UpdateCategory(ticker string, category domain.Category) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE stocks SET category = ?, updated_at = ? WHERE ticker = ?",
		string(category), r.clock.Now().Unix(), NormalizeTicker(ticker),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update category for %s: %w", ticker, err)
	}
	return touched(res), nil
}

// SetActive flips the soft-delete flag. Reports whether a row was touched.
func (r *Repository) SetActive(ticker string, active bool) (bool, error) {
	res, err := r.db.Exec(
		"UPDATE stocks SET active = ?, updated_at = ? WHERE ticker = ?",
		boolToInt(active), r.clock.Now().Unix(), NormalizeTicker(ticker),
	)
	if err != nil {
		return false, fmt.Errorf("failed to set active for %s: %w", ticker, err)
	}
	return touched(res), nil
}

// SetThesis stores the investment thesis. An empty thesis clears the column.
func (r *Repository) SetThesis(ticker, thesis string) (bool, error) {
	now := r.clock.Now().Unix()

	var res sql.Result
	var err error
	if thesis == "" {
		res, err = r.db.Exec(
			"UPDATE stocks SET thesis = NULL, thesis_updated_at = NULL, updated_at = ? WHERE ticker = ?",
			now, NormalizeTicker(ticker),
		)
	} else {
		res, err = r.db.Exec(
			"UPDATE stocks SET thesis = ?, thesis_updated_at = ?, updated_at = ? WHERE ticker = ?",
			thesis, now, now, NormalizeTicker(ticker),
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to set thesis for %s: %w", ticker, err)
	}
	return touched(res), nil
}

// UpdateLastScanSignal records the most recent scan outcome for a ticker.
func (r *Repository) UpdateLastScanSignal(ticker string, signal domain.ScanSignal) error {
	_, err := r.db.Exec(
		"UPDATE stocks SET last_scan_signal = ?, updated_at = ? WHERE ticker = ?",
		string(signal), r.clock.Now().Unix(), NormalizeTicker(ticker),
	)
	if err != nil {
		return fmt.Errorf("failed to update last scan signal for %s: %w", ticker, err)
	}
	return nil
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
