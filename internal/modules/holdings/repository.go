package holdings

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const holdingColumns = `id, ticker, category, quantity, cost_basis, currency, broker, is_cash, created_at, updated_at`

// Repository handles holding rows.
type Repository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewRepository creates a holdings repository.
func NewRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *Repository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Repository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "holdings").Logger(),
	}
}

// GetAll returns every holding, cash rows last, then by ticker.
func (r *Repository) GetAll() ([]Holding, error) {
	query := "SELECT " + holdingColumns + " FROM holdings ORDER BY is_cash, ticker, id"
	return r.queryHoldings(query)
}

// Get returns one holding by id, nil when no row exists.
func (r *Repository) Get(id int64) (*Holding, error) {
	rows, err := r.db.Query("SELECT "+holdingColumns+" FROM holdings WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query holding %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	holding, err := scanHolding(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan holding: %w", err)
	}
	return &holding, nil
}

// Tickers returns the distinct non-cash tickers held.
func (r *Repository) Tickers() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT ticker FROM holdings WHERE is_cash = 0 ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query holding tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}
	return tickers, nil
}

func (r *Repository) queryHoldings(query string, args ...interface{}) ([]Holding, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		holding, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, holding)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

func scanHolding(rows *sql.Rows) (Holding, error) {
	var h Holding
	var isCash int
	err := rows.Scan(
		&h.ID, &h.Ticker, &h.Category, &h.Quantity, &h.CostBasis,
		&h.Currency, &h.Broker, &isCash, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return Holding{}, err
	}
	h.IsCash = isCash != 0
	return h, nil
}

// Create inserts a holding row and returns its id.
func (r *Repository) Create(h Holding) (int64, error) {
	now := r.clock.Now().Unix()
	res, err := r.db.Exec(`
		INSERT INTO holdings (ticker, category, quantity, cost_basis, currency, broker, is_cash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.Ticker, string(h.Category), h.Quantity, h.CostBasis, strings.ToUpper(h.Currency), h.Broker,
		boolToInt(h.IsCash), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create holding %s: %w", h.Ticker, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read holding id: %w", err)
	}
	return id, nil
}

// Update overwrites the mutable fields of a holding. Reports whether a row
// was touched.
func (r *Repository) Update(id int64, h Holding) (bool, error) {
	res, err := r.db.Exec(`
		UPDATE holdings
		SET ticker = ?, category = ?, quantity = ?, cost_basis = ?, currency = ?, broker = ?, is_cash = ?, updated_at = ?
		WHERE id = ?
	`, h.Ticker, string(h.Category), h.Quantity, h.CostBasis, strings.ToUpper(h.Currency), h.Broker,
		boolToInt(h.IsCash), r.clock.Now().Unix(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update holding %d: %w", id, err)
	}
	return touched(res), nil
}

// Delete removes a holding row. Reports whether a row was touched.
func (r *Repository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM holdings WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete holding %d: %w", id, err)
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
