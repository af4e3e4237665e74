package gurus

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
)

const guruColumns = `cik, name, active, created_at, updated_at`

const filingColumns = `id, guru_cik, accession_no, report_date, filed_at,
total_value, is_current, created_at`

const holdingColumns = `id, filing_id, cusip, ticker, company, value, shares,
action, change_pct, weight_pct`

// Repository handles guru, filing and holding rows. Reads that feed the
// dashboards are bulk loads; callers join in memory.
type Repository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewRepository creates a gurus repository.
func NewRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *Repository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Repository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "gurus").Logger(),
	}
}

// --- gurus ---

// Get returns a guru by CIK, nil when no row exists.
func (r *Repository) Get(cik string) (*Guru, error) {
	rows, err := r.db.Query("SELECT "+guruColumns+" FROM gurus WHERE cik = ?", cik)
	if err != nil {
		return nil, fmt.Errorf("failed to query guru: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	g, err := scanGuru(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan guru: %w", err)
	}
	return &g, nil
}

// GetAll returns every guru, active first, then by name.
func (r *Repository) GetAll() ([]Guru, error) {
	return r.queryGurus("SELECT " + guruColumns + " FROM gurus ORDER BY active DESC, name")
}

// GetActive returns the gurus the sync job processes.
func (r *Repository) GetActive() ([]Guru, error) {
	return r.queryGurus("SELECT " + guruColumns + " FROM gurus WHERE active = 1 ORDER BY name")
}

func (r *Repository) queryGurus(query string, args ...interface{}) ([]Guru, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query gurus: %w", err)
	}
	defer rows.Close()

	var gurus []Guru
	for rows.Next() {
		g, err := scanGuru(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guru: %w", err)
		}
		gurus = append(gurus, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gurus: %w", err)
	}
	return gurus, nil
}

func scanGuru(rows *sql.Rows) (Guru, error) {
	var g Guru
	var active int
	if err := rows.Scan(&g.CIK, &g.Name, &active, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return Guru{}, err
	}
	g.Active = active != 0
	return g, nil
}

// Create inserts a new guru.
func (r *Repository) Create(g Guru) error {
	now := r.clock.Now().Unix()
	_, err := r.db.Exec(
		"INSERT INTO gurus (cik, name, active, created_at, updated_at) VALUES (?, ?, 1, ?, ?)",
		g.CIK, g.Name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create guru %s: %w", g.CIK, err)
	}
	return nil
}

// Delete removes a guru with all its filings and holdings. Reports whether
// the guru existed.
func (r *Repository) Delete(cik string) (bool, error) {
	existed := false
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM filing_holdings
			WHERE filing_id IN (SELECT id FROM filings WHERE guru_cik = ?)
		`, cik); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM filings WHERE guru_cik = ?", cik); err != nil {
			return err
		}
		res, err := tx.Exec("DELETE FROM gurus WHERE cik = ?", cik)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		existed = err == nil && n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete guru %s: %w", cik, err)
	}
	return existed, nil
}

// --- filings ---

// FilingByAccession returns a stored filing by accession number, nil when
// the filing was never synced.
func (r *Repository) FilingByAccession(accessionNo string) (*Filing, error) {
	return r.oneFiling("SELECT "+filingColumns+" FROM filings WHERE accession_no = ?", accessionNo)
}

// CurrentFiling returns the guru's current filing, nil when none stored.
func (r *Repository) CurrentFiling(cik string) (*Filing, error) {
	return r.oneFiling("SELECT "+filingColumns+" FROM filings WHERE guru_cik = ? AND is_current = 1", cik)
}

// LatestFilingBefore returns the guru's most recent filing strictly older
// than reportDate, so amendments to the same quarter never become their own
// baseline.
func (r *Repository) LatestFilingBefore(cik, reportDate string) (*Filing, error) {
	return r.oneFiling(`
		SELECT `+filingColumns+` FROM filings
		WHERE guru_cik = ? AND report_date < ?
		ORDER BY report_date DESC, filed_at DESC LIMIT 1
	`, cik, reportDate)
}

// FilingsByGuru returns a guru's filings, newest first.
func (r *Repository) FilingsByGuru(cik string) ([]Filing, error) {
	return r.queryFilings(
		"SELECT "+filingColumns+" FROM filings WHERE guru_cik = ? ORDER BY report_date DESC, filed_at DESC",
		cik,
	)
}

// CurrentFilings returns every guru's current filing in one query.
func (r *Repository) CurrentFilings() ([]Filing, error) {
	return r.queryFilings("SELECT " + filingColumns + " FROM filings WHERE is_current = 1")
}

// FilingCounts returns the number of stored filings per guru in one query.
func (r *Repository) FilingCounts() (map[string]int, error) {
	rows, err := r.db.Query("SELECT guru_cik, COUNT(*) FROM filings GROUP BY guru_cik")
	if err != nil {
		return nil, fmt.Errorf("failed to count filings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cik string
		var n int
		if err := rows.Scan(&cik, &n); err != nil {
			return nil, fmt.Errorf("failed to scan filing count: %w", err)
		}
		counts[cik] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filing counts: %w", err)
	}
	return counts, nil
}

func (r *Repository) oneFiling(query string, args ...interface{}) (*Filing, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query filing: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	f, err := scanFiling(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan filing: %w", err)
	}
	return &f, nil
}

func (r *Repository) queryFilings(query string, args ...interface{}) ([]Filing, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query filings: %w", err)
	}
	defer rows.Close()

	var filings []Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filing: %w", err)
		}
		filings = append(filings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filings: %w", err)
	}
	return filings, nil
}

func scanFiling(rows *sql.Rows) (Filing, error) {
	var f Filing
	var current int
	err := rows.Scan(
		&f.ID, &f.GuruCIK, &f.AccessionNo, &f.ReportDate, &f.FiledAt,
		&f.TotalValue, &current, &f.CreatedAt,
	)
	if err != nil {
		return Filing{}, err
	}
	f.IsCurrent = current != 0
	return f, nil
}

// CreateFiling stores a filing with its holdings in one transaction and
// returns the filing id. The filing starts non-current; MarkCurrent
// promotes the newest afterwards.
func (r *Repository) CreateFiling(f Filing, holdings []Holding) (int64, error) {
	var id int64
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO filings (guru_cik, accession_no, report_date, filed_at, total_value, is_current, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`, f.GuruCIK, f.AccessionNo, f.ReportDate, f.FiledAt, f.TotalValue, r.clock.Now().Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO filing_holdings (filing_id, cusip, ticker, company, value, shares, action, change_pct, weight_pct)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, h := range holdings {
			if _, err := stmt.Exec(id, h.Cusip, h.Ticker, h.Company, h.Value, h.Shares,
				string(h.Action), h.ChangePct, h.WeightPct); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store filing %s: %w", f.AccessionNo, err)
	}
	return id, nil
}

// MarkCurrent points the guru's current flag at its newest filing.
func (r *Repository) MarkCurrent(cik string) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("UPDATE filings SET is_current = 0 WHERE guru_cik = ?", cik); err != nil {
			return err
		}
		_, err := tx.Exec(`
			UPDATE filings SET is_current = 1
			WHERE id = (
				SELECT id FROM filings WHERE guru_cik = ?
				ORDER BY report_date DESC, filed_at DESC LIMIT 1
			)
		`, cik)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark current filing for %s: %w", cik, err)
	}
	return nil
}

// --- holdings ---

// HoldingsByFiling returns one filing's rows, largest weight first.
func (r *Repository) HoldingsByFiling(filingID int64) ([]Holding, error) {
	return r.queryHoldings(
		"SELECT "+holdingColumns+" FROM filing_holdings WHERE filing_id = ? ORDER BY weight_pct DESC, value DESC",
		filingID,
	)
}

// HoldingsByFilings bulk-loads rows for a set of filings in one query,
// keyed by filing id.
func (r *Repository) HoldingsByFilings(filingIDs []int64) (map[int64][]Holding, error) {
	out := make(map[int64][]Holding, len(filingIDs))
	if len(filingIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filingIDs)), ",")
	args := make([]interface{}, len(filingIDs))
	for i, id := range filingIDs {
		args[i] = id
	}

	holdings, err := r.queryHoldings(
		"SELECT "+holdingColumns+" FROM filing_holdings WHERE filing_id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, err
	}
	for _, h := range holdings {
		out[h.FilingID] = append(out[h.FilingID], h)
	}
	return out, nil
}

func (r *Repository) queryHoldings(query string, args ...interface{}) ([]Holding, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query filing holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		var h Holding
		var action string
		err := rows.Scan(
			&h.ID, &h.FilingID, &h.Cusip, &h.Ticker, &h.Company,
			&h.Value, &h.Shares, &action, &h.ChangePct, &h.WeightPct,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filing holding: %w", err)
		}
		h.Action = domain.FilingAction(action)
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filing holdings: %w", err)
	}
	return holdings, nil
}

// --- cusip map ---

// CusipMap returns every stored CUSIP-to-ticker mapping.
func (r *Repository) CusipMap() (map[string]string, error) {
	rows, err := r.db.Query("SELECT cusip, ticker FROM cusip_tickers")
	if err != nil {
		return nil, fmt.Errorf("failed to query cusip map: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var cusip, ticker string
		if err := rows.Scan(&cusip, &ticker); err != nil {
			return nil, fmt.Errorf("failed to scan cusip mapping: %w", err)
		}
		m[cusip] = ticker
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cusip map: %w", err)
	}
	return m, nil
}

// UnmappedCusips returns the distinct CUSIP and company pairs that have no
// ticker on any holding row and no entry in the map table.
func (r *Repository) UnmappedCusips() (map[string]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT cusip, company FROM filing_holdings
		WHERE ticker IS NULL
		  AND cusip NOT IN (SELECT cusip FROM cusip_tickers)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmapped cusips: %w", err)
	}
	defer rows.Close()

	m := make(map[string]string)
	for rows.Next() {
		var cusip, company string
		if err := rows.Scan(&cusip, &company); err != nil {
			return nil, fmt.Errorf("failed to scan unmapped cusip: %w", err)
		}
		m[cusip] = company
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unmapped cusips: %w", err)
	}
	return m, nil
}

// PutCusip stores or replaces one mapping.
func (r *Repository) PutCusip(cusip, ticker string) error {
	_, err := r.db.Exec(`
		INSERT INTO cusip_tickers (cusip, ticker) VALUES (?, ?)
		ON CONFLICT(cusip) DO UPDATE SET ticker = excluded.ticker
	`, cusip, ticker)
	if err != nil {
		return fmt.Errorf("failed to store cusip mapping %s: %w", cusip, err)
	}
	return nil
}

// ApplyCusipMap fills the ticker column of unmapped holding rows from the
// map table, returning the number of rows updated. New mappings reach back
// into previously synced filings.
func (r *Repository) ApplyCusipMap() (int64, error) {
	res, err := r.db.Exec(`
		UPDATE filing_holdings
		SET ticker = (SELECT ticker FROM cusip_tickers WHERE cusip = filing_holdings.cusip)
		WHERE ticker IS NULL
		  AND cusip IN (SELECT cusip FROM cusip_tickers)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to apply cusip map: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}
