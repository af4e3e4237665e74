package snapshots

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/domain"
)

const snapshotColumns = `id, snapshot_date, total_value, category_values, display_currency,
benchmark_values, benchmark_value, created_at, updated_at`

// Repository handles snapshot rows. Map columns are stored as JSON text.
type Repository struct {
	db    *sql.DB
	clock domain.Clock
	log   zerolog.Logger
}

// NewRepository creates a snapshots repository.
func NewRepository(db *sql.DB, clock domain.Clock, log zerolog.Logger) *Repository {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Repository{
		db:    db,
		clock: clock,
		log:   log.With().Str("repository", "snapshots").Logger(),
	}
}

// Upsert writes a snapshot keyed on its date. Every field except the date
// overwrites; re-running a snapshot inside one day keeps a single row.
func (r *Repository) Upsert(s Snapshot) error {
	categories, err := json.Marshal(s.CategoryValues)
	if err != nil {
		return fmt.Errorf("failed to encode category values: %w", err)
	}
	var benchmarks interface{}
	if s.BenchmarkValues != nil {
		encoded, err := json.Marshal(s.BenchmarkValues)
		if err != nil {
			return fmt.Errorf("failed to encode benchmark values: %w", err)
		}
		benchmarks = string(encoded)
	}

	now := r.clock.Now().Unix()
	_, err = r.db.Exec(`
		INSERT INTO portfolio_snapshots
			(snapshot_date, total_value, category_values, display_currency, benchmark_values, benchmark_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(snapshot_date) DO UPDATE SET
			total_value      = excluded.total_value,
			category_values  = excluded.category_values,
			display_currency = excluded.display_currency,
			benchmark_values = excluded.benchmark_values,
			benchmark_value  = excluded.benchmark_value,
			updated_at       = excluded.updated_at
	`, s.SnapshotDate, s.TotalValue, string(categories), s.DisplayCurrency, benchmarks, s.BenchmarkValue, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot %s: %w", s.SnapshotDate, err)
	}
	return nil
}

// UpdateBenchmarks rewrites only the benchmark columns of one snapshot.
func (r *Repository) UpdateBenchmarks(snapshotDate string, values map[string]*float64, legacy *float64) error {
	encoded, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode benchmark values: %w", err)
	}
	_, err = r.db.Exec(`
		UPDATE portfolio_snapshots
		SET benchmark_values = ?, benchmark_value = ?, updated_at = ?
		WHERE snapshot_date = ?
	`, string(encoded), legacy, r.clock.Now().Unix(), snapshotDate)
	if err != nil {
		return fmt.Errorf("failed to update benchmarks for %s: %w", snapshotDate, err)
	}
	return nil
}

// GetByDate returns the snapshot for one date, nil when none exists.
func (r *Repository) GetByDate(date string) (*Snapshot, error) {
	rows, err := r.db.Query("SELECT "+snapshotColumns+" FROM portfolio_snapshots WHERE snapshot_date = ?", date)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %s: %w", date, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSnapshot(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	return &s, nil
}

// GetAll returns every snapshot in date order.
func (r *Repository) GetAll() ([]Snapshot, error) {
	return r.querySnapshots("SELECT " + snapshotColumns + " FROM portfolio_snapshots ORDER BY snapshot_date")
}

// GetRange returns snapshots with start ≤ date ≤ end, in date order. Empty
// bounds are open.
func (r *Repository) GetRange(start, end string) ([]Snapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM portfolio_snapshots WHERE 1=1"
	var args []interface{}
	if start != "" {
		query += " AND snapshot_date >= ?"
		args = append(args, start)
	}
	if end != "" {
		query += " AND snapshot_date <= ?"
		args = append(args, end)
	}
	query += " ORDER BY snapshot_date"
	return r.querySnapshots(query, args...)
}

func (r *Repository) querySnapshots(query string, args ...interface{}) ([]Snapshot, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(rows *sql.Rows) (Snapshot, error) {
	var s Snapshot
	var categories string
	var benchmarks sql.NullString
	err := rows.Scan(
		&s.ID, &s.SnapshotDate, &s.TotalValue, &categories, &s.DisplayCurrency,
		&benchmarks, &s.BenchmarkValue, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}

	if err := json.Unmarshal([]byte(categories), &s.CategoryValues); err != nil {
		return Snapshot{}, fmt.Errorf("unreadable category values for %s: %w", s.SnapshotDate, err)
	}
	if benchmarks.Valid && benchmarks.String != "" {
		if err := json.Unmarshal([]byte(benchmarks.String), &s.BenchmarkValues); err != nil {
			return Snapshot{}, fmt.Errorf("unreadable benchmark values for %s: %w", s.SnapshotDate, err)
		}
	}
	return s, nil
}
