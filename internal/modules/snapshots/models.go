// Package snapshots records one portfolio valuation per calendar date and
// keeps benchmark index closes alongside for comparison, including a
// backfill for dates captured before benchmarks were tracked.
package snapshots

// Snapshot is one daily portfolio valuation. BenchmarkValues maps a
// benchmark ticker to its close on (or before) the snapshot date; a nil
// entry means the close is not known yet and makes the row a backfill
// candidate. BenchmarkValue is the legacy single-benchmark scalar kept in
// sync for old rows that carry it.
type Snapshot struct {
	ID              int64               `json:"id"`
	SnapshotDate    string              `json:"snapshot_date"`
	TotalValue      float64             `json:"total_value"`
	CategoryValues  map[string]float64  `json:"category_values"`
	DisplayCurrency string              `json:"display_currency"`
	BenchmarkValues map[string]*float64 `json:"benchmark_values"`
	BenchmarkValue  *float64            `json:"benchmark_value,omitempty"`
	CreatedAt       int64               `json:"created_at"`
	UpdatedAt       int64               `json:"updated_at"`
}

// BackfillResult summarizes one benchmark backfill pass.
type BackfillResult struct {
	Scanned      int      `json:"scanned"`
	Deficient    int      `json:"deficient"`
	Updated      int      `json:"updated"`
	Benchmarks   []string `json:"benchmarks"`
	HistoryCalls int      `json:"history_calls"`
}

// TWRResult is the time-weighted return over a snapshot range.
type TWRResult struct {
	TWR       *float64 `json:"twr"`
	TWRPct    *float64 `json:"twr_pct"`
	Snapshots int      `json:"snapshots"`
	Start     string   `json:"start,omitempty"`
	End       string   `json:"end,omitempty"`
}
