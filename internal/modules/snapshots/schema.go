package snapshots

// Schema holds the DDL for the portfolio snapshots table. The unique index
// on snapshot_date is what makes the daily snapshot an upsert.
const Schema = `
CREATE TABLE IF NOT EXISTS portfolio_snapshots (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_date    TEXT NOT NULL UNIQUE,
	total_value      REAL NOT NULL,
	category_values  TEXT NOT NULL DEFAULT '{}',
	display_currency TEXT NOT NULL DEFAULT 'USD',
	benchmark_values TEXT,
	benchmark_value  REAL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_date ON portfolio_snapshots(snapshot_date);
`
