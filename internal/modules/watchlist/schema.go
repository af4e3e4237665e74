package watchlist

// Schema holds the DDL for the watchlist tables. Stocks are soft-deleted
// via the active flag; price alerts reference their stock by ticker and
// survive deactivation.
const Schema = `
CREATE TABLE IF NOT EXISTS stocks (
	ticker            TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL,
	is_etf            INTEGER NOT NULL DEFAULT 0,
	active            INTEGER NOT NULL DEFAULT 1,
	thesis            TEXT,
	thesis_updated_at INTEGER,
	last_scan_signal  TEXT,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stocks_active ON stocks(active);
CREATE INDEX IF NOT EXISTS idx_stocks_category ON stocks(category);

CREATE TABLE IF NOT EXISTS price_alerts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker       TEXT NOT NULL,
	kind         TEXT NOT NULL CHECK (kind IN ('above', 'below')),
	threshold    REAL NOT NULL,
	active       INTEGER NOT NULL DEFAULT 1,
	triggered_at INTEGER,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_alerts_ticker ON price_alerts(ticker);
CREATE INDEX IF NOT EXISTS idx_price_alerts_active ON price_alerts(active);
`
