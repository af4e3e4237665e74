package holdings

// Schema holds the DDL for the holdings table. One row per lot; cash rows
// are flagged and keep the amount in quantity.
const Schema = `
CREATE TABLE IF NOT EXISTS holdings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker     TEXT NOT NULL,
	category   TEXT NOT NULL,
	quantity   REAL NOT NULL CHECK (quantity > 0),
	cost_basis REAL,
	currency   TEXT NOT NULL,
	broker     TEXT,
	is_cash    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_holdings_ticker ON holdings(ticker);
CREATE INDEX IF NOT EXISTS idx_holdings_category ON holdings(category);
`
