package gurus

// Schema holds the DDL for the guru tables. The partial unique index is
// what enforces one current filing per guru; cusip_tickers accumulates
// CUSIP-to-ticker mappings discovered during syncs.
const Schema = `
CREATE TABLE IF NOT EXISTS gurus (
	cik        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS filings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	guru_cik     TEXT NOT NULL,
	accession_no TEXT NOT NULL UNIQUE,
	report_date  TEXT NOT NULL,
	filed_at     TEXT NOT NULL,
	total_value  REAL NOT NULL DEFAULT 0,
	is_current   INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_filings_guru ON filings(guru_cik, report_date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_filings_one_current ON filings(guru_cik) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS filing_holdings (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	filing_id  INTEGER NOT NULL,
	cusip      TEXT NOT NULL,
	ticker     TEXT,
	company    TEXT NOT NULL,
	value      REAL NOT NULL,
	shares     REAL NOT NULL,
	action     TEXT NOT NULL,
	change_pct REAL,
	weight_pct REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_filing_holdings_filing ON filing_holdings(filing_id);
CREATE INDEX IF NOT EXISTS idx_filing_holdings_ticker ON filing_holdings(ticker);

CREATE TABLE IF NOT EXISTS cusip_tickers (
	cusip  TEXT PRIMARY KEY,
	ticker TEXT NOT NULL
);
`
