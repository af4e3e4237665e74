package scan

// Schema creates the scan log table.
const Schema = `
CREATE TABLE IF NOT EXISTS scan_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    ticker TEXT NOT NULL,
    signal TEXT NOT NULL,
    market_status TEXT NOT NULL,
    market_status_details TEXT NOT NULL DEFAULT '{}',
    scanned_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_logs_ticker ON scan_logs(ticker, scanned_at DESC);
CREATE INDEX IF NOT EXISTS idx_scan_logs_run ON scan_logs(run_id);
`
