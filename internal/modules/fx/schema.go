package fx

// Schema holds the DDL for fx watches. One watch per pair; deactivation
// keeps the row so its parameters and alert history survive.
const Schema = `
CREATE TABLE IF NOT EXISTS fx_watches (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	base                    TEXT NOT NULL,
	quote                   TEXT NOT NULL,
	recent_high_days        INTEGER NOT NULL DEFAULT 30,
	consecutive_days        INTEGER NOT NULL DEFAULT 3,
	alert_on_recent_high    INTEGER NOT NULL DEFAULT 1,
	alert_on_consecutive    INTEGER NOT NULL DEFAULT 1,
	reminder_interval_hours INTEGER NOT NULL DEFAULT 24,
	last_alerted_at         INTEGER,
	is_active               INTEGER NOT NULL DEFAULT 1,
	created_at              INTEGER NOT NULL,
	updated_at              INTEGER NOT NULL,
	UNIQUE(base, quote)
);

CREATE INDEX IF NOT EXISTS idx_fx_watches_active ON fx_watches(is_active);
`
