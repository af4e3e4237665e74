package settings

// Schema holds the DDL for the settings table. Settings are key-value rows
// overlaying the environment configuration; secret values are stored
// encrypted.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`
