package serverdb

// ServerSchemaVersion is the current schema version.
const ServerSchemaVersion = 2

// serverSchema is the baseline schema (version 1). Collection tables
// carry the wire document fields; membership is relational and projected
// into the users wire document on pull.
const serverSchema = `
CREATE TABLE IF NOT EXISTS items (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    checked    INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_updated ON items(updated_at);

CREATE TABLE IF NOT EXISTS households (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    owner_id   TEXT,
    updated_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_households_updated ON households(updated_at);

CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL,
    name       TEXT,
    updated_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_updated ON users(updated_at);

CREATE TABLE IF NOT EXISTS household_members (
    user_id      TEXT NOT NULL,
    household_id TEXT NOT NULL,
    created_at   TEXT NOT NULL,
    UNIQUE(user_id, household_id)
);
CREATE INDEX IF NOT EXISTS idx_members_user ON household_members(user_id);
`

// Migration is a single schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations lists schema changes past the baseline, in order.
var Migrations = []Migration{
	{
		Version:     2,
		Description: "index household_members by household for reverse lookups",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_members_household ON household_members(household_id);`,
	},
}
