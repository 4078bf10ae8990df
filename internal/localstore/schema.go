package localstore

// schema is the local store schema. Every collection table carries the
// wire document fields plus a dirty flag; dirty=1 marks a document with
// local edits not yet accepted by the server.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    checked    INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    created_at TEXT NOT NULL,
    dirty      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_items_dirty ON items(dirty);

CREATE TABLE IF NOT EXISTS households (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    owner_id   TEXT,
    updated_at TEXT NOT NULL,
    created_at TEXT NOT NULL,
    dirty      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_households_dirty ON households(dirty);

CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL,
    name          TEXT,
    household_ids TEXT NOT NULL DEFAULT '[]',
    updated_at    TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    dirty         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_users_dirty ON users(dirty);

CREATE TABLE IF NOT EXISTS sync_state (
    collection   TEXT PRIMARY KEY,
    checkpoint   TEXT,
    last_sync_at TEXT,
    last_error   TEXT
);
`
