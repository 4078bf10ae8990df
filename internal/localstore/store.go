// Package localstore is the embedded per-device document store. It holds
// one table per synchronized collection plus per-collection sync state,
// tracks locally modified (dirty) documents, and feeds live filtered
// subscriptions to callers. It has no dependency on the network.
package localstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const dbFile = ".shoplist/local.db"

// Store wraps the local database connection.
type Store struct {
	conn *sql.DB
	hub  *hub
}

// Open opens an existing local store.
func Open(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("local store not found: run 'shoplist init' first")
	}

	return open(dbPath)
}

// Initialize creates the local store, including its directory and schema.
func Initialize(baseDir string) (*Store, error) {
	dbPath := filepath.Join(baseDir, dbFile)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	return open(dbPath)
}

func open(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	// WAL keeps UI reads concurrent with sync writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{conn: conn, hub: newHub()}, nil
}

// NewMemory opens an in-memory store for tests.
func NewMemory(conn *sql.DB) (*Store, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{conn: conn, hub: newHub()}, nil
}

// Close closes the local store.
func (s *Store) Close() error {
	s.hub.closeAll()
	return s.conn.Close()
}

// timeLayout pads fractional seconds so string comparison of stored
// values matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	// SQLite CURRENT_TIMESTAMP and second-precision values
	for _, f := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err2 := time.Parse(f, s); err2 == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q: %w", s, err)
}
