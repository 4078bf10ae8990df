package localstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/marcus/shoplist/internal/models"
)

// SyncStatus is the per-collection replication state surfaced to callers.
type SyncStatus struct {
	Collection string
	Checkpoint *time.Time
	LastSyncAt *time.Time
	LastError  string
	Pending    int64
}

// Checkpoint returns the collection's checkpoint. ok is false when the
// collection has never completed a pull.
func (s *Store) Checkpoint(collection string) (time.Time, bool, error) {
	if !models.IsCollection(collection) {
		return time.Time{}, false, fmt.Errorf("unknown collection: %q", collection)
	}

	var cp sql.NullString
	err := s.conn.QueryRow(`SELECT checkpoint FROM sync_state WHERE collection = ?`, collection).Scan(&cp)
	if err == sql.ErrNoRows || (err == nil && !cp.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get checkpoint %s: %w", collection, err)
	}

	ts, err := parseTime(cp.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse checkpoint %s: %w", collection, err)
	}
	return ts, true, nil
}

// SetCheckpoint advances the collection's checkpoint. A checkpoint only
// ever moves forward; an older timestamp is ignored.
func (s *Store) SetCheckpoint(collection string, ts time.Time) error {
	if !models.IsCollection(collection) {
		return fmt.Errorf("unknown collection: %q", collection)
	}

	current, ok, err := s.Checkpoint(collection)
	if err != nil {
		return err
	}
	if ok && !ts.After(current) {
		return nil
	}

	_, err = s.conn.Exec(`
		INSERT INTO sync_state (collection, checkpoint, last_sync_at, last_error)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(collection) DO UPDATE SET
			checkpoint = excluded.checkpoint,
			last_sync_at = excluded.last_sync_at,
			last_error = NULL
	`, collection, formatTime(ts), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set checkpoint %s: %w", collection, err)
	}
	return nil
}

// RecordSyncSuccess clears the last error and stamps last_sync_at without
// moving the checkpoint (used after a push, or an empty pull).
func (s *Store) RecordSyncSuccess(collection string) error {
	if !models.IsCollection(collection) {
		return fmt.Errorf("unknown collection: %q", collection)
	}
	_, err := s.conn.Exec(`
		INSERT INTO sync_state (collection, last_sync_at, last_error)
		VALUES (?, ?, NULL)
		ON CONFLICT(collection) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			last_error = NULL
	`, collection, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record sync %s: %w", collection, err)
	}
	return nil
}

// RecordSyncError stores the failure of the latest cycle so it can be
// surfaced instead of vanishing silently.
func (s *Store) RecordSyncError(collection, msg string) error {
	if !models.IsCollection(collection) {
		return fmt.Errorf("unknown collection: %q", collection)
	}
	_, err := s.conn.Exec(`
		INSERT INTO sync_state (collection, last_error)
		VALUES (?, ?)
		ON CONFLICT(collection) DO UPDATE SET
			last_error = excluded.last_error
	`, collection, msg)
	if err != nil {
		return fmt.Errorf("record sync error %s: %w", collection, err)
	}
	return nil
}

// SyncStatus returns the replication state for one collection.
func (s *Store) SyncStatus(collection string) (*SyncStatus, error) {
	if !models.IsCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %q", collection)
	}

	st := &SyncStatus{Collection: collection}

	var cp, lastSync, lastErr sql.NullString
	err := s.conn.QueryRow(
		`SELECT checkpoint, last_sync_at, last_error FROM sync_state WHERE collection = ?`,
		collection,
	).Scan(&cp, &lastSync, &lastErr)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("get sync status %s: %w", collection, err)
	}

	if cp.Valid {
		if ts, perr := parseTime(cp.String); perr == nil {
			st.Checkpoint = &ts
		}
	}
	if lastSync.Valid {
		if ts, perr := parseTime(lastSync.String); perr == nil {
			st.LastSyncAt = &ts
		}
	}
	if lastErr.Valid {
		st.LastError = lastErr.String
	}

	st.Pending, err = s.CountDirty(collection)
	if err != nil {
		return nil, err
	}
	return st, nil
}
