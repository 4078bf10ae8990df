package serverdb

import (
	"fmt"
	"time"

	"github.com/marcus/shoplist/internal/models"
)

// PullItems returns items with updated_at strictly after since, ascending
// by updated_at. The returned checkpoint is the last document's
// updatedAt, or since unchanged when nothing matched. hasMore reports
// that the page was full and another round is needed.
func (db *ServerDB) PullItems(since time.Time, limit int) ([]models.Item, time.Time, bool, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, checked, updated_at, created_at
		FROM items WHERE updated_at > ? ORDER BY updated_at ASC, id ASC LIMIT ?`,
		formatTime(since), limit,
	)
	if err != nil {
		return nil, since, false, fmt.Errorf("pull items: %w", err)
	}
	defer rows.Close()

	checkpoint := since
	var docs []models.Item
	for rows.Next() {
		var it models.Item
		var checked int
		var updated, created string
		if err := rows.Scan(&it.ID, &it.Name, &checked, &updated, &created); err != nil {
			return nil, since, false, fmt.Errorf("scan item: %w", err)
		}
		it.Checked = checked != 0
		if it.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, since, false, err
		}
		if it.CreatedAt, err = parseTime(created); err != nil {
			return nil, since, false, err
		}
		docs = append(docs, it)
		checkpoint = it.UpdatedAt
	}
	if err := rows.Err(); err != nil {
		return nil, since, false, fmt.Errorf("pull items: iterate: %w", err)
	}

	return docs, checkpoint, len(docs) == limit, nil
}

// PushItems upserts a batch of items by id, stamping updated_at from the
// server clock. Client timestamps are never trusted. Documents are
// committed one by one; a failure aborts the remaining batch and leaves
// earlier documents committed.
func (db *ServerDB) PushItems(docs []models.Item) error {
	for _, it := range docs {
		now := db.clock.Now()
		created := it.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err := db.conn.Exec(`
			INSERT INTO items (id, name, checked, updated_at, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				checked = excluded.checked,
				updated_at = excluded.updated_at
		`, it.ID, it.Name, boolToInt(it.Checked), formatTime(now), formatTime(created))
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}
	return nil
}

// PullHouseholds mirrors PullItems for the households collection.
func (db *ServerDB) PullHouseholds(since time.Time, limit int) ([]models.Household, time.Time, bool, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, owner_id, updated_at, created_at
		FROM households WHERE updated_at > ? ORDER BY updated_at ASC, id ASC LIMIT ?`,
		formatTime(since), limit,
	)
	if err != nil {
		return nil, since, false, fmt.Errorf("pull households: %w", err)
	}
	defer rows.Close()

	checkpoint := since
	var docs []models.Household
	for rows.Next() {
		var h models.Household
		var updated, created string
		if err := rows.Scan(&h.ID, &h.Name, &h.OwnerID, &updated, &created); err != nil {
			return nil, since, false, fmt.Errorf("scan household: %w", err)
		}
		if h.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, since, false, err
		}
		if h.CreatedAt, err = parseTime(created); err != nil {
			return nil, since, false, err
		}
		docs = append(docs, h)
		checkpoint = h.UpdatedAt
	}
	if err := rows.Err(); err != nil {
		return nil, since, false, fmt.Errorf("pull households: iterate: %w", err)
	}

	return docs, checkpoint, len(docs) == limit, nil
}

// PushHouseholds upserts a batch of households, stamping updated_at from
// the server clock.
func (db *ServerDB) PushHouseholds(docs []models.Household) error {
	for _, h := range docs {
		now := db.clock.Now()
		created := h.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err := db.conn.Exec(`
			INSERT INTO households (id, name, owner_id, updated_at, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				owner_id = excluded.owner_id,
				updated_at = excluded.updated_at
		`, h.ID, h.Name, h.OwnerID, formatTime(now), formatTime(created))
		if err != nil {
			return fmt.Errorf("upsert household %s: %w", h.ID, err)
		}
	}
	return nil
}

// PullUsers mirrors PullItems for the users collection, projecting each
// user's relational memberships into the householdIds array.
func (db *ServerDB) PullUsers(since time.Time, limit int) ([]models.User, time.Time, bool, error) {
	rows, err := db.conn.Query(`
		SELECT id, email, name, updated_at, created_at
		FROM users WHERE updated_at > ? ORDER BY updated_at ASC, id ASC LIMIT ?`,
		formatTime(since), limit,
	)
	if err != nil {
		return nil, since, false, fmt.Errorf("pull users: %w", err)
	}
	defer rows.Close()

	checkpoint := since
	var docs []models.User
	for rows.Next() {
		var u models.User
		var updated, created string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &updated, &created); err != nil {
			return nil, since, false, fmt.Errorf("scan user: %w", err)
		}
		if u.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, since, false, err
		}
		if u.CreatedAt, err = parseTime(created); err != nil {
			return nil, since, false, err
		}
		docs = append(docs, u)
		checkpoint = u.UpdatedAt
	}
	if err := rows.Err(); err != nil {
		return nil, since, false, fmt.Errorf("pull users: iterate: %w", err)
	}

	for i := range docs {
		ids, err := db.memberships(docs[i].ID)
		if err != nil {
			return nil, since, false, err
		}
		docs[i].HouseholdIDs = ids
	}

	return docs, checkpoint, len(docs) == limit, nil
}

// PushUsers upserts a batch of users. Each user's householdIds array is
// applied as a full replacement of the membership relation: ids absent
// from the array are revoked. The upsert and the membership diff commit
// in one transaction per user.
func (db *ServerDB) PushUsers(docs []models.User) error {
	for _, u := range docs {
		if err := db.pushUser(u); err != nil {
			return err
		}
	}
	return nil
}

func (db *ServerDB) pushUser(u models.User) error {
	now := db.clock.Now()
	created := u.CreatedAt
	if created.IsZero() {
		created = now
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin push user %s: %w", u.ID, err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO users (id, email, name, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			updated_at = excluded.updated_at
	`, u.ID, u.Email, u.Name, formatTime(now), formatTime(created))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}

	if err := replaceMemberships(tx, u.ID, u.HouseholdIDs, formatTime(now)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit push user %s: %w", u.ID, err)
	}
	return nil
}

// CollectionStatus summarizes one collection for the status endpoint.
type CollectionStatus struct {
	DocumentCount int64
	LastUpdatedAt *time.Time
}

// Status returns the document count and newest updated_at for a collection.
func (db *ServerDB) Status(collection string) (*CollectionStatus, error) {
	if !models.IsCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %q", collection)
	}

	st := &CollectionStatus{}
	var maxTS *string
	err := db.conn.QueryRow(`SELECT COUNT(*), MAX(updated_at) FROM ` + collection).Scan(&st.DocumentCount, &maxTS)
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", collection, err)
	}
	if maxTS != nil {
		ts, err := parseTime(*maxTS)
		if err != nil {
			return nil, err
		}
		st.LastUpdatedAt = &ts
	}
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
