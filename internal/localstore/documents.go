package localstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/shoplist/internal/models"
)

// PutItem inserts or overwrites an item as a local mutation: the row is
// marked dirty and picked up by the next push cycle. A missing ID is
// assigned; UpdatedAt set here is provisional until the server re-stamps it.
func (s *Store) PutItem(it models.Item) (models.Item, error) {
	now := time.Now().UTC()
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	_, err := s.conn.Exec(`
		INSERT INTO items (id, name, checked, updated_at, created_at, dirty)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			checked = excluded.checked,
			updated_at = excluded.updated_at,
			dirty = 1
	`, it.ID, it.Name, boolToInt(it.Checked), formatTime(it.UpdatedAt), formatTime(it.CreatedAt))
	if err != nil {
		return it, fmt.Errorf("put item %s: %w", it.ID, err)
	}

	s.notify(models.CollectionItems, it, false)
	return it, nil
}

// PutHousehold inserts or overwrites a household as a local mutation.
func (s *Store) PutHousehold(h models.Household) (models.Household, error) {
	now := time.Now().UTC()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	_, err := s.conn.Exec(`
		INSERT INTO households (id, name, owner_id, updated_at, created_at, dirty)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner_id = excluded.owner_id,
			updated_at = excluded.updated_at,
			dirty = 1
	`, h.ID, h.Name, h.OwnerID, formatTime(h.UpdatedAt), formatTime(h.CreatedAt))
	if err != nil {
		return h, fmt.Errorf("put household %s: %w", h.ID, err)
	}

	s.notify(models.CollectionHouseholds, h, false)
	return h, nil
}

// PutUser inserts or overwrites a user as a local mutation. HouseholdIDs
// is the complete membership set; the server treats it as a full
// replacement on push.
func (s *Store) PutUser(u models.User) (models.User, error) {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	hids, err := marshalIDs(u.HouseholdIDs)
	if err != nil {
		return u, err
	}

	_, err = s.conn.Exec(`
		INSERT INTO users (id, email, name, household_ids, updated_at, created_at, dirty)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			household_ids = excluded.household_ids,
			updated_at = excluded.updated_at,
			dirty = 1
	`, u.ID, u.Email, u.Name, hids, formatTime(u.UpdatedAt), formatTime(u.CreatedAt))
	if err != nil {
		return u, fmt.Errorf("put user %s: %w", u.ID, err)
	}

	s.notify(models.CollectionUsers, u, false)
	return u, nil
}

// GetItem returns one item, or nil if absent.
func (s *Store) GetItem(id string) (*models.Item, error) {
	row := s.conn.QueryRow(`SELECT id, name, checked, updated_at, created_at FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &it, nil
}

// GetHousehold returns one household, or nil if absent.
func (s *Store) GetHousehold(id string) (*models.Household, error) {
	row := s.conn.QueryRow(`SELECT id, name, owner_id, updated_at, created_at FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household %s: %w", id, err)
	}
	return &h, nil
}

// GetUser returns one user, or nil if absent.
func (s *Store) GetUser(id string) (*models.User, error) {
	row := s.conn.QueryRow(`SELECT id, email, name, household_ids, updated_at, created_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return &u, nil
}

// ListItems returns all items ordered by creation time.
func (s *Store) ListItems() ([]models.Item, error) {
	rows, err := s.conn.Query(`SELECT id, name, checked, updated_at, created_at FROM items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListHouseholds returns all households ordered by creation time.
func (s *Store) ListHouseholds() ([]models.Household, error) {
	rows, err := s.conn.Query(`SELECT id, name, owner_id, updated_at, created_at FROM households ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	var out []models.Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers() ([]models.User, error) {
	rows, err := s.conn.Query(`SELECT id, email, name, household_ids, updated_at, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DirtyDocs returns every dirty document in the collection as wire JSON,
// together with the matching ids. The two slices are index-aligned.
func (s *Store) DirtyDocs(collection string) ([]json.RawMessage, []string, error) {
	if !models.IsCollection(collection) {
		return nil, nil, fmt.Errorf("unknown collection: %q", collection)
	}

	var docs []json.RawMessage
	var ids []string

	appendDoc := func(id string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
		}
		docs = append(docs, data)
		ids = append(ids, id)
		return nil
	}

	switch collection {
	case models.CollectionItems:
		rows, err := s.conn.Query(`SELECT id, name, checked, updated_at, created_at FROM items WHERE dirty = 1 ORDER BY updated_at, id`)
		if err != nil {
			return nil, nil, fmt.Errorf("query dirty items: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return nil, nil, err
			}
			if err := appendDoc(it.ID, it); err != nil {
				return nil, nil, err
			}
		}
		return docs, ids, rows.Err()

	case models.CollectionHouseholds:
		rows, err := s.conn.Query(`SELECT id, name, owner_id, updated_at, created_at FROM households WHERE dirty = 1 ORDER BY updated_at, id`)
		if err != nil {
			return nil, nil, fmt.Errorf("query dirty households: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			h, err := scanHousehold(rows)
			if err != nil {
				return nil, nil, err
			}
			if err := appendDoc(h.ID, h); err != nil {
				return nil, nil, err
			}
		}
		return docs, ids, rows.Err()

	default: // users
		rows, err := s.conn.Query(`SELECT id, email, name, household_ids, updated_at, created_at FROM users WHERE dirty = 1 ORDER BY updated_at, id`)
		if err != nil {
			return nil, nil, fmt.Errorf("query dirty users: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return nil, nil, err
			}
			if err := appendDoc(u.ID, u); err != nil {
				return nil, nil, err
			}
		}
		return docs, ids, rows.Err()
	}
}

// CountDirty returns the number of dirty documents in the collection.
func (s *Store) CountDirty(collection string) (int64, error) {
	if !models.IsCollection(collection) {
		return 0, fmt.Errorf("unknown collection: %q", collection)
	}
	var n int64
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM ` + collection + ` WHERE dirty = 1`).Scan(&n)
	return n, err
}

// ClearDirty clears the dirty flag for the given ids after a successful
// push. A document re-edited while the push was in flight stays dirty
// only if the edit bumped updated_at after the push read it; the current
// protocol clears the whole batch, matching the server's all-accepted
// acknowledgment.
func (s *Store) ClearDirty(collection string, ids []string) error {
	if !models.IsCollection(collection) {
		return fmt.Errorf("unknown collection: %q", collection)
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.conn.Exec(`UPDATE `+collection+` SET dirty = 0 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("clear dirty %s: %w", collection, err)
	}
	return nil
}

// ApplyRemote upserts pulled documents. The server's view always wins:
// existing rows are overwritten unconditionally, including rows with
// local unsynced edits, and the result is marked clean.
func (s *Store) ApplyRemote(collection string, docs []json.RawMessage) error {
	if !models.IsCollection(collection) {
		return fmt.Errorf("unknown collection: %q", collection)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback()

	type pending struct {
		doc any
	}
	var applied []pending

	for _, raw := range docs {
		switch collection {
		case models.CollectionItems:
			var it models.Item
			if err := json.Unmarshal(raw, &it); err != nil {
				return fmt.Errorf("decode pulled item: %w", err)
			}
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO items (id, name, checked, updated_at, created_at, dirty)
				VALUES (?, ?, ?, ?, ?, 0)
			`, it.ID, it.Name, boolToInt(it.Checked), formatTime(it.UpdatedAt), formatTime(it.CreatedAt))
			if err != nil {
				return fmt.Errorf("apply item %s: %w", it.ID, err)
			}
			applied = append(applied, pending{it})

		case models.CollectionHouseholds:
			var h models.Household
			if err := json.Unmarshal(raw, &h); err != nil {
				return fmt.Errorf("decode pulled household: %w", err)
			}
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO households (id, name, owner_id, updated_at, created_at, dirty)
				VALUES (?, ?, ?, ?, ?, 0)
			`, h.ID, h.Name, h.OwnerID, formatTime(h.UpdatedAt), formatTime(h.CreatedAt))
			if err != nil {
				return fmt.Errorf("apply household %s: %w", h.ID, err)
			}
			applied = append(applied, pending{h})

		default: // users
			var u models.User
			if err := json.Unmarshal(raw, &u); err != nil {
				return fmt.Errorf("decode pulled user: %w", err)
			}
			hids, err := marshalIDs(u.HouseholdIDs)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`
				INSERT OR REPLACE INTO users (id, email, name, household_ids, updated_at, created_at, dirty)
				VALUES (?, ?, ?, ?, ?, ?, 0)
			`, u.ID, u.Email, u.Name, hids, formatTime(u.UpdatedAt), formatTime(u.CreatedAt))
			if err != nil {
				return fmt.Errorf("apply user %s: %w", u.ID, err)
			}
			applied = append(applied, pending{u})
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}

	for _, p := range applied {
		s.notify(collection, p.doc, true)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (models.Item, error) {
	var it models.Item
	var checked int
	var updated, created string
	if err := row.Scan(&it.ID, &it.Name, &checked, &updated, &created); err != nil {
		return it, err
	}
	it.Checked = checked != 0
	var err error
	if it.UpdatedAt, err = parseTime(updated); err != nil {
		return it, err
	}
	it.CreatedAt, err = parseTime(created)
	return it, err
}

func scanHousehold(row scanner) (models.Household, error) {
	var h models.Household
	var updated, created string
	if err := row.Scan(&h.ID, &h.Name, &h.OwnerID, &updated, &created); err != nil {
		return h, err
	}
	var err error
	if h.UpdatedAt, err = parseTime(updated); err != nil {
		return h, err
	}
	h.CreatedAt, err = parseTime(created)
	return h, err
}

func scanUser(row scanner) (models.User, error) {
	var u models.User
	var hids string
	var updated, created string
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &hids, &updated, &created); err != nil {
		return u, err
	}
	if err := json.Unmarshal([]byte(hids), &u.HouseholdIDs); err != nil {
		return u, fmt.Errorf("decode household_ids for %s: %w", u.ID, err)
	}
	if u.HouseholdIDs == nil {
		u.HouseholdIDs = []string{}
	}
	var err error
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return u, err
	}
	u.CreatedAt, err = parseTime(created)
	return u, err
}

func marshalIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal household ids: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
