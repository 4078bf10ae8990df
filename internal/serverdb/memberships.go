package serverdb

import (
	"database/sql"
	"fmt"
	"sort"
)

// memberships returns the household ids a user currently belongs to,
// sorted for a stable wire representation.
func (db *ServerDB) memberships(userID string) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT household_id FROM household_members WHERE user_id = ? ORDER BY household_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships %s: %w", userID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list memberships %s: iterate: %w", userID, err)
	}
	return ids, nil
}

// replaceMemberships makes the user's membership set equal exactly the
// given ids. The contract is full replacement: an id not listed is
// revoked. It is applied as a diff rather than clear-then-insert so
// concurrent readers never observe a transient empty membership set.
func replaceMemberships(tx *sql.Tx, userID string, householdIDs []string, now string) error {
	rows, err := tx.Query(`SELECT household_id FROM household_members WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("read memberships %s: %w", userID, err)
	}
	current := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan membership: %w", err)
		}
		current[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("read memberships %s: iterate: %w", userID, err)
	}
	rows.Close()

	wanted := make(map[string]bool, len(householdIDs))
	for _, id := range householdIDs {
		if id != "" {
			wanted[id] = true
		}
	}

	var additions, removals []string
	for id := range wanted {
		if !current[id] {
			additions = append(additions, id)
		}
	}
	for id := range current {
		if !wanted[id] {
			removals = append(removals, id)
		}
	}
	sort.Strings(additions)
	sort.Strings(removals)

	for _, id := range additions {
		if _, err := tx.Exec(
			`INSERT INTO household_members (user_id, household_id, created_at) VALUES (?, ?, ?)`,
			userID, id, now,
		); err != nil {
			return fmt.Errorf("add membership %s/%s: %w", userID, id, err)
		}
	}
	for _, id := range removals {
		if _, err := tx.Exec(
			`DELETE FROM household_members WHERE user_id = ? AND household_id = ?`,
			userID, id,
		); err != nil {
			return fmt.Errorf("remove membership %s/%s: %w", userID, id, err)
		}
	}
	return nil
}
