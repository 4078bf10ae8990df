package models

import (
	"time"
)

// Collection names. Each binds one local table to one remote sync endpoint.
const (
	CollectionItems      = "items"
	CollectionHouseholds = "households"
	CollectionUsers      = "users"
)

// Collections lists every synchronized collection in a stable order.
var Collections = []string{CollectionItems, CollectionHouseholds, CollectionUsers}

// IsCollection reports whether name is a known synchronized collection.
func IsCollection(name string) bool {
	switch name {
	case CollectionItems, CollectionHouseholds, CollectionUsers:
		return true
	}
	return false
}

// Item is one shopping list entry.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Checked   bool      `json:"checked"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Household groups users who share shopping lists.
type Household struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   *string   `json:"ownerId"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an account. HouseholdIDs is the denormalized projection of the
// server's membership relation; on push it is treated as the complete set.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         *string   `json:"name,omitempty"`
	HouseholdIDs []string  `json:"householdIds"`
	UpdatedAt    time.Time `json:"updatedAt"`
	CreatedAt    time.Time `json:"createdAt"`
}
