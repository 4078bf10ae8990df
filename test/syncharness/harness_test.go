package syncharness

import (
	"context"
	"testing"

	"github.com/marcus/shoplist/internal/models"
)

func TestTwoDevices_Converge(t *testing.T) {
	h := NewHarness(t, 2)

	a := h.Devices["device-1"]
	b := h.Devices["device-2"]

	a.Store.PutItem(models.Item{Name: "milk"})
	a.Store.PutHousehold(models.Household{ID: "h1", Name: "home"})
	b.Store.PutItem(models.Item{Name: "eggs"})

	// Two rounds: first publishes everything, second picks up what the
	// other device pushed after this device's pull.
	h.SyncAll()
	h.SyncAll()

	h.AssertConverged()

	items, _ := a.Store.ListItems()
	if len(items) != 2 {
		t.Fatalf("items on device-1: got %d, want 2", len(items))
	}
}

func TestConcurrentEdit_LastWriteWinsEverywhere(t *testing.T) {
	h := NewHarness(t, 2)

	a := h.Devices["device-1"]
	b := h.Devices["device-2"]

	// Seed a shared item.
	a.Store.PutItem(models.Item{ID: "i1", Name: "bread"})
	h.SyncAll()
	h.SyncAll()

	// Both devices edit the same document offline.
	a.Store.PutItem(models.Item{ID: "i1", Name: "white bread"})
	b.Store.PutItem(models.Item{ID: "i1", Name: "rye bread", Checked: true})

	// A pushes first, B second: B's write lands later on the server clock
	// and wins wholesale.
	h.Sync("device-1")
	h.Sync("device-2")
	h.Sync("device-1")

	h.AssertConverged()

	got, _ := a.Store.GetItem("i1")
	if got.Name != "rye bread" || !got.Checked {
		t.Fatalf("expected the later write to win, got %+v", got)
	}
}

func TestMembershipChange_Propagates(t *testing.T) {
	h := NewHarness(t, 2)

	a := h.Devices["device-1"]
	b := h.Devices["device-2"]

	a.Store.PutUser(models.User{ID: "u1", Email: "ann@example.com", HouseholdIDs: []string{"h1", "h2"}})
	h.SyncAll()
	h.SyncAll()

	u, _ := b.Store.GetUser("u1")
	if u == nil || len(u.HouseholdIDs) != 2 {
		t.Fatalf("memberships did not reach device-2: %+v", u)
	}

	// Leaving a household on one device revokes it everywhere.
	u.HouseholdIDs = []string{"h2"}
	b.Store.PutUser(*u)
	h.Sync("device-2")
	h.Sync("device-1")

	h.AssertConverged()

	u, _ = a.Store.GetUser("u1")
	if len(u.HouseholdIDs) != 1 || u.HouseholdIDs[0] != "h2" {
		t.Fatalf("revocation did not propagate: %v", u.HouseholdIDs)
	}
}

func TestOfflineEdits_SurviveUntilReconnect(t *testing.T) {
	h := NewHarness(t, 2)

	a := h.Devices["device-1"]
	b := h.Devices["device-2"]

	// device-2 works "offline": it accumulates edits without syncing.
	b.Store.PutItem(models.Item{Name: "coffee"})
	b.Store.PutItem(models.Item{Name: "sugar"})

	a.Store.PutItem(models.Item{Name: "tea"})
	h.Sync("device-1")

	n, _ := b.Store.CountDirty(models.CollectionItems)
	if n != 2 {
		t.Fatalf("offline edits lost: %d pending", n)
	}

	// Reconnect.
	h.Sync("device-2")
	h.Sync("device-1")

	h.AssertConverged()

	items, _ := a.Store.ListItems()
	if len(items) != 3 {
		t.Fatalf("items after reconnect: got %d, want 3", len(items))
	}
}

func TestEngineStatus_ReflectsCheckpoints(t *testing.T) {
	h := NewHarness(t, 1)
	d := h.Devices["device-1"]

	d.Store.PutItem(models.Item{Name: "milk"})
	if err := d.Engine.SyncAll(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	statuses, err := d.Engine.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, st := range statuses {
		if st.Collection == models.CollectionItems && st.Checkpoint == nil {
			t.Fatal("items checkpoint not set after pull")
		}
		if st.LastSyncAt == nil {
			t.Fatalf("%s: last sync not recorded", st.Collection)
		}
		if st.LastError != "" {
			t.Fatalf("%s: unexpected error %q", st.Collection, st.LastError)
		}
	}
}
