// Package syncharness spins up an in-process sync server and several
// simulated devices for multi-device replication tests.
package syncharness

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"reflect"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/shoplist/internal/api"
	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/replication"
	"github.com/marcus/shoplist/internal/serverdb"
	"github.com/marcus/shoplist/internal/syncclient"
)

// Device is one simulated client with its own local store and replicators.
type Device struct {
	ID     string
	Store  *localstore.Store
	Engine *replication.Engine
}

// Harness owns the server and a set of devices.
type Harness struct {
	t       *testing.T
	Server  *serverdb.ServerDB
	HTTP    *httptest.Server
	Devices map[string]*Device
}

func memoryConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	return conn
}

// NewHarness starts a server and n devices named device-1..device-n.
func NewHarness(t *testing.T, n int) *Harness {
	t.Helper()

	sdb, err := serverdb.NewMemory(memoryConn(t))
	if err != nil {
		t.Fatalf("init server db: %v", err)
	}

	cfg := api.Config{
		LogFormat:        "text",
		LogLevel:         "error",
		DefaultPullLimit: 500,
		MaxPullLimit:     5000,
		MaxPushBatch:     1000,
		MaxBodyBytes:     1 << 20,
	}
	ts := httptest.NewServer(api.NewServer(cfg, sdb).Routes())

	h := &Harness{t: t, Server: sdb, HTTP: ts, Devices: make(map[string]*Device)}
	t.Cleanup(func() {
		ts.Close()
		sdb.Close()
	})

	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("device-%d", i)
		store, err := localstore.NewMemory(memoryConn(t))
		if err != nil {
			t.Fatalf("init store for %s: %v", id, err)
		}
		t.Cleanup(func() { store.Close() })

		client := syncclient.New(ts.URL, id)
		h.Devices[id] = &Device{
			ID:     id,
			Store:  store,
			Engine: replication.NewEngine(store, client, 0, nil),
		}
	}
	return h
}

// Sync runs a full push+pull cycle for every collection on one device.
func (h *Harness) Sync(deviceID string) {
	h.t.Helper()
	d := h.device(deviceID)
	if err := d.Engine.SyncAll(context.Background()); err != nil {
		h.t.Fatalf("%s: sync: %v", deviceID, err)
	}
}

// SyncAll syncs every device once, in name order.
func (h *Harness) SyncAll() {
	h.t.Helper()
	for _, id := range h.deviceIDs() {
		h.Sync(id)
	}
}

func (h *Harness) device(id string) *Device {
	h.t.Helper()
	d, ok := h.Devices[id]
	if !ok {
		h.t.Fatalf("unknown device %q", id)
	}
	return d
}

func (h *Harness) deviceIDs() []string {
	ids := make([]string, 0, len(h.Devices))
	for id := range h.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AssertConverged fails unless every device holds identical documents in
// every collection and has no pending local changes.
func (h *Harness) AssertConverged() {
	h.t.Helper()

	ids := h.deviceIDs()
	if len(ids) < 2 {
		return
	}
	ref := h.device(ids[0])

	for _, id := range ids[1:] {
		d := h.device(id)

		refItems, _ := ref.Store.ListItems()
		items, _ := d.Store.ListItems()
		if !reflect.DeepEqual(sortedItems(refItems), sortedItems(items)) {
			h.t.Fatalf("items diverge between %s and %s:\n%+v\n%+v", ids[0], id, refItems, items)
		}

		refHH, _ := ref.Store.ListHouseholds()
		hh, _ := d.Store.ListHouseholds()
		if !reflect.DeepEqual(sortedHouseholds(refHH), sortedHouseholds(hh)) {
			h.t.Fatalf("households diverge between %s and %s:\n%+v\n%+v", ids[0], id, refHH, hh)
		}

		refUsers, _ := ref.Store.ListUsers()
		users, _ := d.Store.ListUsers()
		if !reflect.DeepEqual(sortedUsers(refUsers), sortedUsers(users)) {
			h.t.Fatalf("users diverge between %s and %s:\n%+v\n%+v", ids[0], id, refUsers, users)
		}
	}

	for _, id := range ids {
		d := h.device(id)
		for _, collection := range models.Collections {
			n, err := d.Store.CountDirty(collection)
			if err != nil {
				h.t.Fatalf("%s: count dirty %s: %v", id, collection, err)
			}
			if n != 0 {
				h.t.Fatalf("%s: %d unpushed %s after convergence", id, n, collection)
			}
		}
	}
}

func sortedItems(docs []models.Item) []models.Item {
	out := append([]models.Item(nil), docs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedHouseholds(docs []models.Household) []models.Household {
	out := append([]models.Household(nil), docs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedUsers(docs []models.User) []models.User {
	out := append([]models.User(nil), docs...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
