package replication

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/shoplist/internal/api"
	"github.com/marcus/shoplist/internal/localstore"
	"github.com/marcus/shoplist/internal/models"
	"github.com/marcus/shoplist/internal/serverdb"
	"github.com/marcus/shoplist/internal/syncclient"
)

func memoryConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	return conn
}

func setupSyncServer(t *testing.T) (*httptest.Server, *serverdb.ServerDB) {
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
	t.Cleanup(func() {
		ts.Close()
		sdb.Close()
	})
	return ts, sdb
}

func setupDevice(t *testing.T, serverURL, deviceID string) (*localstore.Store, *syncclient.Client) {
	t.Helper()
	store, err := localstore.NewMemory(memoryConn(t))
	if err != nil {
		t.Fatalf("init local store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, syncclient.New(serverURL, deviceID)
}

func TestPush_UploadsDirtyAndClearsFlags(t *testing.T) {
	ts, sdb := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")

	store.PutItem(models.Item{Name: "milk"})
	store.PutItem(models.Item{Name: "eggs"})

	r := NewReplicator(store, client, models.CollectionItems, nil)
	if err := r.Push(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}

	n, _ := store.CountDirty(models.CollectionItems)
	if n != 0 {
		t.Fatalf("dirty after push: got %d, want 0", n)
	}

	st, err := sdb.Status(models.CollectionItems)
	if err != nil {
		t.Fatalf("server status: %v", err)
	}
	if st.DocumentCount != 2 {
		t.Fatalf("server documents: got %d, want 2", st.DocumentCount)
	}
}

func TestPush_NothingDirtyIsNoOp(t *testing.T) {
	ts, _ := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")

	r := NewReplicator(store, client, models.CollectionItems, nil)
	if err := r.Push(context.Background()); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func TestPull_AdvancesCheckpointAndConverges(t *testing.T) {
	ts, sdb := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")

	if err := sdb.PushItems([]models.Item{
		{ID: "i1", Name: "milk"},
		{ID: "i2", Name: "eggs"},
	}); err != nil {
		t.Fatalf("seed server: %v", err)
	}

	r := NewReplicator(store, client, models.CollectionItems, nil)
	if err := r.Pull(context.Background()); err != nil {
		t.Fatalf("pull: %v", err)
	}

	items, err := store.ListItems()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}

	cp, ok, err := store.Checkpoint(models.CollectionItems)
	if err != nil || !ok {
		t.Fatalf("checkpoint missing: ok=%v err=%v", ok, err)
	}

	// Second pull with no new server data leaves the checkpoint alone.
	if err := r.Pull(context.Background()); err != nil {
		t.Fatalf("second pull: %v", err)
	}
	cp2, _, _ := store.Checkpoint(models.CollectionItems)
	if !cp2.Equal(cp) {
		t.Fatalf("checkpoint moved on empty pull: %v -> %v", cp, cp2)
	}
}

func TestPull_PagesUntilExhausted(t *testing.T) {
	ts, sdb := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")

	var docs []models.Item
	for i := 0; i < 9; i++ {
		docs = append(docs, models.Item{ID: fmt.Sprintf("i%d", i), Name: "x"})
	}
	if err := sdb.PushItems(docs); err != nil {
		t.Fatalf("seed server: %v", err)
	}

	r := NewReplicator(store, client, models.CollectionItems, nil)
	r.pullLimit = 4 // force three pages

	if err := r.Pull(context.Background()); err != nil {
		t.Fatalf("pull: %v", err)
	}

	items, _ := store.ListItems()
	if len(items) != 9 {
		t.Fatalf("items after paged pull: got %d, want 9", len(items))
	}
}

func TestPull_ServerWinsOverLocalDirty(t *testing.T) {
	ts, sdb := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")

	if err := sdb.PushItems([]models.Item{{ID: "i1", Name: "server-name"}}); err != nil {
		t.Fatalf("seed server: %v", err)
	}

	// Unsynced local edit on the same id.
	store.PutItem(models.Item{ID: "i1", Name: "local-name"})

	r := NewReplicator(store, client, models.CollectionItems, nil)
	if err := r.Pull(context.Background()); err != nil {
		t.Fatalf("pull: %v", err)
	}

	got, _ := store.GetItem("i1")
	if got.Name != "server-name" {
		t.Fatalf("local edit survived a pull: %q", got.Name)
	}
	n, _ := store.CountDirty(models.CollectionItems)
	if n != 0 {
		t.Fatalf("dirty after pull: got %d, want 0", n)
	}
}

func TestSync_PushThenPullRoundTrip(t *testing.T) {
	ts, _ := setupSyncServer(t)
	storeA, clientA := setupDevice(t, ts.URL, "dev-a")
	storeB, clientB := setupDevice(t, ts.URL, "dev-b")

	storeA.PutItem(models.Item{Name: "butter"})

	ra := NewReplicator(storeA, clientA, models.CollectionItems, nil)
	rb := NewReplicator(storeB, clientB, models.CollectionItems, nil)

	if err := ra.Sync(context.Background()); err != nil {
		t.Fatalf("sync a: %v", err)
	}
	if err := rb.Sync(context.Background()); err != nil {
		t.Fatalf("sync b: %v", err)
	}

	items, _ := storeB.ListItems()
	if len(items) != 1 || items[0].Name != "butter" {
		t.Fatalf("device b did not converge: %+v", items)
	}
	// The pulled copy carries the server's stamp, not the provisional one.
	a, _ := storeA.ListItems()
	if err := ra.Pull(context.Background()); err != nil {
		t.Fatalf("re-pull a: %v", err)
	}
	a2, _ := storeA.ListItems()
	if !a2[0].UpdatedAt.After(a[0].UpdatedAt) && !a2[0].UpdatedAt.Equal(a[0].UpdatedAt) {
		t.Fatalf("unexpected updatedAt on device a: %v vs %v", a2[0].UpdatedAt, a[0].UpdatedAt)
	}
}

func TestPush_ServerDownRecordsError(t *testing.T) {
	ts, _ := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")
	ts.Close()

	store.PutItem(models.Item{Name: "milk"})

	r := NewReplicator(store, client, models.CollectionItems, nil)
	if err := r.Push(context.Background()); err == nil {
		t.Fatal("expected push failure")
	}

	st, err := store.SyncStatus(models.CollectionItems)
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if st.LastError == "" {
		t.Fatal("push failure not recorded")
	}
	// The document stays dirty for the next attempt.
	if st.Pending != 1 {
		t.Fatalf("pending: got %d, want 1", st.Pending)
	}
}

func TestEngine_SyncAllCoversEveryCollection(t *testing.T) {
	ts, sdb := setupSyncServer(t)
	store, client := setupDevice(t, ts.URL, "dev-1")

	store.PutItem(models.Item{Name: "milk"})
	store.PutHousehold(models.Household{Name: "home"})
	store.PutUser(models.User{Email: "ann@example.com"})

	engine := NewEngine(store, client, 0, nil)
	if err := engine.SyncAll(context.Background()); err != nil {
		t.Fatalf("sync all: %v", err)
	}

	for _, collection := range models.Collections {
		st, err := sdb.Status(collection)
		if err != nil {
			t.Fatalf("status %s: %v", collection, err)
		}
		if st.DocumentCount != 1 {
			t.Fatalf("%s: got %d documents, want 1", collection, st.DocumentCount)
		}
	}

	statuses, err := engine.Status()
	if err != nil {
		t.Fatalf("engine status: %v", err)
	}
	if len(statuses) != len(models.Collections) {
		t.Fatalf("statuses: got %d, want %d", len(statuses), len(models.Collections))
	}
	for _, st := range statuses {
		if st.Pending != 0 {
			t.Fatalf("%s still pending after sync", st.Collection)
		}
	}
}
