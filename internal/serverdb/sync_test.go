package serverdb

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/shoplist/internal/models"
)

func setupServerDB(t *testing.T) *ServerDB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)

	db, err := NewMemory(conn)
	if err != nil {
		t.Fatalf("init server db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPushItems_StampsServerTime(t *testing.T) {
	db := setupServerDB(t)

	// Client timestamps are lies; the server must replace them.
	clientTS := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	err := db.PushItems([]models.Item{
		{ID: "i1", Name: "milk", UpdatedAt: clientTS, CreatedAt: clientTS},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	docs, _, _, err := db.PullItems(time.Time{}, 10)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs: got %d, want 1", len(docs))
	}
	if docs[0].UpdatedAt.Equal(clientTS) {
		t.Fatal("server kept the client updatedAt")
	}
	if !docs[0].CreatedAt.Equal(clientTS) {
		t.Fatalf("createdAt not preserved: got %v", docs[0].CreatedAt)
	}
}

func TestPushItems_IdempotentRePushBumpsOnlyUpdatedAt(t *testing.T) {
	db := setupServerDB(t)

	it := models.Item{ID: "i1", Name: "milk"}
	if err := db.PushItems([]models.Item{it}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	first, _, _, _ := db.PullItems(time.Time{}, 10)

	if err := db.PushItems([]models.Item{it}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	second, _, _, _ := db.PullItems(time.Time{}, 10)

	if len(second) != 1 {
		t.Fatalf("expected single row, got %d", len(second))
	}
	if second[0].Name != first[0].Name || second[0].Checked != first[0].Checked {
		t.Fatal("content changed on identical re-push")
	}
	if !second[0].UpdatedAt.After(first[0].UpdatedAt) {
		t.Fatalf("updatedAt not bumped: %v then %v", first[0].UpdatedAt, second[0].UpdatedAt)
	}
	if !second[0].CreatedAt.Equal(first[0].CreatedAt) {
		t.Fatal("createdAt changed on re-push")
	}
}

func TestPullItems_BoundedAndAscending(t *testing.T) {
	db := setupServerDB(t)

	for i := 0; i < 7; i++ {
		if err := db.PushItems([]models.Item{{ID: fmt.Sprintf("i%d", i), Name: "x"}}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	docs, checkpoint, hasMore, err := db.PullItems(time.Time{}, 3)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("page size: got %d, want 3", len(docs))
	}
	if !hasMore {
		t.Fatal("expected hasMore on a full page")
	}
	for i := 1; i < len(docs); i++ {
		if !docs[i].UpdatedAt.After(docs[i-1].UpdatedAt) {
			t.Fatalf("pull not strictly ascending at %d", i)
		}
	}
	if !checkpoint.Equal(docs[len(docs)-1].UpdatedAt) {
		t.Fatal("checkpoint is not the last document's updatedAt")
	}
}

func TestPullItems_PagingEquivalentToSinglePull(t *testing.T) {
	db := setupServerDB(t)

	for i := 0; i < 10; i++ {
		db.PushItems([]models.Item{{ID: fmt.Sprintf("i%02d", i), Name: "x"}})
	}

	all, _, _, err := db.PullItems(time.Time{}, 100)
	if err != nil {
		t.Fatalf("single pull: %v", err)
	}

	var paged []models.Item
	since := time.Time{}
	for {
		docs, checkpoint, hasMore, err := db.PullItems(since, 3)
		if err != nil {
			t.Fatalf("paged pull: %v", err)
		}
		paged = append(paged, docs...)
		since = checkpoint
		if !hasMore {
			break
		}
	}

	if len(paged) != len(all) {
		t.Fatalf("paged total: got %d, want %d", len(paged), len(all))
	}
	for i := range all {
		if paged[i].ID != all[i].ID {
			t.Fatalf("paged order diverges at %d: %s vs %s", i, paged[i].ID, all[i].ID)
		}
	}
}

func TestPullItems_EmptyResultKeepsSince(t *testing.T) {
	db := setupServerDB(t)

	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	docs, checkpoint, hasMore, err := db.PullItems(since, 10)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(docs) != 0 || hasMore {
		t.Fatalf("expected empty page, got %d hasMore=%v", len(docs), hasMore)
	}
	if !checkpoint.Equal(since) {
		t.Fatalf("checkpoint moved on empty pull: %v", checkpoint)
	}
}

func TestConcurrentPush_LastWriteWins(t *testing.T) {
	db := setupServerDB(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			db.PushItems([]models.Item{{ID: "i1", Name: fmt.Sprintf("name-%d", n)}})
		}(i)
	}
	wg.Wait()

	docs, _, _, err := db.PullItems(time.Time{}, 10)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("rows: got %d, want 1", len(docs))
	}
	// One writer won wholesale; the row is internally consistent.
	if docs[0].Name == "" {
		t.Fatal("row has no winner")
	}
}

func TestMonotonicClock_StrictlyIncreasing(t *testing.T) {
	c := newMonotonicClock()

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		next := c.Now()
		if !next.After(prev) {
			t.Fatalf("stamp %d not increasing: %v then %v", i, prev, next)
		}
		prev = next
	}
}

func TestSeedClock_SurvivesReopen(t *testing.T) {
	db := setupServerDB(t)

	future := time.Now().UTC().Add(time.Hour)
	_, err := db.conn.Exec(`INSERT INTO items (id, name, checked, updated_at, created_at) VALUES ('i1', 'x', 0, ?, ?)`,
		formatTime(future), formatTime(future))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.seedClock(); err != nil {
		t.Fatalf("seed clock: %v", err)
	}

	if !db.clock.Now().After(future) {
		t.Fatal("clock not advanced past stored updated_at")
	}
}

func TestPushUsers_FullReplacementMembership(t *testing.T) {
	db := setupServerDB(t)

	u := models.User{ID: "u1", Email: "ann@example.com", HouseholdIDs: []string{"h1", "h2"}}
	if err := db.PushUsers([]models.User{u}); err != nil {
		t.Fatalf("push: %v", err)
	}

	ids, err := db.memberships("u1")
	if err != nil {
		t.Fatalf("memberships: %v", err)
	}
	if len(ids) != 2 || ids[0] != "h1" || ids[1] != "h2" {
		t.Fatalf("memberships: got %v, want [h1 h2]", ids)
	}

	// Shrinking the array revokes the missing membership.
	u.HouseholdIDs = []string{"h2"}
	if err := db.PushUsers([]models.User{u}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	ids, _ = db.memberships("u1")
	if len(ids) != 1 || ids[0] != "h2" {
		t.Fatalf("memberships after shrink: got %v, want [h2]", ids)
	}

	// Empty array clears everything.
	u.HouseholdIDs = nil
	if err := db.PushUsers([]models.User{u}); err != nil {
		t.Fatalf("third push: %v", err)
	}
	ids, _ = db.memberships("u1")
	if len(ids) != 0 {
		t.Fatalf("memberships after clear: got %v, want []", ids)
	}
}

func TestPullUsers_ProjectsMemberships(t *testing.T) {
	db := setupServerDB(t)

	u := models.User{ID: "u1", Email: "ann@example.com", HouseholdIDs: []string{"h2", "h1"}}
	if err := db.PushUsers([]models.User{u}); err != nil {
		t.Fatalf("push: %v", err)
	}

	docs, _, _, err := db.PullUsers(time.Time{}, 10)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("docs: got %d, want 1", len(docs))
	}
	// Projection is sorted for determinism.
	if len(docs[0].HouseholdIDs) != 2 || docs[0].HouseholdIDs[0] != "h1" || docs[0].HouseholdIDs[1] != "h2" {
		t.Fatalf("projected ids: got %v, want [h1 h2]", docs[0].HouseholdIDs)
	}
}

func TestStatus_CountsAndLatest(t *testing.T) {
	db := setupServerDB(t)

	st, err := db.Status(models.CollectionItems)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.DocumentCount != 0 || st.LastUpdatedAt != nil {
		t.Fatalf("empty status: %+v", st)
	}

	db.PushItems([]models.Item{{ID: "i1", Name: "a"}, {ID: "i2", Name: "b"}})

	st, err = db.Status(models.CollectionItems)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.DocumentCount != 2 {
		t.Fatalf("count: got %d, want 2", st.DocumentCount)
	}
	if st.LastUpdatedAt == nil {
		t.Fatal("missing last updated")
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupServerDB(t)

	n, err := db.RunMigrations()
	if err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
	if n != 0 {
		t.Fatalf("migrations rerun: got %d, want 0", n)
	}
	if got := db.getSchemaVersion(); got != ServerSchemaVersion {
		t.Fatalf("schema version: got %d, want %d", got, ServerSchemaVersion)
	}
}
