package store

import (
	"context"
	"errors"
	"testing"

	"missiondir/internal/db"
	"missiondir/internal/domain"
	"missiondir/internal/migrate"
)

func newTestStore(t *testing.T, table, keyAttr string) Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := New(conn, table, keyAttr)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.Ensure(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return st
}

func TestPutGetRoundtrip(t *testing.T) {
	st := newTestStore(t, "", "")
	ctx := context.Background()
	m := domain.Mission{ID: "01abc", Name: "apollo", Description: "land on the moon", CreatedAt: "2024-01-01T00:00:00Z"}
	if err := st.Put(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Get(ctx, "01abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != m {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", got, m)
	}
}

func TestGetMissing(t *testing.T) {
	st := newTestStore(t, "", "")
	_, err := st.Get(context.Background(), "never-written")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutOverwriteLastWriteWins(t *testing.T) {
	st := newTestStore(t, "", "")
	ctx := context.Background()
	first := domain.Mission{ID: "01abc", Name: "one", Description: "first", CreatedAt: "2024-01-01T00:00:00Z"}
	second := domain.Mission{ID: "01abc", Name: "two", Description: "second", CreatedAt: "2024-01-02T00:00:00Z"}
	if err := st.Put(ctx, first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := st.Put(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}
	got, err := st.Get(ctx, "01abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "two" || got.Description != "second" {
		t.Fatalf("expected last write to win, got %+v", got)
	}
}

func TestConfiguredTableAndKeyNames(t *testing.T) {
	st := newTestStore(t, "mission_records", "mission_id")
	ctx := context.Background()
	m := domain.Mission{ID: "01xyz", Name: "voyager", Description: "grand tour", CreatedAt: "2024-01-01T00:00:00Z"}
	if err := st.Put(ctx, m); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := st.Get(ctx, "01xyz")
	if err != nil || got.Name != "voyager" {
		t.Fatalf("get via configured names: %+v %v", got, err)
	}
}

func TestInvalidIdentifiersRejected(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if _, err := New(conn, "missions; DROP TABLE x", ""); err == nil {
		t.Fatalf("expected invalid table name to be rejected")
	}
	if _, err := New(conn, "", "pk name"); err == nil {
		t.Fatalf("expected invalid key attribute to be rejected")
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	st := newTestStore(t, "", "")
	ctx := context.Background()
	key := domain.APIKey{
		ID:      "key-1",
		ActorID: "ops",
		Name:    "ci",
		Scope:   "read",
		KeyHash: HashAPIKey("secret-value"),
	}
	if err := st.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := st.GetAPIKeyByHash(ctx, HashAPIKey("secret-value"))
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.ActorID != "ops" || got.Scope != "read" {
		t.Fatalf("unexpected key: %+v", got)
	}
	if _, err := st.GetAPIKeyByHash(ctx, HashAPIKey("wrong")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown hash, got %v", err)
	}
	keys, err := st.ListAPIKeys(ctx, "ops")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %v", keys, err)
	}
	if err := st.DeleteAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.DeleteAPIKey(ctx, "key-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
