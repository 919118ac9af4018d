package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/config"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store, err := OpenSQLite(ctx, ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.AutoMigrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestSQLiteStoreUsers(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	user := &User{ID: "u-1", Username: "budi", Email: "budi@example.com", PasswordHash: "hash"}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}

	found, err := store.FindUserByEmail(ctx, "budi@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if found.ID != "u-1" || found.Username != "budi" || found.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", found)
	}

	if _, err := store.FindUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	dup := &User{ID: "u-2", Username: "other", Email: "budi@example.com", PasswordHash: "x"}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestSQLiteStoreClassificationsNewestFirst(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"u-1", "u-2"} {
		if err := store.CreateUser(ctx, &User{ID: id, Username: id, Email: id + "@example.com", PasswordHash: "h"}); err != nil {
			t.Fatalf("create user %s: %v", id, err)
		}
	}

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	probs, err := EncodeProbabilities(map[string]float64{"glass": 80, "metal": 20})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	records := []*Classification{
		{ID: "c-1", UserID: "u-1", ImagePath: "a.jpg", PredictedClass: "glass", Confidence: 80, ClassProbabilities: probs, CreatedAt: base},
		{ID: "c-2", UserID: "u-1", ImagePath: "b.jpg", PredictedClass: "metal", Confidence: 60, ClassProbabilities: probs, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "c-3", UserID: "u-2", ImagePath: "c.jpg", PredictedClass: "paper", Confidence: 90, ClassProbabilities: probs, CreatedAt: base.Add(time.Hour)},
		{ID: "c-4", UserID: "u-1", ImagePath: "d.jpg", PredictedClass: "glass", Confidence: 70, ClassProbabilities: probs, CreatedAt: base.Add(time.Hour + time.Millisecond)},
	}
	for _, rec := range records {
		if err := store.SaveClassification(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", rec.ID, err)
		}
	}

	got, err := store.ListClassifications(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	wantOrder := []string{"c-2", "c-4", "c-1"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d records, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
	if !got[2].CreatedAt.Equal(base) {
		t.Fatalf("created_at did not round trip: %v", got[2].CreatedAt)
	}
	decoded, err := got[0].Probabilities()
	if err != nil {
		t.Fatalf("decode probabilities: %v", err)
	}
	if decoded["glass"] != 80 {
		t.Fatalf("unexpected probabilities: %v", decoded)
	}

	empty, err := store.ListClassifications(ctx, "missing")
	if err != nil {
		t.Fatalf("list missing: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no records, got %d", len(empty))
	}
}

func TestSQLiteStoreMigrateIsRepeatable(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOpenSQLiteBackend(t *testing.T) {
	cfg := configStore(config.BackendSQLite)
	cfg.SQLitePath = ":memory:"
	store, err := Open(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", store)
	}
}

func configStore(backend string) config.Store {
	return config.Store{Backend: backend, RequestTimeout: time.Second}
}
