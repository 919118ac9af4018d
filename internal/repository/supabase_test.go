package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mehtapradnyatama/appsampah/internal/logging"
	"github.com/mehtapradnyatama/appsampah/internal/supabase"
)

func newTestSupabaseStore(t *testing.T, handler http.HandlerFunc) *SupabaseStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := NewSupabaseStore(supabase.NewClient(server.URL, "anon-key", 2*time.Second), zap.NewNop())
	store.retry.initialBackoff = time.Millisecond
	store.retry.maxBackoff = 2 * time.Millisecond
	return store
}

func TestSupabaseStoreFindUserByEmail(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/users" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("email"); got != "eq.sari@example.com" {
			t.Errorf("unexpected email filter %q", got)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("missing apikey header")
		}
		_, _ = io.WriteString(w, `[{"id":"u-9","username":"sari","email":"sari@example.com","password_hash":"h","created_at":"2025-05-01T09:30:00.123456"}]`)
	})

	user, err := store.FindUserByEmail(context.Background(), "sari@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.ID != "u-9" || user.Username != "sari" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.CreatedAt.Hour() != 9 || user.CreatedAt.Minute() != 30 {
		t.Fatalf("unexpected created_at: %v", user.CreatedAt)
	}
}

func TestSupabaseStoreFindUserNotFound(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})

	if _, err := store.FindUserByEmail(context.Background(), "x@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSupabaseStoreSaveClassification(t *testing.T) {
	var received map[string]any
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/v1/classifications" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("missing Prefer header")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"c-1","created_at":"2025-05-01T10:00:00+00:00"}]`)
	})

	record := &Classification{
		ID:                 "c-1",
		UserID:             "u-1",
		ImagePath:          "20250501_100000_bottle.jpg",
		PredictedClass:     "plastic",
		Confidence:         91.5,
		ClassProbabilities: `{"plastic":91.5,"glass":8.5}`,
	}
	if err := store.SaveClassification(context.Background(), record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if received["predicted_class"] != "plastic" || received["user_id"] != "u-1" {
		t.Fatalf("unexpected body: %v", received)
	}
	if _, ok := received["created_at"]; ok {
		t.Fatal("zero created_at should be left to the database default")
	}
	want := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	if !record.CreatedAt.Equal(want) {
		t.Fatalf("expected created_at %v, got %v", want, record.CreatedAt)
	}
}

func TestSupabaseStoreListClassificationsOrder(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("user_id") != "eq.u-1" || q.Get("order") != "created_at.desc" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[
			{"id":"c-2","user_id":"u-1","predicted_class":"glass","confidence":70,"class_probabilities":"{}","created_at":"2025-05-02T10:00:00Z"},
			{"id":"c-1","user_id":"u-1","predicted_class":"metal","confidence":60,"class_probabilities":"{}","created_at":"2025-05-01T10:00:00Z"}
		]`)
	})

	records, err := store.ListClassifications(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ID != "c-2" || records[1].PredictedClass != "metal" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestSupabaseStoreRetriesServerErrors(t *testing.T) {
	var calls int32
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})

	records, err := store.ListClassifications(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty list, got %d", len(records))
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestSupabaseStoreDuplicateEmail(t *testing.T) {
	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint"}`)
	})

	ctx := logging.ContextWithRequestID(context.Background(), "req-7")
	err := store.CreateUser(ctx, &User{ID: "u-1", Email: "a@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.RequestID != "req-7" {
		t.Fatalf("expected OperationError carrying the request id, got %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), configStore("mongo"), zap.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestSupabaseStoreCreateUserTimeoutIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// The row is committed but the response arrives after the client gave up.
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[]`)
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint"}`)
	}))
	t.Cleanup(server.Close)

	store := NewSupabaseStore(supabase.NewClient(server.URL, "anon-key", 100*time.Millisecond), zap.NewNop())
	store.retry.initialBackoff = time.Millisecond
	store.retry.maxBackoff = 2 * time.Millisecond

	err := store.CreateUser(context.Background(), &User{ID: "u-1", Email: "a@example.com"})
	if err == nil {
		t.Fatal("expected the timeout to be reported")
	}
	if errors.Is(err, ErrDuplicate) {
		t.Fatalf("a timed out insert must not turn into a duplicate: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestSupabaseStoreNaiveTimestampsAreLocal(t *testing.T) {
	saved := time.Local
	time.Local = time.FixedZone("WIB", 7*60*60)
	t.Cleanup(func() { time.Local = saved })

	store := newTestSupabaseStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"c-1","user_id":"u-1","predicted_class":"paper","confidence":80,"class_probabilities":"{}","created_at":"2025-06-10T23:30:00"}]`)
	})

	records, err := store.ListClassifications(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := records[0].CreatedAt
	if y, m, d := got.Date(); y != 2025 || m != time.June || d != 10 || got.Hour() != 23 {
		t.Fatalf("expected 2025-06-10 23:30 local, got %v", got)
	}
}
