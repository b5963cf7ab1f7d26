package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"annobot/internal/storage"
	"annobot/pkg/logx"
)

type flagStore struct {
	mu    sync.Mutex
	flags map[int64]bool
}

func newFlagStore() *flagStore { return &flagStore{flags: map[int64]bool{}} }

func (f *flagStore) UpsertUser(ctx context.Context, u storage.User) error          { return nil }
func (f *flagStore) TouchActivity(ctx context.Context, userID int64) error         { return nil }
func (f *flagStore) LogAction(ctx context.Context, userID int64, a string) error   { return nil }
func (f *flagStore) ListRecipients(ctx context.Context) ([]int64, error)           { return nil, nil }
func (f *flagStore) Stats(ctx context.Context) (storage.Stats, error)              { return storage.Stats{}, nil }
func (f *flagStore) RecordBroadcast(ctx context.Context, a int64, m string, r int) error { return nil }
func (f *flagStore) Close() error                                                  { return nil }

func (f *flagStore) MarkRelaySent(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[userID] = true
	return nil
}

func (f *flagStore) RelaySent(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[userID], nil
}

func newTestRelay(t *testing.T, store storage.Store, status int, body string) (*Service, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return New(Config{
		Enabled: true,
		Token:   "relay-token",
		ChatID:  "-100123",
		BaseURL: srv.URL,
	}, store, logx.Nop()), calls
}

func TestNotifySendsOncePerUser(t *testing.T) {
	store := newFlagStore()
	rel, calls := newTestRelay(t, store, http.StatusOK, `{"ok":true}`)
	ctx := context.Background()
	u := storage.User{UserID: 42, Username: "alice"}

	if err := rel.Notify(ctx, u); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("calls = %d, want 1", *calls)
	}

	// A second trigger for the same user must be a no-op.
	if err := rel.Notify(ctx, u); err != nil {
		t.Fatalf("Notify (repeat) error: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("calls after repeat = %d, want 1", *calls)
	}
}

func TestNotifyFailureLeavesFlagClear(t *testing.T) {
	store := newFlagStore()
	rel, _ := newTestRelay(t, store, http.StatusBadGateway, `{"ok":false,"description":"upstream down"}`)
	ctx := context.Background()

	if err := rel.Notify(ctx, storage.User{UserID: 7}); err == nil {
		t.Fatal("expected error for failed send")
	}
	sent, err := store.RelaySent(ctx, 7)
	if err != nil {
		t.Fatalf("RelaySent error: %v", err)
	}
	if sent {
		t.Fatal("flag must only be set after a successful send")
	}
}

func TestNotifyRetriesAfterFailure(t *testing.T) {
	store := newFlagStore()
	fail := true
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if fail {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	rel := New(Config{Enabled: true, Token: "tk", ChatID: "-1", BaseURL: srv.URL}, store, logx.Nop())
	ctx := context.Background()
	u := storage.User{UserID: 9}

	if err := rel.Notify(ctx, u); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	fail = false
	if err := rel.Notify(ctx, u); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if sent, _ := store.RelaySent(ctx, 9); !sent {
		t.Fatal("flag not set after successful retry")
	}
}

func TestDisabledRelaySkips(t *testing.T) {
	t.Parallel()
	store := newFlagStore()
	rel := New(Config{Enabled: false}, store, logx.Nop())

	if err := rel.Notify(context.Background(), storage.User{UserID: 1}); err != nil {
		t.Fatalf("disabled relay must be a silent no-op, got %v", err)
	}
	if sent, _ := store.RelaySent(context.Background(), 1); sent {
		t.Fatal("disabled relay must not flag users")
	}
}
