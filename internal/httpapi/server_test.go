package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"annobot/internal/dispatch"
	"annobot/internal/transport"
	"annobot/pkg/logx"
)

type fakeAdapter struct {
	mu         sync.Mutex
	handled    int
	handledCh  chan struct{}
	registered []string

	registerErr   error
	registerBlock chan struct{}
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{handledCh: make(chan struct{}, 16)}
}

func (f *fakeAdapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	return nil
}

func (f *fakeAdapter) DecodeUpdate(payload []byte) (transport.Update, error) {
	if !json.Valid(payload) {
		return transport.Update{}, errors.New("decode update: invalid json")
	}
	return transport.Update{Raw: payload}, nil
}

func (f *fakeAdapter) HandleUpdate(ctx context.Context, up transport.Update) error {
	f.mu.Lock()
	f.handled++
	f.mu.Unlock()
	f.handledCh <- struct{}{}
	return nil
}

func (f *fakeAdapter) RegisterWebhook(ctx context.Context, url string) error {
	if f.registerBlock != nil {
		select {
		case <-f.registerBlock:
		case <-ctx.Done():
		}
	}
	if f.registerErr != nil {
		return f.registerErr
	}
	f.mu.Lock()
	f.registered = append(f.registered, url)
	f.mu.Unlock()
	return nil
}

func newTestServer(t *testing.T, adapter *fakeAdapter, cfg Config) *httptest.Server {
	t.Helper()
	loop := dispatch.New(dispatch.Config{}, logx.Nop())
	loop.Start(context.Background())
	t.Cleanup(loop.Close)

	s := New(cfg, loop, adapter, logx.Nop())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, doc
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeAdapter(), Config{})

	code, doc := getJSON(t, srv.URL+"/health")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if doc["status"] != "healthy" {
		t.Fatalf("status field = %v, want healthy", doc["status"])
	}
	if doc["timestamp"] == nil {
		t.Fatal("missing timestamp")
	}
}

func TestWebhookAcknowledgesAndDispatches(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	srv := newTestServer(t, adapter, Config{})

	resp, err := http.Post(srv.URL+"/webhook", "application/json",
		strings.NewReader(`{"update_id":1,"message":{"text":"/start"}}`))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// The ack is immediate; the update is processed asynchronously.
	select {
	case <-adapter.handledCh:
	case <-time.After(5 * time.Second):
		t.Fatal("update never reached the adapter")
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	srv := newTestServer(t, adapter, Config{})

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(`{not json`))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	adapter.mu.Lock()
	handled := adapter.handled
	adapter.mu.Unlock()
	if handled != 0 {
		t.Fatal("malformed payload must not be dispatched")
	}
}

func TestWebhookUnavailableAfterLoopClose(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	loop := dispatch.New(dispatch.Config{}, logx.Nop())
	loop.Start(context.Background())
	loop.Close()

	s := New(Config{}, loop, adapter, logx.Nop())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(`{"update_id":1}`))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestSetWebhookSuccess(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	srv := newTestServer(t, adapter, Config{PublicHost: "bot.example.com"})

	code, doc := getJSON(t, srv.URL+"/set_webhook")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if doc["status"] != "success" {
		t.Fatalf("status field = %v, want success", doc["status"])
	}
	want := "https://bot.example.com/webhook"
	if doc["webhook_url"] != want {
		t.Fatalf("webhook_url = %v, want %s", doc["webhook_url"], want)
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.registered) != 1 || adapter.registered[0] != want {
		t.Fatalf("registered = %v, want [%s]", adapter.registered, want)
	}
}

func TestSetWebhookTimeout(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	adapter.registerBlock = make(chan struct{})
	defer close(adapter.registerBlock)
	srv := newTestServer(t, adapter, Config{
		PublicHost:      "bot.example.com",
		RegisterTimeout: 50 * time.Millisecond,
	})

	code, doc := getJSON(t, srv.URL+"/set_webhook")
	if code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", code)
	}
	if doc["status"] != "error" {
		t.Fatalf("status field = %v, want error", doc["status"])
	}
}

func TestSetWebhookRegistrationFailure(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	adapter.registerErr = errors.New("telegram says no")
	srv := newTestServer(t, adapter, Config{PublicHost: "bot.example.com"})

	code, doc := getJSON(t, srv.URL+"/set_webhook")
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	if msg, _ := doc["message"].(string); !strings.Contains(msg, "telegram says no") {
		t.Fatalf("message = %v, want registration error surfaced", doc["message"])
	}
}

func TestIndex(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeAdapter(), Config{})

	code, doc := getJSON(t, srv.URL+"/")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if doc["status"] == nil {
		t.Fatal("missing status field")
	}
}
