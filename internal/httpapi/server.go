// Package httpapi is the synchronous boundary of the service: Telegram
// webhook ingress, webhook registration, and liveness probes.
//
// Handlers never run bot logic inline; they bridge work onto the
// dispatch loop and acknowledge immediately. The one exception is
// webhook registration, which legitimately needs the result before
// responding and waits with an explicit timeout.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"annobot/internal/dispatch"
	"annobot/internal/transport"
	"annobot/pkg/logx"
)

const maxUpdateBody = 1 << 20 // Telegram updates are tiny; 1MiB is generous.

type Config struct {
	Addr string
	// PublicHost is the externally reachable host used when registering
	// the webhook. Empty falls back to the request's Host header.
	PublicHost string
	// RegisterTimeout bounds the set_webhook bridge wait.
	RegisterTimeout time.Duration
}

type Server struct {
	cfg     Config
	loop    *dispatch.Loop
	adapter transport.Adapter
	log     logx.Logger

	srv *http.Server
	ln  net.Listener
}

func New(cfg Config, loop *dispatch.Loop, adapter transport.Adapter, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = 15 * time.Second
	}
	return &Server{cfg: cfg, loop: loop, adapter: adapter, log: log}
}

// Router builds the chi handler tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/set_webhook", s.handleSetWebhook)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.String("addr", s.Addr()), logx.Err(err))
		}
	}()
	s.log.Info("http server started", logx.String("addr", s.Addr()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) Addr() string {
	if s.ln == nil {
		return s.cfg.Addr
	}
	return s.ln.Addr().String()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "annobot is running",
		"webhook": true,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleWebhook accepts one Telegram update: decode synchronously so a
// malformed payload gets a client error, then hand the update to the
// dispatch loop and acknowledge without waiting. Failures inside the
// job are logged, never surfaced to Telegram (which would retry).
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errDoc("read body: "+err.Error()))
		return
	}

	up, err := s.adapter.DecodeUpdate(body)
	if err != nil {
		s.log.Debug("webhook payload rejected", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, errDoc(err.Error()))
		return
	}

	if _, err := s.loop.Submit("webhook.update", func(ctx context.Context) error {
		return s.adapter.HandleUpdate(ctx, up)
	}); err != nil {
		s.log.Error("webhook submit failed", logx.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errDoc("dispatcher unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleSetWebhook registers the public webhook URL with Telegram. This
// is the one bridge-await path: the caller wants the outcome, so we wait
// up to RegisterTimeout and surface a timeout distinctly from a
// registration failure. On timeout the registration may still complete
// later; there is no cancellation.
func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}
	webhookURL := "https://" + host + "/webhook"

	err := s.loop.SubmitWait(r.Context(), "webhook.register", func(ctx context.Context) error {
		return s.adapter.RegisterWebhook(ctx, webhookURL)
	}, s.cfg.RegisterTimeout)

	switch {
	case errors.Is(err, dispatch.ErrTimedOut):
		writeJSON(w, http.StatusGatewayTimeout, errDoc("webhook registration timed out"))
	case errors.Is(err, dispatch.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errDoc("dispatcher unavailable"))
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errDoc(err.Error()))
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "success",
			"webhook_url": webhookURL,
		})
	}
}

func errDoc(msg string) map[string]any {
	return map[string]any{"status": "error", "message": msg}
}

func writeJSON(w http.ResponseWriter, code int, doc any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(doc)
}
