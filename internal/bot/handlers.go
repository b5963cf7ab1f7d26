// Package bot implements the chat-facing behavior: /start onboarding,
// menu callbacks, the admin panel, and the admin free-text broadcast.
//
// Handler logic is kept free of telebot types so tests can drive it
// directly; register.go holds the thin glue.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"annobot/internal/broadcast"
	"annobot/internal/relay"
	"annobot/internal/storage"
	"annobot/pkg/logx"
)

// ErrPermissionDenied is returned when a non-administrator invokes an
// admin-only operation. Surfaced immediately; no job is submitted.
var ErrPermissionDenied = errors.New("permission denied")

type Config struct {
	AdminIDs []int64

	// BroadcastMinLen: free-text shorter than this is ignored rather
	// than broadcast (guards against fat-fingered announcements).
	BroadcastMinLen int

	// Admin broadcast fan-out tuning.
	AdminBatchSize  int
	AdminBatchPause time.Duration

	Links Links
}

type Handlers struct {
	cfg   Config
	store storage.Store
	relay *relay.Service
	bc    *broadcast.Broadcaster
	log   logx.Logger

	// adminMu guards admins: SetAdmins runs on the config-reload
	// goroutine while IsAdmin is read on the dispatch loop.
	adminMu sync.RWMutex
	admins  []int64
}

func New(cfg Config, store storage.Store, rel *relay.Service, bc *broadcast.Broadcaster, log logx.Logger) *Handlers {
	if cfg.BroadcastMinLen <= 0 {
		cfg.BroadcastMinLen = 10
	}
	if cfg.AdminBatchSize <= 0 {
		cfg.AdminBatchSize = 30
	}
	if cfg.AdminBatchPause <= 0 {
		cfg.AdminBatchPause = 500 * time.Millisecond
	}
	return &Handlers{
		cfg:    cfg,
		store:  store,
		relay:  rel,
		bc:     bc,
		log:    log,
		admins: append([]int64(nil), cfg.AdminIDs...),
	}
}

// SetAdmins swaps the admin allowlist (config hot reload).
func (h *Handlers) SetAdmins(ids []int64) {
	next := append([]int64(nil), ids...)
	h.adminMu.Lock()
	h.admins = next
	h.adminMu.Unlock()
}

func (h *Handlers) IsAdmin(id int64) bool {
	h.adminMu.RLock()
	defer h.adminMu.RUnlock()
	for _, a := range h.admins {
		if a == id {
			return true
		}
	}
	return false
}

// Start onboards a user: persist, log, relay once to the secondary
// channel, and return the welcome text. Relay failure is best-effort
// and never blocks the welcome.
func (h *Handlers) Start(ctx context.Context, u storage.User) string {
	if err := h.store.UpsertUser(ctx, u); err != nil {
		h.log.Error("user upsert failed", logx.Int64("user_id", u.UserID), logx.Err(err))
	}
	if err := h.store.LogAction(ctx, u.UserID, "start_command"); err != nil {
		h.log.Warn("action log failed", logx.Int64("user_id", u.UserID), logx.Err(err))
	}
	if h.relay != nil {
		if err := h.relay.Notify(ctx, u); err != nil {
			h.log.Warn("relay notify failed", logx.Int64("user_id", u.UserID), logx.Err(err))
		}
	}
	return msgWelcome
}

// Touch records a menu interaction for activity stats.
func (h *Handlers) Touch(ctx context.Context, userID int64, action string) {
	if err := h.store.LogAction(ctx, userID, action); err != nil {
		h.log.Warn("action log failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	if err := h.store.TouchActivity(ctx, userID); err != nil {
		h.log.Warn("activity touch failed", logx.Int64("user_id", userID), logx.Err(err))
	}
}

// AdminBroadcast is the admin broadcast trigger: permission-gated, then
// fans the announcement out to every user and returns a human-readable
// summary. Per-recipient failures are absorbed by the broadcaster; only
// a failed recipient snapshot is an error here.
func (h *Handlers) AdminBroadcast(ctx context.Context, fromID int64, text string) (string, error) {
	if !h.IsAdmin(fromID) {
		return "", ErrPermissionDenied
	}

	body := "📢 Announcement:\n\n" + text
	res, err := h.bc.Broadcast(ctx, body, broadcast.Options{
		BatchSize: h.cfg.AdminBatchSize,
		Pause:     h.cfg.AdminBatchPause,
	})
	if err != nil {
		h.log.Error("admin broadcast failed", logx.Int64("admin_id", fromID), logx.Err(err))
		return "", err
	}

	if err := h.store.RecordBroadcast(ctx, fromID, text, res.Succeeded); err != nil {
		h.log.Warn("broadcast audit failed", logx.Err(err))
	}
	return fmt.Sprintf("✅ Broadcast completed!\n📨 Sent to: %d/%d users", res.Succeeded, res.Attempted), nil
}

// ShouldBroadcast reports whether a free-text message from an admin is
// an announcement: not a command, not a reply, long enough to be meant.
func (h *Handlers) ShouldBroadcast(text string, isReply bool) bool {
	if isReply {
		return false
	}
	t := strings.TrimSpace(text)
	return t != "" && !strings.HasPrefix(t, "/") && len(t) > h.cfg.BroadcastMinLen
}

// StatsText returns the admin statistics panel body.
func (h *Handlers) StatsText(ctx context.Context, fromID int64) (string, error) {
	if !h.IsAdmin(fromID) {
		return "", ErrPermissionDenied
	}
	st, err := h.store.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("stats: %w", err)
	}
	return fmt.Sprintf(
		"📊 <b>Bot Statistics</b>\n\n👤 Total Users: <b>%d</b>\n🆕 New Users Today: <b>%d</b>\n📈 Active Today: <b>%d</b>",
		st.TotalUsers, st.NewUsersToday, st.ActiveToday,
	), nil
}

// PanelText returns the admin panel body.
func (h *Handlers) PanelText(ctx context.Context, fromID int64) (string, error) {
	if !h.IsAdmin(fromID) {
		return "", ErrPermissionDenied
	}
	if err := h.store.LogAction(ctx, fromID, "admin_panel"); err != nil {
		h.log.Warn("action log failed", logx.Err(err))
	}
	return msgAdminPanel, nil
}
