// Package relay reports each new user once to a secondary Telegram
// channel (a second bot token + chat). The persisted relay_sent flag
// makes the notification idempotent across retriggers.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"annobot/internal/storage"
	"annobot/pkg/logx"
)

const defaultBaseURL = "https://api.telegram.org"

type Config struct {
	Enabled bool
	Token   string
	ChatID  string
	// BaseURL overrides the Telegram API host. Empty means production.
	BaseURL string
}

type Service struct {
	cfg   Config
	store storage.Store
	log   logx.Logger
	http  *http.Client
}

func New(cfg Config, store storage.Store, log logx.Logger) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		log:   log,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether the relay has everything it needs to send.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled &&
		strings.TrimSpace(s.cfg.Token) != "" &&
		strings.TrimSpace(s.cfg.ChatID) != ""
}

// Notify sends the new-user card to the secondary channel, at most once
// per user. A user already flagged is skipped; the flag is only set
// after a successful send, so a failed attempt is retried on the next
// trigger.
func (s *Service) Notify(ctx context.Context, u storage.User) error {
	if !s.Enabled() {
		s.log.Debug("relay disabled; skipping", logx.Int64("user_id", u.UserID))
		return nil
	}

	sent, err := s.store.RelaySent(ctx, u.UserID)
	if err != nil {
		return fmt.Errorf("relay flag lookup: %w", err)
	}
	if sent {
		s.log.Debug("user already relayed; skipping", logx.Int64("user_id", u.UserID))
		return nil
	}

	if err := s.send(ctx, userCard(u)); err != nil {
		s.log.Warn("relay send failed", logx.Int64("user_id", u.UserID), logx.Err(err))
		return err
	}

	if err := s.store.MarkRelaySent(ctx, u.UserID); err != nil {
		return fmt.Errorf("relay flag update: %w", err)
	}
	s.log.Info("user relayed", logx.Int64("user_id", u.UserID))
	return nil
}

func userCard(u storage.User) string {
	username := u.Username
	if username == "" {
		username = "none"
	}
	return fmt.Sprintf(
		"🆕 New user\n\n• Chat ID: %d\n• Username: @%s\n• First name: %s\n• Last name: %s\n• Joined: %s",
		u.UserID, username, u.FirstName, u.LastName,
		time.Now().Format("2006-01-02 15:04:05"),
	)
}

func (s *Service) send(ctx context.Context, text string) error {
	base := strings.TrimSpace(s.cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	url := strings.TrimRight(base, "/") + "/bot" + strings.TrimSpace(s.cfg.Token) + "/sendMessage"

	payload := struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}{ChatID: strings.TrimSpace(s.cfg.ChatID), Text: text}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("relay sendMessage failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("relay sendMessage failed: http=%d", resp.StatusCode)
	}
	return nil
}
