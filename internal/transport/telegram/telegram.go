// Package telegram adapts the bot to the Telegram platform via telebot.
//
// Unlike a long-polling bot, updates arrive exclusively through the HTTP
// webhook route: the raw payload is decoded here and fed to telebot's
// router with ProcessUpdate. The adapter is configured synchronous, so
// handler work stays on the dispatch loop that called HandleUpdate.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"annobot/internal/transport"
	"annobot/pkg/logx"
)

type Config struct {
	Token string
	// BaseURL overrides the Telegram API host (tests, proxies).
	BaseURL string
	// Offline skips the startup getMe call (tests).
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot  *tele.Bot
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" && !cfg.Offline {
		return nil, errors.New("telegram token is empty")
	}
	a := &Adapter{cfg: cfg, log: log, http: &http.Client{Timeout: 8 * time.Second}}

	b, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		URL:         cfg.BaseURL,
		Offline:     cfg.Offline,
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			f := []logx.Field{logx.Err(err)}
			if c != nil && c.Chat() != nil {
				f = append(f, logx.Int64("chat_id", c.Chat().ID))
			}
			log.Warn("handler error", f...)
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	return a, nil
}

// Bot exposes the underlying router for handler registration.
func (a *Adapter) Bot() *tele.Bot { return a.bot }

// DecodeUpdate parses a raw webhook payload. A malformed payload is a
// client error; the update is otherwise opaque to callers.
func (a *Adapter) DecodeUpdate(payload []byte) (transport.Update, error) {
	var u tele.Update
	dec := json.NewDecoder(strings.NewReader(string(payload)))
	if err := dec.Decode(&u); err != nil {
		return transport.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return transport.Update{Raw: u}, nil
}

// HandleUpdate routes one decoded update through the telebot handlers.
// Handler errors surface via OnError; this only fails on a bad payload
// type, which would be a programming error upstream.
func (a *Adapter) HandleUpdate(ctx context.Context, up transport.Update) error {
	u, ok := up.Raw.(tele.Update)
	if !ok {
		return fmt.Errorf("unexpected update payload %T", up.Raw)
	}
	a.bot.ProcessUpdate(u)
	return nil
}

func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if opt.ReplyMarkup != nil {
		if rm, ok := opt.ReplyMarkup.(*tele.ReplyMarkup); ok {
			sendOpt.ReplyMarkup = rm
		}
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, sendOpt)
	return err
}

// RegisterWebhook points Telegram at publicURL. telebot's webhook poller
// wants to own the listener, which ours doesn't, so this goes straight
// to the bot API.
func (a *Adapter) RegisterWebhook(ctx context.Context, publicURL string) error {
	base := strings.TrimSpace(a.cfg.BaseURL)
	if base == "" {
		base = "https://api.telegram.org"
	}
	endpoint := strings.TrimRight(base, "/") + "/bot" + strings.TrimSpace(a.cfg.Token) + "/setWebhook"

	form := url.Values{"url": {publicURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
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
			return fmt.Errorf("setWebhook failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("setWebhook failed: http=%d", resp.StatusCode)
	}
	a.log.Info("webhook registered", logx.String("url", publicURL))
	return nil
}
