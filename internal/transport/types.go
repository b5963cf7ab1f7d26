package transport

import "context"

// SendOptions mirrors the small subset of send tuning the bot needs.
type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyMarkup    any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Update is an opaque inbound update. Only the adapter that decoded it
// knows the concrete type; everyone else just moves it around.
type Update struct {
	Raw any
}

// Sender delivers one message to one chat. May fail per-chat without
// affecting other sends.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, opt *SendOptions) error
}

// Adapter is the full transport surface: decode inbound webhook payloads,
// route them through the platform handlers, send messages, and register
// the webhook endpoint with the platform.
type Adapter interface {
	Sender

	DecodeUpdate(payload []byte) (Update, error)
	HandleUpdate(ctx context.Context, up Update) error
	RegisterWebhook(ctx context.Context, url string) error
}
