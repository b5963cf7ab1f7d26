package bot

import (
	"context"
	"errors"

	tele "gopkg.in/telebot.v4"

	"annobot/internal/storage"
)

const parseHTML = tele.ModeHTML

const msgNoPermission = "❌ You don't have permission to use this command."

// Register wires the handlers into the telebot router. The router runs
// synchronously inside the dispatch loop, so everything below executes
// on the single execution context.
func (h *Handlers) Register(b *tele.Bot) {
	ctx := context.Background()

	b.Handle("/start", func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		welcome := h.Start(ctx, storage.User{
			UserID:    sender.ID,
			Username:  sender.Username,
			FirstName: sender.FirstName,
			LastName:  sender.LastName,
		})
		return c.Send(welcome, mainMenu(), parseHTML)
	})

	b.Handle("/panel", func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		text, err := h.PanelText(ctx, sender.ID)
		if errors.Is(err, ErrPermissionDenied) {
			return c.Send(msgNoPermission)
		}
		if err != nil {
			return err
		}
		return c.Send(text, adminPanel(), parseHTML)
	})

	b.Handle("/stats", func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		text, err := h.StatsText(ctx, sender.ID)
		if errors.Is(err, ErrPermissionDenied) {
			return c.Send(msgNoPermission)
		}
		if err != nil {
			return err
		}
		return c.Send(text, parseHTML)
	})

	b.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		sender := c.Sender()
		if m == nil || sender == nil || !h.ShouldBroadcast(m.Text, m.ReplyTo != nil) {
			return nil
		}
		summary, err := h.AdminBroadcast(ctx, sender.ID, m.Text)
		if errors.Is(err, ErrPermissionDenied) {
			return c.Send(msgNoPermission)
		}
		if err != nil {
			return c.Send("❌ Broadcast failed: " + err.Error())
		}
		return c.Send(summary)
	})

	b.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		return h.onCallback(ctx, c, trimCallbackData(cb.Data))
	})
}

func (h *Handlers) onCallback(ctx context.Context, c tele.Context, data string) error {
	// Channel posts and service updates carry no sender.
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	userID := sender.ID

	switch data {
	case cbMainMenu:
		h.Touch(ctx, userID, "main_menu")
		if err := c.Edit(msgMainMenu, mainMenu(), parseHTML); err != nil {
			return err
		}
		return c.Respond()

	case cbHelp:
		h.Touch(ctx, userID, "help_section")
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Send("Please click the button below to contact admin:", h.helpMenu())

	case cbMaterials:
		h.Touch(ctx, userID, "free_materials")
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Send("Please click the button below to open the materials bot:", h.materialsMenu())

	case cbLectures:
		h.Touch(ctx, userID, "buy_lecture")
		if err := c.Edit(msgLectures, h.lecturesMenu(), parseHTML); err != nil {
			return err
		}
		return c.Respond()

	case cbYouTube:
		h.Touch(ctx, userID, "youtube_channels")
		if err := c.Edit(msgYouTube, h.youtubeMenu(), parseHTML); err != nil {
			return err
		}
		return c.Respond()

	case cbGroups:
		h.Touch(ctx, userID, "public_groups")
		if err := c.Edit(msgGroups, h.groupsMenu(), parseHTML); err != nil {
			return err
		}
		return c.Respond()

	case cbAdmStats:
		text, err := h.StatsText(ctx, userID)
		if errors.Is(err, ErrPermissionDenied) {
			return c.Respond(&tele.CallbackResponse{Text: "❌ Access denied", ShowAlert: true})
		}
		if err != nil {
			return err
		}
		if err := c.Edit(text, adminPanel(), parseHTML); err != nil {
			return err
		}
		return c.Respond()

	default:
		return c.Respond()
	}
}

// trimCallbackData strips telebot's unique-handler prefix ("\f<unique>|")
// when present; buttons built from raw InlineButton data arrive as-is.
func trimCallbackData(data string) string {
	if len(data) > 0 && data[0] == '\f' {
		data = data[1:]
	}
	for i := 0; i < len(data); i++ {
		if data[i] == '|' {
			return data[i+1:]
		}
	}
	return data
}
