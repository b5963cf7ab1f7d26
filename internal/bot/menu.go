package bot

import (
	tele "gopkg.in/telebot.v4"
)

// Link is one labeled URL button.
type Link struct {
	Name string
	URL  string
}

// Links carries the menu destinations. All content is configuration;
// the bot only lays it out.
type Links struct {
	Contact      string
	MaterialsBot string
	Guide        string
	Purchase     []Link
	YouTube      []Link
	Groups       []Link
}

const (
	msgWelcome = "🌟 <b>Welcome!</b> 🌟\n\n" +
		"🚀 Your one-stop destination for:\n" +
		"• 📚 Free study materials\n" +
		"• 🎓 Premium lectures\n" +
		"• 📺 Educational content\n" +
		"• 👥 Study groups\n\n" +
		"👇 <b>Choose an option below to get started:</b>"

	msgMainMenu = "🏠 <b>Main Menu</b>\n\nChoose an option:"

	msgAdminPanel = "🛠️ <b>Admin Panel</b>\n\nManage your bot efficiently with these tools:"

	msgLectures = "🎓 <b>Premium Lectures</b>\n\n" +
		"Enhance your learning with our premium features:\n" +
		"• 🎥 HD video lectures\n" +
		"• 📝 Detailed PDF notes\n" +
		"• ❓ Doubt solving sessions\n\n" +
		"👇 <b>Watch the guide and contact for purchase:</b>"

	msgYouTube = "📺 <b>Our YouTube Channels</b>\n\n👇 <b>Choose a channel to explore:</b>"

	msgGroups = "👥 <b>Join Our Community</b>\n\n👇 <b>Choose a group to join:</b>"

	// MsgDailyUpdate is the scheduled daily broadcast body.
	MsgDailyUpdate = "🗓️ <b>Today's Update!</b>\n\n" +
		"🎁 New materials added in the free section!\n" +
		"📚 Study tips and tricks available\n" +
		"💪 Stay motivated and keep learning!\n\n" +
		"Check the main menu for the latest content 👇"

	// MsgWeeklyTip is the scheduled weekly broadcast body.
	MsgWeeklyTip = "📚 <b>Weekly Study Tip</b>\n\n" +
		"🎯 Plan your week ahead and set daily goals!\n" +
		"📖 Small consistent efforts lead to big results.\n" +
		"⏰ Manage time effectively for better productivity.\n\n" +
		"Check out our channels for more tips! 👇"
)

// Callback data values (raw, no telebot unique prefix).
const (
	cbMainMenu  = "main_menu"
	cbHelp      = "help"
	cbMaterials = "free_materials"
	cbLectures  = "buy_lecture"
	cbYouTube   = "youtube"
	cbGroups    = "groups"
	cbAdmStats  = "admin_stats"
)

func mainMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "🆘 Help", Data: cbHelp}, {Text: "🎁 Free Materials", Data: cbMaterials}},
		{{Text: "🎓 Buy Lectures", Data: cbLectures}, {Text: "▶️ YouTube", Data: cbYouTube}},
		{{Text: "👥 Groups", Data: cbGroups}},
	}}
}

func adminPanel() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "📈 View Stats", Data: cbAdmStats}},
		{{Text: "🔙 Main Menu", Data: cbMainMenu}},
	}}
}

func urlRows(links []Link) [][]tele.InlineButton {
	var rows [][]tele.InlineButton
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		rows = append(rows, []tele.InlineButton{{Text: l.Name, URL: l.URL}})
	}
	return rows
}

func backRow() []tele.InlineButton {
	return []tele.InlineButton{{Text: "🔙 Back to Main", Data: cbMainMenu}}
}

func (h *Handlers) helpMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "📞 Contact Admin Now", URL: h.cfg.Links.Contact}},
	}}
}

func (h *Handlers) materialsMenu() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
		{{Text: "🤖 Open Materials Bot", URL: h.cfg.Links.MaterialsBot}},
	}}
}

func (h *Handlers) lecturesMenu() *tele.ReplyMarkup {
	rows := [][]tele.InlineButton{}
	if h.cfg.Links.Guide != "" {
		rows = append(rows, []tele.InlineButton{{Text: "▶️ Watch Guide", URL: h.cfg.Links.Guide}})
	}
	var contacts []tele.InlineButton
	for _, l := range h.cfg.Links.Purchase {
		contacts = append(contacts, tele.InlineButton{Text: l.Name, URL: l.URL})
	}
	if len(contacts) > 0 {
		rows = append(rows, contacts)
	}
	rows = append(rows, backRow())
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func (h *Handlers) youtubeMenu() *tele.ReplyMarkup {
	rows := urlRows(h.cfg.Links.YouTube)
	rows = append(rows, backRow())
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func (h *Handlers) groupsMenu() *tele.ReplyMarkup {
	rows := urlRows(h.cfg.Links.Groups)
	rows = append(rows, backRow())
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
