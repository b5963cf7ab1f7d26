package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage is optional; nil defaults to a sqlite database at
	// ./annobot.db (the user registry backs every broadcast).
	Storage *StorageConfig `json:"storage,omitempty"`

	Broadcast BroadcastConfig `json:"broadcast"`

	// Updates controls the scheduled announcement jobs.
	Updates UpdatesConfig `json:"updates"`

	// Relay forwards each new user once to a secondary channel.
	Relay RelayConfig `json:"relay,omitempty"`

	Menu MenuConfig `json:"menu"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	AdminUserIDs []int64 `json:"admin_user_ids"`
	// GroupLog is the chat that receives error-level log mirrors.
	GroupLog string `json:"group_log,omitempty"`
}

type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // default ":8080"
	// PublicHost is the externally reachable host used for webhook
	// registration. Empty falls back to the inbound Host header.
	PublicHost string `json:"public_host,omitempty"`
	// RegisterTimeout is a Go duration string bounding set_webhook.
	RegisterTimeout string `json:"register_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BroadcastConfig tunes the admin-triggered fan-out.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
type BroadcastConfig struct {
	BatchSize  int    `json:"batch_size,omitempty"`  // default 30
	BatchPause string `json:"batch_pause,omitempty"` // default "500ms"
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	MinLen     int    `json:"min_len,omitempty"` // free-text shorter than this is ignored
}

// UpdatesConfig controls the scheduled daily and weekly announcements.
type UpdatesConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	DailyAt string       `json:"daily_at,omitempty"` // "HH:MM", default "09:00"
	Weekly  WeeklyConfig `json:"weekly,omitempty"`

	// Scheduled fan-out is gentler than the admin-triggered one.
	BatchSize  int    `json:"batch_size,omitempty"`  // default 25
	BatchPause string `json:"batch_pause,omitempty"` // default "300ms"
}

type WeeklyConfig struct {
	Day string `json:"day,omitempty"` // "mon".."sun", default "mon"
	At  string `json:"at,omitempty"`  // "HH:MM", default "10:00"
}

type RelayConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	ChatID  string `json:"chat_id,omitempty"`
}

// MenuConfig carries the menu destinations shown to users.
type MenuConfig struct {
	Contact      string     `json:"contact,omitempty"`
	MaterialsBot string     `json:"materials_bot,omitempty"`
	Guide        string     `json:"guide,omitempty"`
	Purchase     []MenuLink `json:"purchase,omitempty"`
	YouTube      []MenuLink `json:"youtube,omitempty"`
	Groups       []MenuLink `json:"groups,omitempty"`
}

type MenuLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
