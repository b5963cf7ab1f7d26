package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalJSON = `{
  "telegram": {"token": "123:abc", "admin_user_ids": [100]},
  "http": {"addr": ":8080", "public_host": "bot.example.com"},
  "logging": {"level": "INFO", "console": true,
    "file": {"enabled": false, "path": ""},
    "telegram": {"enabled": false, "min_level": "WARN", "rate_per_sec": 1}},
  "broadcast": {"batch_size": 30, "batch_pause": "500ms"},
  "updates": {"enabled": true, "daily_at": "09:00",
    "weekly": {"day": "mon", "at": "10:00"},
    "batch_size": 25, "batch_pause": "300ms"},
  "menu": {}
}`

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", minimalJSON)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.AdminUserIDs) != 1 || cfg.Telegram.AdminUserIDs[0] != 100 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminUserIDs)
	}
	if cfg.Updates.Weekly.Day != "mon" || cfg.Updates.Weekly.At != "10:00" {
		t.Fatalf("weekly = %+v", cfg.Updates.Weekly)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get must return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  admin_user_ids: [100, 200]
http:
  addr: ":9090"
logging:
  level: DEBUG
  console: true
  file: {enabled: false, path: ""}
  telegram: {enabled: false, min_level: WARN, rate_per_sec: 1}
broadcast:
  batch_size: 10
  batch_pause: 250ms
updates:
  enabled: false
menu: {}
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Broadcast.BatchSize != 10 || cfg.Broadcast.BatchPause != "250ms" {
		t.Fatalf("broadcast = %+v", cfg.Broadcast)
	}
	if len(cfg.Telegram.AdminUserIDs) != 2 {
		t.Fatalf("admins = %v", cfg.Telegram.AdminUserIDs)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x", "typo_field": true}}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram": {"token": "x"}} {"extra": true}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "123:abc"},
			Updates: UpdatesConfig{
				Enabled: true,
				DailyAt: "09:00",
				Weekly:  WeeklyConfig{Day: "mon", At: "10:00"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = " " }, wantErr: "telegram.token"},
		{name: "bad register timeout", mutate: func(c *Config) { c.HTTP.RegisterTimeout = "soon" }, wantErr: "register_timeout"},
		{name: "bad storage driver", mutate: func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, wantErr: "storage.driver"},
		{name: "bad daily time", mutate: func(c *Config) { c.Updates.DailyAt = "25:00" }, wantErr: "daily_at"},
		{name: "bad weekday", mutate: func(c *Config) { c.Updates.Weekly.Day = "moonday" }, wantErr: "weekly.day"},
		{name: "bad timezone", mutate: func(c *Config) { c.Updates.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
		{name: "negative batch", mutate: func(c *Config) { c.Broadcast.BatchSize = -1 }, wantErr: "batch_size"},
		{name: "relay missing token", mutate: func(c *Config) { c.Relay = RelayConfig{Enabled: true, ChatID: "-1"} }, wantErr: "relay.token"},
		{name: "relay missing chat", mutate: func(c *Config) { c.Relay = RelayConfig{Enabled: true, Token: "t"} }, wantErr: "relay.chat_id"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "500ms"); err != nil || d != 500*time.Millisecond {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be zero, got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration must be rejected")
	}
	if _, err := ParseDurationField("x", "fast"); err == nil {
		t.Fatal("garbage duration must be rejected")
	}

	if d, err := ParseDurationOrDefault("x", "", 2*time.Second); err != nil || d != 2*time.Second {
		t.Fatalf("default not applied: (%v, %v)", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Telegram: TelegramConfig{Token: "a", AdminUserIDs: []int64{1}}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "a", AdminUserIDs: []int64{1, 2}},
		Broadcast: BroadcastConfig{BatchSize: 50},
	}

	sections, _ := SummarizeChange(oldCfg, newCfg)
	joined := strings.Join(sections, ",")
	if !strings.Contains(joined, "telegram") || !strings.Contains(joined, "broadcast") {
		t.Fatalf("sections = %v", sections)
	}

	if sections, _ := SummarizeChange(newCfg, newCfg); len(sections) != 0 {
		t.Fatalf("no-op change reported sections: %v", sections)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", minimalJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	sub := m.Subscribe(1)
	cfg := m.Get()
	m.publish(cfg)

	select {
	case got := <-sub:
		if got != cfg {
			t.Fatal("unexpected config delivered")
		}
	case <-time.After(time.Second):
		t.Fatal("publish never delivered")
	}

	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("channel must be closed after Unsubscribe")
	}
}
