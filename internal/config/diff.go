package config

import (
	"reflect"
	"sort"
	"strings"

	"annobot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (tokens) are never included;
// only their presence is reported.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Telegram.AdminUserIDs, newCfg.Telegram.AdminUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.String("http.public_host", newCfg.HTTP.PublicHost),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage: nil means disabled. Only shape changes matter here; the
	// store itself is not hot-swapped.
	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if (oldCfg.Storage != nil) != (newCfg.Storage != nil) || oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.batch_size", newCfg.Broadcast.BatchSize),
			logx.String("broadcast.batch_pause", newCfg.Broadcast.BatchPause),
			logx.Int("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec),
		)
	}

	if oldCfg.Updates != newCfg.Updates {
		changed = append(changed, "updates")
		attrs = append(attrs,
			logx.Bool("updates.enabled", newCfg.Updates.Enabled),
			logx.String("updates.timezone", strings.TrimSpace(newCfg.Updates.Timezone)),
			logx.String("updates.daily_at", newCfg.Updates.DailyAt),
		)
	}

	if oldCfg.Relay.Enabled != newCfg.Relay.Enabled ||
		oldCfg.Relay.ChatID != newCfg.Relay.ChatID ||
		(strings.TrimSpace(oldCfg.Relay.Token) != "") != (strings.TrimSpace(newCfg.Relay.Token) != "") {
		changed = append(changed, "relay")
		attrs = append(attrs, logx.Bool("relay.enabled", newCfg.Relay.Enabled))
	}

	if !reflect.DeepEqual(oldCfg.Menu, newCfg.Menu) {
		changed = append(changed, "menu")
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
