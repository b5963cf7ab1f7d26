package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks the parts of the config that would otherwise fail
// deep inside a service at apply time. Used both at startup and as the
// watch validator, so a bad edit never reaches a running service.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}

	if _, err := ParseDurationField("http.register_timeout", cfg.HTTP.RegisterTimeout); err != nil {
		return err
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unsupported %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
	}

	if cfg.Broadcast.BatchSize < 0 {
		return fmt.Errorf("broadcast.batch_size must be >= 0")
	}
	if _, err := ParseDurationField("broadcast.batch_pause", cfg.Broadcast.BatchPause); err != nil {
		return err
	}

	u := cfg.Updates
	if u.Enabled {
		if tz := strings.TrimSpace(u.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("updates.timezone: %w", err)
			}
		}
		if err := validateHHMM("updates.daily_at", u.DailyAt); err != nil {
			return err
		}
		if err := validateHHMM("updates.weekly.at", u.Weekly.At); err != nil {
			return err
		}
		if err := validateWeekday("updates.weekly.day", u.Weekly.Day); err != nil {
			return err
		}
		if _, err := ParseDurationField("updates.batch_pause", u.BatchPause); err != nil {
			return err
		}
	}

	if cfg.Relay.Enabled {
		if strings.TrimSpace(cfg.Relay.Token) == "" {
			return fmt.Errorf("relay.token is required when relay is enabled")
		}
		if strings.TrimSpace(cfg.Relay.ChatID) == "" {
			return fmt.Errorf("relay.chat_id is required when relay is enabled")
		}
	}

	return nil
}

// ParseDurationField parses an optional duration field ("500ms",
// "1m30s"). Empty means unset and parses to zero; negatives are
// rejected here so services never have to.
func ParseDurationField(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: bad duration %q: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for
// unset fields.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

func validateHHMM(path, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil // defaulted by the caller
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("%s: invalid time %q, expected HH:MM", path, raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return fmt.Errorf("%s: invalid hour in %q", path, raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return fmt.Errorf("%s: invalid minute in %q", path, raw)
	}
	return nil
}

func validateWeekday(path, raw string) error {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "sun", "sunday", "mon", "monday", "tue", "tuesday",
		"wed", "wednesday", "thu", "thursday", "fri", "friday", "sat", "saturday":
		return nil
	default:
		return fmt.Errorf("%s: invalid weekday %q", path, raw)
	}
}
