package storage

import (
	"context"
	"errors"
	"strings"

	"annobot/pkg/logx"
)

// Store is the persistence API the bot core uses.
//
// The implementation guarantees serialized writes (single connection);
// callers add no locking of their own.
type Store interface {
	// UpsertUser inserts a user if unseen; an existing row is untouched.
	UpsertUser(ctx context.Context, u User) error
	// TouchActivity bumps last_active for the user.
	TouchActivity(ctx context.Context, userID int64) error
	// LogAction appends one row to the user action log.
	LogAction(ctx context.Context, userID int64, action string) error

	// ListRecipients returns a snapshot of all user ids.
	ListRecipients(ctx context.Context) ([]int64, error)

	// MarkRelaySent / RelaySent manage the once-only secondary-channel flag.
	MarkRelaySent(ctx context.Context, userID int64) error
	RelaySent(ctx context.Context, userID int64) (bool, error)

	Stats(ctx context.Context) (Stats, error)
	RecordBroadcast(ctx context.Context, adminID int64, message string, reached int) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
