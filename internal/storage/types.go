package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// User is one bot user row. UserID is the Telegram chat id and the
// stable recipient identifier; it never changes for a user.
type User struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Stats is the aggregate the admin panel shows.
type Stats struct {
	TotalUsers    int
	NewUsersToday int
	ActiveToday   int
}
