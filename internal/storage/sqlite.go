package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"annobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users(user_id, username, first_name, last_name)
		 VALUES(?,?,?,?)`,
		u.UserID, nullStr(u.Username), nullStr(u.FirstName), nullStr(u.LastName),
	)
	return err
}

func (s *sqliteStore) TouchActivity(ctx context.Context, userID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_active = ? WHERE user_id = ?`,
		time.Now().Format(time.RFC3339Nano), userID,
	)
	return err
}

func (s *sqliteStore) LogAction(ctx context.Context, userID int64, action string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_actions(user_id, action) VALUES(?,?)`,
		userID, action,
	)
	return err
}

func (s *sqliteStore) ListRecipients(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) MarkRelaySent(ctx context.Context, userID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET relay_sent = TRUE WHERE user_id = ?`, userID,
	)
	return err
}

func (s *sqliteStore) RelaySent(ctx context.Context, userID int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	var sent bool
	err := s.db.QueryRowContext(ctx,
		`SELECT relay_sent FROM users WHERE user_id = ?`, userID,
	).Scan(&sent)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sent, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, ErrDisabled
	}
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&st.TotalUsers); err != nil {
		return Stats{}, err
	}
	today := time.Now().Format("2006-01-02")
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE DATE(join_date) = ?`, today,
	).Scan(&st.NewUsersToday); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE DATE(last_active) = ?`, today,
	).Scan(&st.ActiveToday); err != nil {
		return Stats{}, err
	}
	return st, nil
}

func (s *sqliteStore) RecordBroadcast(ctx context.Context, adminID int64, message string, reached int) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasts(admin_id, message, users_reached) VALUES(?,?,?)`,
		adminID, message, reached,
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
