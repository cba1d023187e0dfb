package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

func openSQLite(cfg Config, log zerolog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	st.log.Debug().Str("path", cfg.Path).Msg("sqlite registry opened")
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

const userColumns = "user_id, username, full_name, identity_hash, created_at, last_active, banned"

func (s *sqliteStore) UpsertUser(ctx context.Context, id int64, username, fullName string, now int64) (*User, bool, error) {
	_, err := s.GetUser(ctx, id)
	created := false
	if errors.Is(err, ErrNotFound) {
		created = true
	} else if err != nil {
		return nil, false, err
	}

	hash, err := newIdentityHash()
	if err != nil {
		return nil, false, err
	}
	// The conflict arm keeps identity_hash and created_at from the first
	// insert; the freshly generated hash is discarded for known users.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, full_name, identity_hash, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			last_active = excluded.last_active`,
		id, nullStr(username), fullName, hash, now, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}

	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return u, created, nil
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = ?", id)
	return scanUser(row)
}

func (s *sqliteStore) FindUserByAny(ctx context.Context, key string) (*User, error) {
	key = strings.TrimSpace(key)
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return s.GetUser(ctx, id)
	}
	if handle, ok := strings.CutPrefix(key, "@"); ok {
		row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", handle)
		return scanUser(row)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE identity_hash = ?", key)
	return scanUser(row)
}

func (s *sqliteStore) SetBanned(ctx context.Context, id int64, banned bool) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET banned = ? WHERE user_id = ?", boolInt(banned), id)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

func (s *sqliteStore) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM users")
}

func (s *sqliteStore) CountBanned(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM users WHERE banned = 1")
}

func (s *sqliteStore) CountActiveSince(ctx context.Context, ts int64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM users WHERE last_active >= ?", ts)
}

func (s *sqliteStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) UsersPage(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *sqliteStore) UnbannedUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM users WHERE banned = 0")
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row *sql.Row) (*User, error) {
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

func scanUserRow(row rowScanner) (*User, error) {
	var u User
	var username sql.NullString
	var banned int
	if err := row.Scan(&u.ID, &username, &u.FullName, &u.IdentityHash, &u.CreatedAt, &u.LastActive, &banned); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.Banned = banned != 0
	return &u, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
