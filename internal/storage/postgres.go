package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func openPostgres(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	st := &postgresStore{pool: pool, log: log}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	st.log.Debug().Msg("postgres registry opened")
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id       BIGINT PRIMARY KEY,
			username      TEXT,
			full_name     TEXT NOT NULL DEFAULT '',
			identity_hash TEXT NOT NULL UNIQUE,
			created_at    BIGINT NOT NULL,
			last_active   BIGINT NOT NULL,
			banned        BOOLEAN NOT NULL DEFAULT FALSE
		)`)
	return err
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgUserColumns = "user_id, COALESCE(username, ''), full_name, identity_hash, created_at, last_active, banned"

func (s *postgresStore) UpsertUser(ctx context.Context, id int64, username, fullName string, now int64) (*User, bool, error) {
	hash, err := newIdentityHash()
	if err != nil {
		return nil, false, err
	}
	// xmax = 0 distinguishes a fresh insert from a conflict update; the
	// conflict arm keeps identity_hash and created_at from first sight.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, username, full_name, identity_hash, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			full_name = EXCLUDED.full_name,
			last_active = EXCLUDED.last_active
		RETURNING `+pgUserColumns+`, (xmax = 0) AS created`,
		id, pgNullStr(username), fullName, hash, now,
	)

	var u User
	var created bool
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.IdentityHash, &u.CreatedAt, &u.LastActive, &u.Banned, &created); err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	return &u, created, nil
}

func (s *postgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.one(ctx, "SELECT "+pgUserColumns+" FROM users WHERE user_id = $1", id)
}

func (s *postgresStore) FindUserByAny(ctx context.Context, key string) (*User, error) {
	key = strings.TrimSpace(key)
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		return s.GetUser(ctx, id)
	}
	if handle, ok := strings.CutPrefix(key, "@"); ok {
		return s.one(ctx, "SELECT "+pgUserColumns+" FROM users WHERE username = $1", handle)
	}
	return s.one(ctx, "SELECT "+pgUserColumns+" FROM users WHERE identity_hash = $1", key)
}

func (s *postgresStore) one(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.FullName, &u.IdentityHash, &u.CreatedAt, &u.LastActive, &u.Banned)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *postgresStore) SetBanned(ctx context.Context, id int64, banned bool) error {
	_, err := s.pool.Exec(ctx, "UPDATE users SET banned = $1 WHERE user_id = $2", banned, id)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

func (s *postgresStore) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM users")
}

func (s *postgresStore) CountBanned(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM users WHERE banned")
}

func (s *postgresStore) CountActiveSince(ctx context.Context, ts int64) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM users WHERE last_active >= $1", ts)
}

func (s *postgresStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *postgresStore) UsersPage(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+pgUserColumns+" FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.IdentityHash, &u.CreatedAt, &u.LastActive, &u.Banned); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *postgresStore) UnbannedUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT user_id FROM users WHERE NOT banned")
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

func pgNullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
