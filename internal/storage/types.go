package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

// Config configures the identity registry backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "postgres": PostgreSQL via DSN
type Config struct {
	Driver      string
	Path        string        // sqlite only
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// User is the durable identity record for one platform user.
//
// IdentityHash is assigned once at first registration and never changes;
// it is the alternate lookup key that does not leak the platform ID.
type User struct {
	ID           int64
	Username     string
	FullName     string
	IdentityHash string
	CreatedAt    int64 // epoch seconds
	LastActive   int64 // epoch seconds
	Banned       bool
}

// Store is the identity registry contract. Every call reflects the latest
// committed state; there is no in-memory cache in front of it.
type Store interface {
	// UpsertUser creates the record on first sight (fresh identity hash,
	// created_at = now) or updates username/full_name/last_active.
	// The returned bool reports whether the record was created.
	UpsertUser(ctx context.Context, id int64, username, fullName string, now int64) (*User, bool, error)

	// GetUser returns ErrNotFound for unknown ids.
	GetUser(ctx context.Context, id int64) (*User, error)

	// FindUserByAny resolves a numeric id, an @handle, or a bare identity
	// hash, in that precedence order.
	FindUserByAny(ctx context.Context, key string) (*User, error)

	SetBanned(ctx context.Context, id int64, banned bool) error

	CountUsers(ctx context.Context) (int, error)
	CountBanned(ctx context.Context) (int, error)
	CountActiveSince(ctx context.Context, ts int64) (int, error)

	// UsersPage returns users ordered by created_at ascending.
	UsersPage(ctx context.Context, limit, offset int) ([]User, error)

	// UnbannedUserIDs returns the broadcast audience: every user with
	// banned = false, deduplicated by primary key.
	UnbannedUserIDs(ctx context.Context) ([]int64, error)

	Close() error
}
