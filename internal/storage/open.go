package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Open initializes the configured identity registry backend.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
