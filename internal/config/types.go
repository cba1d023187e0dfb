package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Version  string         `json:"version,omitempty"`
	Telegram TelegramConfig `json:"telegram"`
	Storage  StorageConfig  `json:"storage"`
	Log      LogConfig      `json:"log,omitempty"`

	// Admins may use the admin surface; Owners additionally may broadcast
	// and browse users, and receive escalation alerts.
	Admins []int64 `json:"admins,omitempty"`
	Owners []int64 `json:"owners,omitempty"`

	// RequiredChats the end user must belong to before using the bot.
	RequiredChats []RequiredChat `json:"required_chats,omitempty"`

	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Digest    DigestConfig    `json:"digest,omitempty"`

	// TextsPath points at the user-facing strings file; empty means
	// built-in defaults.
	TextsPath string `json:"texts_path,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via BOT_TOKEN.
	Token string `json:"token,omitempty" env:"BOT_TOKEN"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"` // "sqlite" (default) or "postgres"
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty" env:"DATABASE_DSN"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LogConfig struct {
	Level   string `json:"level,omitempty"` // trace..error; default info
	Console bool   `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

type RequiredChat struct {
	ChatID   int64  `json:"chat_id"`
	Title    string `json:"title"`
	JoinLink string `json:"join_link"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`      // default 4
	RatePerSec int `json:"rate_per_sec,omitempty"` // default 25
}

type DigestConfig struct {
	Enabled bool `json:"enabled,omitempty"`
	// Spec is a cron expression, e.g. "0 9 * * *".
	Spec string `json:"spec,omitempty"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or set BOT_TOKEN)")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case "postgres", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	for i, rc := range c.RequiredChats {
		if rc.ChatID == 0 {
			return fmt.Errorf("required_chats[%d]: chat_id is required", i)
		}
	}
	if c.Broadcast.Workers < 0 || c.Broadcast.RatePerSec < 0 {
		return errors.New("broadcast: workers and rate_per_sec must be >= 0")
	}
	if c.Digest.Enabled && strings.TrimSpace(c.Digest.Spec) == "" {
		return errors.New("digest.spec is required when digest is enabled")
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
