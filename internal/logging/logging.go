// Package logging builds the process-wide zerolog root logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"animebot/internal/config"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

func New(cfg config.LogConfig) zerolog.Logger {
	level := parseLevel(cfg.Level)

	var sinks []io.Writer
	if cfg.Console || (cfg.File == "" && !cfg.Console) {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat})
	}
	if cfg.File != "" {
		if f := openLogFile(cfg.File); f != nil {
			sinks = append(sinks, f)
		}
	}

	out := io.MultiWriter(sinks...)
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func openLogFile(path string) io.Writer {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	return f
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	zerolog.DurationFieldUnit = time.Millisecond
}
