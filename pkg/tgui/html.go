// Package tgui holds small helpers for composing Telegram HTML messages.
package tgui

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) string { return html.EscapeString(s) }

func B(s string) string    { return "<b>" + Esc(s) + "</b>" }
func Code(s string) string { return "<code>" + Esc(s) + "</code>" }

// Mention links to a Telegram user ID.
func Mention(name string, userID int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, Esc(name))
}

// Or returns s, or fallback when s is blank. Used for optional profile
// fields (username, display name).
func Or(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// FormatTS renders an epoch-second timestamp in local time.
func FormatTS(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

// StartOfDay returns midnight of the day containing t, in t's location.
// Truncate would land on UTC midnight instead.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Ago humanizes a duration in coarse steps (seconds up to years).
func Ago(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d.Seconds())
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("%dd", days)
	}
	months := days / 30
	if months < 12 {
		return fmt.Sprintf("%dmo", months)
	}
	return fmt.Sprintf("%dy", months/12)
}
