package router

import (
	"strconv"
	"time"

	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/pkg/tgui"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

const (
	statusBanned = "🚫 banned"
	statusActive = "✅ active"
)

func userInfoText(u *storage.User, t *texts.Texts, now time.Time) string {
	status := statusActive
	if u.Banned {
		status = statusBanned
	}
	return texts.Render(t.Admin.UserInfo,
		"user_id", formatID(u.ID),
		"username", tgui.Esc(tgui.Or(u.Username, "no username")),
		"full_name", tgui.Mention(tgui.Or(u.FullName, "no name"), u.ID),
		"user_hash", tgui.Esc(u.IdentityHash),
		"created_at", tgui.FormatTS(u.CreatedAt),
		"created_ago", tgui.Ago(now.Sub(time.Unix(u.CreatedAt, 0))),
		"last_active", tgui.FormatTS(u.LastActive),
		"last_ago", tgui.Ago(now.Sub(time.Unix(u.LastActive, 0))),
		"status", status,
	)
}

func banButton(u *storage.User, t *texts.Texts) string {
	if u.Banned {
		return t.Admin.UnbanButton
	}
	return t.Admin.BanButton
}
