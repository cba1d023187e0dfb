package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"animebot/internal/gate"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
	"animebot/pkg/tgui"
)

func (r *Router) handleAdminPanel(ctx context.Context, m *transport.Message) {
	if r.d.Gate.Admit(ctx, interactionOf(m), gate.SkipMembership()) != gate.ResultPassed {
		return
	}
	if !r.isAdmin(ctx, m.FromID) {
		return
	}
	text, kb := r.panelView()
	r.send(ctx, m.ChatID, 0, text, kb)
}

func (r *Router) panelView() (string, [][]transport.Button) {
	t := r.d.Texts()
	r.panelMu.Lock()
	notify := r.notifyNewUser
	r.panelMu.Unlock()

	status := "off ❌"
	toggleLabel := t.Admin.NewUserInactive
	if notify {
		status = "on ✅"
		toggleLabel = t.Admin.NewUserActive
	}
	text := texts.Render(t.Admin.PanelText, "user_notify_status", status)
	kb := [][]transport.Button{
		{{Text: toggleLabel, Data: "toggle_user_notify"}},
		{{Text: t.Admin.StatusButton, Data: "status_panel"}},
	}
	return text, kb
}

// handleUsers renders one page of the user browser. messageID != 0 means
// an in-place edit (pager callback); otherwise a fresh message.
func (r *Router) handleUsers(ctx context.Context, fromID, chatID int64, messageID, page int) {
	if !r.isOwner(ctx, fromID) {
		return
	}
	t := r.d.Texts()

	total, err := r.d.Store.CountUsers(ctx)
	if err != nil {
		r.d.Log.Warn().Err(err).Msg("user count failed")
		return
	}
	if total == 0 {
		if messageID != 0 {
			r.edit(ctx, chatID, messageID, t.Errors.UserNotFound, nil)
		} else {
			r.send(ctx, chatID, 0, t.Errors.UserNotFound, nil)
		}
		return
	}

	maxPage := (total + usersPageSize - 1) / usersPageSize
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}

	users, err := r.d.Store.UsersPage(ctx, usersPageSize, (page-1)*usersPageSize)
	if err != nil {
		r.d.Log.Warn().Err(err).Msg("user page failed")
		return
	}

	var b strings.Builder
	b.WriteString(texts.Render(t.Admin.UsersPageHeader,
		"total", fmt.Sprintf("%d", total),
		"page", fmt.Sprintf("%d", page),
		"max_page", fmt.Sprintf("%d", maxPage),
	))
	for _, u := range users {
		b.WriteString("\n🔹" + tgui.Code(formatID(u.ID)) + " - " + tgui.Esc(tgui.Or(u.FullName, "no name")))
	}

	var nav []transport.Button
	if page > 1 {
		nav = append(nav, transport.Button{Text: t.Admin.PrevPage, Data: fmt.Sprintf("show_users:%d", page-1)})
	}
	if page < maxPage {
		nav = append(nav, transport.Button{Text: t.Admin.NextPage, Data: fmt.Sprintf("show_users:%d", page+1)})
	}
	var kb [][]transport.Button
	if len(nav) > 0 {
		kb = [][]transport.Button{nav}
	}

	if messageID != 0 {
		r.edit(ctx, chatID, messageID, b.String(), kb)
	} else {
		r.send(ctx, chatID, 0, b.String(), kb)
	}
}

func (r *Router) handleUserInfo(ctx context.Context, m *transport.Message, args []string) {
	if r.d.Gate.Admit(ctx, interactionOf(m), gate.SkipMembership()) != gate.ResultPassed {
		return
	}
	if !r.isAdmin(ctx, m.FromID) {
		return
	}
	t := r.d.Texts()

	if len(args) == 0 {
		r.send(ctx, m.ChatID, 0, tgui.B(t.Errors.InvalidCommand), nil)
		return
	}

	u, err := r.d.Store.FindUserByAny(ctx, args[0])
	if errors.Is(err, storage.ErrNotFound) {
		r.send(ctx, m.ChatID, 0, t.Errors.UserNotFound, nil)
		return
	}
	if err != nil {
		r.d.Log.Warn().Str("key", args[0]).Err(err).Msg("user lookup failed")
		return
	}

	text := userInfoText(u, t, time.Now())
	kb := [][]transport.Button{{{Text: banButton(u, t), Data: fmt.Sprintf("admin_banuser:%d", u.ID)}}}
	r.send(ctx, m.ChatID, 0, text, kb)
}
