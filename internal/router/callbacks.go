package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"animebot/internal/gate"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
	"animebot/pkg/tgui"
)

func (r *Router) handleCallback(ctx context.Context, cb *transport.Callback) {
	// The shrug button carries no state and needs no admission.
	if cb.Data == "emptycallback" {
		r.answer(ctx, cb.ID, shrug, false)
		return
	}

	if r.d.Gate.Admit(ctx, interactionOfCallback(cb), gate.SkipMembership()) != gate.ResultPassed {
		return
	}
	t := r.d.Texts()

	if !r.isAdmin(ctx, cb.FromID) {
		r.answer(ctx, cb.ID, t.Errors.AccessDenied, true)
		return
	}

	switch {
	case strings.HasPrefix(cb.Data, "show_users:"):
		page, err := strconv.Atoi(strings.TrimPrefix(cb.Data, "show_users:"))
		if err != nil {
			return
		}
		r.handleUsers(ctx, cb.FromID, cb.ChatID, cb.MessageID, page)

	case strings.HasPrefix(cb.Data, "admin_banuser:"):
		r.handleBanToggle(ctx, cb, t)

	case cb.Data == "toggle_user_notify":
		r.panelMu.Lock()
		r.notifyNewUser = !r.notifyNewUser
		r.panelMu.Unlock()
		r.answer(ctx, cb.ID, t.Admin.SettingSaved, true)
		text, kb := r.panelView()
		r.edit(ctx, cb.ChatID, cb.MessageID, text, kb)

	case cb.Data == "status_panel":
		r.handleStatusPanel(ctx, cb, t)

	case cb.Data == "adminpanel":
		text, kb := r.panelView()
		r.edit(ctx, cb.ChatID, cb.MessageID, text, kb)
	}
}

func (r *Router) handleBanToggle(ctx context.Context, cb *transport.Callback, t *texts.Texts) {
	targetID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "admin_banuser:"), 10, 64)
	if err != nil {
		return
	}
	if targetID == cb.FromID {
		r.answer(ctx, cb.ID, t.Admin.BanSelf, true)
		return
	}

	u, err := r.d.Store.GetUser(ctx, targetID)
	if errors.Is(err, storage.ErrNotFound) {
		r.answer(ctx, cb.ID, t.Errors.UserNotFound, true)
		return
	}
	if err != nil {
		r.d.Log.Warn().Int64("user_id", targetID).Err(err).Msg("ban toggle lookup failed")
		return
	}

	if err := r.d.Store.SetBanned(ctx, targetID, !u.Banned); err != nil {
		r.d.Log.Warn().Int64("user_id", targetID).Err(err).Msg("ban toggle failed")
		return
	}
	r.answer(ctx, cb.ID, t.Admin.BanStateChanged, true)

	// re-render the userinfo card in place with the flipped state
	u, err = r.d.Store.GetUser(ctx, targetID)
	if err != nil {
		return
	}
	text := userInfoText(u, t, time.Now())
	kb := [][]transport.Button{{{Text: banButton(u, t), Data: fmt.Sprintf("admin_banuser:%d", u.ID)}}}
	r.edit(ctx, cb.ChatID, cb.MessageID, text, kb)
}

func (r *Router) handleStatusPanel(ctx context.Context, cb *transport.Callback, t *texts.Texts) {
	total, err := r.d.Store.CountUsers(ctx)
	if err != nil {
		r.d.Log.Warn().Err(err).Msg("status count failed")
		return
	}
	banned, err := r.d.Store.CountBanned(ctx)
	if err != nil {
		r.d.Log.Warn().Err(err).Msg("status count failed")
		return
	}
	midnight := tgui.StartOfDay(time.Now())
	active, err := r.d.Store.CountActiveSince(ctx, midnight.Unix())
	if err != nil {
		r.d.Log.Warn().Err(err).Msg("status count failed")
		return
	}

	text := texts.Render(t.Admin.StatusResult,
		"total_users", fmt.Sprintf("%d", total),
		"banned_users", fmt.Sprintf("%d", banned),
		"today_active", fmt.Sprintf("%d", active),
	)
	kb := [][]transport.Button{{{Text: t.Admin.BackToMenu, Data: "adminpanel"}}}
	r.edit(ctx, cb.ChatID, cb.MessageID, text, kb)
}
