// Package router dispatches incoming updates to command, callback and
// inline handlers. Every handler passes through the admission gate before
// feature code runs; admin surfaces additionally check the actor's role.
package router

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"animebot/internal/broadcast"
	"animebot/internal/config"
	"animebot/internal/gate"
	"animebot/internal/inline"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
)

// handlerTimeout caps one interaction end to end, external calls included.
const handlerTimeout = 30 * time.Second

const usersPageSize = 20

type Deps struct {
	Adapter transport.Adapter
	Store   storage.Store
	Gate    *gate.Gate
	Pool    *broadcast.Pool
	Images  *inline.Client
	Config  func() *config.Config
	Texts   func() *texts.Texts
	Log     zerolog.Logger
}

type Router struct {
	d Deps

	// panelMu guards the in-memory admin panel settings.
	panelMu       sync.Mutex
	notifyNewUser bool
}

func New(d Deps) *Router {
	return &Router{d: d, notifyNewUser: true}
}

// Run consumes updates until ctx is cancelled or the channel closes.
// Interactions are independent: each runs in its own goroutine so a slow
// external call never blocks the next update.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go r.dispatch(ctx, up)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, up transport.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.d.Log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("panic in handler")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	case transport.UpdateInline:
		if up.Inline != nil {
			r.handleInline(ctx, up.Inline)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	if !strings.HasPrefix(m.Text, "/") {
		return
	}
	fields := strings.Fields(m.Text)
	cmd := fields[0]
	// strip the @botname suffix used in groups
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	switch cmd {
	case "/start":
		r.handleStart(ctx, m)
	case "/dev":
		r.handleDev(ctx, m)
	case "/users":
		r.handleUsers(ctx, m.FromID, m.ChatID, 0, 1)
	case "/user":
		r.handleUserInfo(ctx, m, args)
	case "/adminpanel":
		r.handleAdminPanel(ctx, m)
	case "/broadcast":
		r.handleBroadcast(ctx, m, args)
	}
}

func interactionOf(m *transport.Message) gate.Interaction {
	return gate.Interaction{
		UserID:    m.FromID,
		Username:  m.FromUsername,
		FullName:  m.FromFullName,
		ChatID:    m.ChatID,
		MessageID: m.ID,
	}
}

func interactionOfCallback(cb *transport.Callback) gate.Interaction {
	return gate.Interaction{
		UserID:     cb.FromID,
		Username:   cb.FromUsername,
		FullName:   cb.FromFullName,
		ChatID:     cb.ChatID,
		CallbackID: cb.ID,
	}
}

// isAdmin reports whether the user may use the admin surface. A ban always
// wins over role membership.
func (r *Router) isAdmin(ctx context.Context, userID int64) bool {
	if r.banned(ctx, userID) {
		return false
	}
	cfg := r.d.Config()
	return containsID(cfg.Admins, userID) || containsID(cfg.Owners, userID)
}

func (r *Router) isOwner(ctx context.Context, userID int64) bool {
	if r.banned(ctx, userID) {
		return false
	}
	return containsID(r.d.Config().Owners, userID)
}

func (r *Router) banned(ctx context.Context, userID int64) bool {
	u, err := r.d.Store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		// deny on registry failure rather than grant admin access blind
		r.d.Log.Warn().Int64("user_id", userID).Err(err).Msg("role ban lookup failed")
		return true
	}
	return u.Banned
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// NotifyNewUser is wired as the gate's new-user hook: it alerts admins
// about first-time registrations while the panel toggle is on.
func (r *Router) NotifyNewUser(ctx context.Context, u *storage.User) {
	r.panelMu.Lock()
	enabled := r.notifyNewUser
	r.panelMu.Unlock()
	if !enabled {
		return
	}
	t := r.d.Texts()
	text := texts.Render(t.Admin.NewUserNotify,
		"full_name", u.FullName,
		"user_id", formatID(u.ID),
	)
	opt := &transport.SendOptions{ParseMode: "HTML"}
	for _, admin := range r.d.Config().Admins {
		if _, err := r.d.Adapter.SendText(ctx, transport.ChatTarget{ChatID: admin}, text, opt); err != nil {
			r.d.Log.Debug().Int64("admin_id", admin).Err(err).Msg("new user notify failed")
		}
	}
}

func (r *Router) send(ctx context.Context, chatID int64, replyTo int, text string, kb [][]transport.Button) {
	opt := &transport.SendOptions{ParseMode: "HTML", ReplyTo: replyTo, Keyboard: kb}
	if _, err := r.d.Adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		r.d.Log.Debug().Int64("chat_id", chatID).Err(err).Msg("send failed")
	}
}

func (r *Router) edit(ctx context.Context, chatID int64, messageID int, text string, kb [][]transport.Button) {
	ref := transport.MessageRef{ChatID: chatID, MessageID: messageID}
	opt := &transport.SendOptions{ParseMode: "HTML", Keyboard: kb}
	if err := r.d.Adapter.EditText(ctx, ref, text, opt); err != nil {
		r.d.Log.Debug().Int64("chat_id", chatID).Err(err).Msg("edit failed")
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := r.d.Adapter.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		r.d.Log.Debug().Err(err).Msg("callback answer failed")
	}
}
