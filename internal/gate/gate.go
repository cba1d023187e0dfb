// Package gate decides, per incoming interaction, whether the acting user
// may reach feature code. Stages run in strict order and short-circuit on
// the first failure: registration upsert, ban enforcement, then required
// chat membership. A broken required chat never locks users out: presence
// failures alert the owners (deduplicated) and let the interaction pass.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"animebot/internal/config"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
)

type Result int

const (
	ResultPassed    Result = 0
	ResultBanned    Result = -1
	ResultNotJoined Result = -2
	// ResultRegistrationError covers registry failures; the interaction is
	// aborted silently (infrastructural, self-heals on the next attempt).
	ResultRegistrationError Result = 2
)

// Options selects which stages run. Ban enforcement applies even to
// callers that skip the membership stage (admin-only commands).
type Options struct {
	Register          bool
	CheckBan          bool
	RequireMembership bool
}

func AllChecks() Options     { return Options{Register: true, CheckBan: true, RequireMembership: true} }
func SkipMembership() Options { return Options{Register: true, CheckBan: true} }

// Interaction is the platform-neutral view of who is acting and where a
// user-visible verdict should be delivered. ChatID 0 means there is no
// chat to reply into (inline queries); CallbackID is set for callbacks.
type Interaction struct {
	UserID     int64
	Username   string
	FullName   string
	ChatID     int64
	MessageID  int
	CallbackID string
}

// Messenger is the transport slice the gate uses to deliver verdicts and
// owner alerts.
type Messenger interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

type Deps struct {
	Store     storage.Store
	Oracle    Oracle
	Messenger Messenger
	Config    func() *config.Config
	Texts     func() *texts.Texts
	Alerted   *AlertOnce
	Log       zerolog.Logger

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time

	// OnNewUser fires after a previously unseen user is registered.
	OnNewUser func(ctx context.Context, u *storage.User)
}

type Gate struct {
	d Deps
}

func New(d Deps) *Gate {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Alerted == nil {
		d.Alerted = NewAlertOnce()
	}
	return &Gate{d: d}
}

// Register upserts the identity record for the acting user. The identity
// hash and created_at survive re-registration untouched.
func (g *Gate) Register(ctx context.Context, in Interaction) Result {
	u, created, err := g.d.Store.UpsertUser(ctx, in.UserID, in.Username, in.FullName, g.d.Now().Unix())
	if err != nil {
		g.d.Log.Warn().Int64("user_id", in.UserID).Err(err).Msg("registration failed")
		return ResultRegistrationError
	}
	if created {
		g.d.Log.Info().Int64("user_id", in.UserID).Str("username", in.Username).Msg("new user registered")
		if g.d.OnNewUser != nil {
			g.d.OnNewUser(ctx, u)
		}
	}
	return ResultPassed
}

// Admit runs the admission pipeline for one interaction.
func (g *Gate) Admit(ctx context.Context, in Interaction, opts Options) Result {
	if opts.Register {
		// A failed upsert is not a user failure; the record is refreshed
		// on the next interaction.
		_ = g.Register(ctx, in)
	}

	if opts.CheckBan {
		if res := g.checkBan(ctx, in); res != ResultPassed {
			return res
		}
	}

	if opts.RequireMembership {
		if res := g.checkRequiredChats(ctx, in); res != ResultPassed {
			return res
		}
	}

	return ResultPassed
}

func (g *Gate) checkBan(ctx context.Context, in Interaction) Result {
	u, err := g.d.Store.GetUser(ctx, in.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return ResultPassed
	}
	if err != nil {
		g.d.Log.Warn().Int64("user_id", in.UserID).Err(err).Msg("ban check failed")
		return ResultRegistrationError
	}
	if !u.Banned {
		return ResultPassed
	}

	t := g.d.Texts()
	switch {
	case in.CallbackID != "":
		if err := g.d.Messenger.AnswerCallback(ctx, in.CallbackID, t.Errors.Banned, false); err != nil {
			g.d.Log.Debug().Err(err).Msg("banned callback answer failed")
		}
	case in.ChatID != 0:
		opt := &transport.SendOptions{ParseMode: "HTML", ReplyTo: in.MessageID}
		if _, err := g.d.Messenger.SendText(ctx, transport.ChatTarget{ChatID: in.ChatID}, t.Errors.Banned, opt); err != nil {
			g.d.Log.Debug().Err(err).Msg("banned notice failed")
		}
	}
	return ResultBanned
}

func (g *Gate) checkRequiredChats(ctx context.Context, in Interaction) Result {
	cfg := g.d.Config()
	t := g.d.Texts()

	var missing []config.RequiredChat
	for _, rc := range cfg.RequiredChats {
		pres, err := g.d.Oracle.CheckBotPresence(ctx, rc.ChatID)
		if err != nil {
			// Unclassified platform failure: a broken required chat must
			// not lock users out.
			g.d.Log.Warn().Int64("chat_id", rc.ChatID).Err(err).Msg("bot presence check failed; admitting")
			return ResultPassed
		}
		switch pres {
		case PresenceGone:
			g.alertOwners(ctx, cfg, rc, t.Required.BotNotJoined)
			return ResultPassed
		case PresenceNoAccess:
			g.alertOwners(ctx, cfg, rc, t.Required.BotNoAccess)
			return ResultPassed
		}

		mem, err := g.d.Oracle.CheckMembership(ctx, rc.ChatID, in.UserID)
		if err != nil {
			g.d.Log.Warn().Int64("chat_id", rc.ChatID).Int64("user_id", in.UserID).Err(err).Msg("membership check failed; skipping chat")
			continue
		}
		switch mem {
		case MembershipMember:
			// fine, next chat
		case MembershipDenied:
			// The bot can see the chat but not its members. Operator
			// problem, not a user one.
			g.alertOwners(ctx, cfg, rc, t.Required.BotNoAccess)
		case MembershipNotMember:
			missing = append(missing, rc)
		}
	}

	if len(missing) == 0 {
		return ResultPassed
	}

	if in.ChatID != 0 {
		kb := make([][]transport.Button, 0, len(missing))
		for _, rc := range missing {
			kb = append(kb, []transport.Button{{Text: rc.Title, URL: rc.JoinLink}})
		}
		opt := &transport.SendOptions{ReplyTo: in.MessageID, Keyboard: kb}
		if _, err := g.d.Messenger.SendText(ctx, transport.ChatTarget{ChatID: in.ChatID}, t.Required.Message, opt); err != nil {
			g.d.Log.Debug().Err(err).Msg("join prompt failed")
		}
	}
	return ResultNotJoined
}

// alertOwners notifies every owner about a broken required chat, at most
// once per chat id per process lifetime.
func (g *Gate) alertOwners(ctx context.Context, cfg *config.Config, rc config.RequiredChat, tpl string) {
	if !g.d.Alerted.ShouldAlert(rc.ChatID) {
		return
	}
	text := texts.Render(tpl, "chat_id", fmt.Sprintf("%d", rc.ChatID), "title", rc.Title)
	for _, owner := range cfg.Owners {
		if _, err := g.d.Messenger.SendText(ctx, transport.ChatTarget{ChatID: owner}, text, nil); err != nil {
			g.d.Log.Warn().Int64("owner_id", owner).Int64("chat_id", rc.ChatID).Err(err).Msg("owner alert failed")
		}
	}
	g.d.Alerted.MarkAlerted(rc.ChatID)
	g.d.Log.Warn().Int64("chat_id", rc.ChatID).Str("title", rc.Title).Msg("required chat unavailable; failing open")
}
