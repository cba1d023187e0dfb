package router

import (
	"context"

	"animebot/internal/gate"
	"animebot/internal/texts"
	"animebot/internal/transport"
)

// Animation shown by /dev, referenced by Telegram file id.
const devAnimationID = "CAACAgQAAxkBAAEYyVZpDKbhBLct5GxqAgLGhtlAtFw-XgAC5RoAAl5MgVAKPOJUbDxWLjYE"

const shrug = `¯\_(ツ)_/¯`

func (r *Router) handleStart(ctx context.Context, m *transport.Message) {
	if r.d.Gate.Admit(ctx, interactionOf(m), gate.AllChecks()) != gate.ResultPassed {
		return
	}
	t := r.d.Texts()
	text := texts.Render(t.MainMenu.Title, "version", r.d.Config().Version)
	kb := [][]transport.Button{{{Text: t.MainMenu.InlineButton, SwitchInlineSet: true}}}
	r.send(ctx, m.ChatID, m.ID, text, kb)
}

func (r *Router) handleDev(ctx context.Context, m *transport.Message) {
	if r.d.Gate.Admit(ctx, interactionOf(m), gate.AllChecks()) != gate.ResultPassed {
		return
	}
	t := r.d.Texts()

	animOpt := &transport.SendOptions{ReplyTo: m.ID}
	if err := r.d.Adapter.SendAnimation(ctx, transport.ChatTarget{ChatID: m.ChatID}, devAnimationID, animOpt); err != nil {
		r.d.Log.Debug().Err(err).Msg("dev animation failed")
	}

	text := texts.Render(t.Dev, "version", r.d.Config().Version)
	kb := [][]transport.Button{{{Text: shrug, Data: "emptycallback"}}}
	r.send(ctx, m.ChatID, m.ID, text, kb)
}
