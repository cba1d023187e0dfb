package router

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"animebot/internal/gate"
	"animebot/internal/inline"
	"animebot/internal/texts"
	"animebot/internal/transport"
)

const inlineResultLimit = 10

func (r *Router) handleInline(ctx context.Context, q *transport.InlineQuery) {
	in := gate.Interaction{
		UserID:   q.FromID,
		Username: q.FromUsername,
		FullName: q.FromFullName,
		// no chat to reply into; verdicts surface through the answer button
	}
	res := r.d.Gate.Admit(ctx, in, gate.AllChecks())
	t := r.d.Texts()

	switch res {
	case gate.ResultRegistrationError:
		return
	case gate.ResultBanned:
		r.answerInline(ctx, q.ID, nil, &transport.InlineButton{Text: t.Errors.Banned, StartParam: "ban"})
		return
	}

	// Results can only be delivered if the user has a private chat open
	// with the bot; otherwise bounce through the start button.
	pvOpen := r.d.Adapter.SendTyping(ctx, q.FromID) == nil
	if !pvOpen || res == gate.ResultNotJoined {
		r.answerInline(ctx, q.ID, nil, &transport.InlineButton{Text: t.Inline.StartHint, StartParam: "inline"})
		return
	}

	opt := inline.ParseArgs(q.Query)
	opt.Limit = inlineResultLimit
	images, err := r.d.Images.Search(ctx, opt)
	if err != nil {
		r.d.Log.Warn().Err(err).Msg("inline search failed")
		r.answerInline(ctx, q.ID, nil, nil)
		return
	}
	if len(images) == 0 {
		r.answerInline(ctx, q.ID, nil, nil)
		return
	}

	results := make([]transport.InlineResult, 0, len(images))
	for _, img := range images {
		results = append(results, transport.InlineResult{
			ID:       uuid.NewString(),
			PhotoURL: img.URL,
			ThumbURL: img.URL,
			Caption:  texts.Render(t.Inline.Caption, "tags", strings.Join(img.Tags, ", ")),
		})
	}
	r.answerInline(ctx, q.ID, results, nil)
}

func (r *Router) answerInline(ctx context.Context, queryID string, results []transport.InlineResult, button *transport.InlineButton) {
	if err := r.d.Adapter.AnswerInline(ctx, queryID, results, button); err != nil {
		r.d.Log.Debug().Err(err).Msg("inline answer failed")
	}
}
