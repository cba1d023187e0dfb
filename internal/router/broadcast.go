package router

import (
	"context"
	"errors"
	"fmt"

	"animebot/internal/gate"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
)

// handleBroadcast copies the replied-to message to the resolved audience:
// one user when a key argument is given, every unbanned user otherwise.
func (r *Router) handleBroadcast(ctx context.Context, m *transport.Message, args []string) {
	if r.d.Gate.Admit(ctx, interactionOf(m), gate.SkipMembership()) != gate.ResultPassed {
		return
	}
	if !r.isOwner(ctx, m.FromID) {
		return
	}
	t := r.d.Texts()

	if m.ReplyTo == nil {
		r.send(ctx, m.ChatID, 0, t.Admin.BroadcastUsage, nil)
		return
	}

	var targets []int64
	if len(args) > 0 {
		u, err := r.d.Store.FindUserByAny(ctx, args[0])
		if errors.Is(err, storage.ErrNotFound) {
			r.send(ctx, m.ChatID, 0, t.Errors.UserNotFound, nil)
			return
		}
		if err != nil {
			r.d.Log.Warn().Str("key", args[0]).Err(err).Msg("broadcast target lookup failed")
			return
		}
		targets = []int64{u.ID}
	} else {
		ids, err := r.d.Store.UnbannedUserIDs(ctx)
		if err != nil {
			r.d.Log.Warn().Err(err).Msg("broadcast audience lookup failed")
			return
		}
		targets = ids
	}

	// The fan-out is paced by the pool's limiter and can far outlive the
	// per-interaction deadline; detach it so pending recipients are never
	// failed by the handler timeout. Interrupting the process mid-run
	// loses only the tally, not delivered messages.
	bctx := context.WithoutCancel(ctx)

	src := *m.ReplyTo
	out := r.d.Pool.Run(bctx, targets, func(ctx context.Context, userID int64) error {
		return r.d.Adapter.CopyMessage(ctx, transport.ChatTarget{ChatID: userID}, src)
	})

	result := texts.Render(t.Admin.BroadcastResult,
		"success", fmt.Sprintf("%d", out.Success),
		"failed", fmt.Sprintf("%d", out.Failed),
	)
	r.send(bctx, m.ChatID, 0, result, nil)
}
