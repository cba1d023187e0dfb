package gate

import (
	"context"
	"errors"

	"animebot/internal/transport"
)

type Membership int

const (
	MembershipNotMember Membership = iota
	MembershipMember
	// MembershipDenied means the platform refused the query (bot lacks
	// visibility). It is deliberately distinct from NotMember.
	MembershipDenied
)

type Presence int

const (
	PresencePresent Presence = iota
	// PresenceGone means the bot was removed from the chat (left/kicked).
	PresenceGone
	PresenceNoAccess
)

// Oracle answers membership questions against the chat platform.
type Oracle interface {
	CheckMembership(ctx context.Context, chatID, userID int64) (Membership, error)
	CheckBotPresence(ctx context.Context, chatID int64) (Presence, error)
}

// MemberAPI is the transport slice the oracle needs.
type MemberAPI interface {
	ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error)
}

// ChatOracle implements Oracle over a transport adapter.
type ChatOracle struct {
	api   MemberAPI
	botID int64
}

func NewChatOracle(api MemberAPI, botID int64) *ChatOracle {
	return &ChatOracle{api: api, botID: botID}
}

func (o *ChatOracle) CheckMembership(ctx context.Context, chatID, userID int64) (Membership, error) {
	status, err := o.api.ChatMemberStatus(ctx, chatID, userID)
	if errors.Is(err, transport.ErrAccessDenied) {
		return MembershipDenied, nil
	}
	if err != nil {
		return MembershipNotMember, err
	}
	switch status {
	case transport.StatusMember, transport.StatusAdministrator, transport.StatusCreator:
		return MembershipMember, nil
	default:
		return MembershipNotMember, nil
	}
}

func (o *ChatOracle) CheckBotPresence(ctx context.Context, chatID int64) (Presence, error) {
	status, err := o.api.ChatMemberStatus(ctx, chatID, o.botID)
	if errors.Is(err, transport.ErrAccessDenied) || errors.Is(err, transport.ErrBadRequest) {
		return PresenceNoAccess, nil
	}
	if err != nil {
		return PresencePresent, err
	}
	switch status {
	case transport.StatusLeft, transport.StatusKicked:
		return PresenceGone, nil
	default:
		return PresencePresent, nil
	}
}
