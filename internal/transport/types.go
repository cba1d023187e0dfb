package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateInline   UpdateKind = "inline"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Inline   *InlineQuery
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromFullName string
	Text         string
	// ReplyTo references the message this one replies to (nil if none).
	// Broadcast uses it as the copy source.
	ReplyTo *MessageRef
}

type Callback struct {
	ID           string
	FromID       int64
	FromUsername string
	FromFullName string
	ChatID       int64
	MessageID    int
	Data         string
}

type InlineQuery struct {
	ID           string
	FromID       int64
	FromUsername string
	FromFullName string
	Query        string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is a platform-neutral inline keyboard button. Exactly one of
// URL, Data and SwitchInline should be set.
type Button struct {
	Text string
	URL  string
	Data string
	// SwitchInline switches the current chat to an inline query with the
	// given prefill ("" is a valid prefill; use SwitchInlineSet).
	SwitchInline    string
	SwitchInlineSet bool
}

type SendOptions struct {
	ParseMode      string // "HTML" or "" for plain
	DisablePreview bool
	ReplyTo        int // message id to reply to (0 = none)
	Keyboard       [][]Button
}

// InlineResult is one photo result for an inline query answer.
type InlineResult struct {
	ID       string
	PhotoURL string
	ThumbURL string
	Caption  string
}

// InlineButton is the button shown above inline results (Telegram's
// switch-pm mechanism), used to bounce the user into a private chat.
type InlineButton struct {
	Text       string
	StartParam string
}

// Classified API failures. Adapters wrap platform errors so callers can
// tell an authorization failure apart from a malformed/unknown target.
var (
	ErrAccessDenied = errors.New("transport: access denied")
	ErrBadRequest   = errors.New("transport: bad request")
)

// Member statuses as reported by the platform.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

type Adapter interface {
	// Start begins receiving updates and forwards them to out until Stop.
	// Updates are dropped if the consumer cannot keep up.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// BotID is the platform user id of the bot itself.
	BotID() int64

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	SendAnimation(ctx context.Context, to ChatTarget, fileID string, opt *SendOptions) error
	CopyMessage(ctx context.Context, to ChatTarget, src MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
	AnswerInline(ctx context.Context, queryID string, results []InlineResult, button *InlineButton) error

	// ChatMemberStatus reports a user's member status in a chat.
	// Authorization failures surface as ErrAccessDenied, unknown or
	// inaccessible chats as ErrBadRequest.
	ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error)

	// SendTyping is used as a cheap probe for an open private chat:
	// ErrAccessDenied means the user never started (or blocked) the bot.
	SendTyping(ctx context.Context, chatID int64) error
}
