package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"animebot/internal/transport"
)

// Telegram hard limit for a single message body.
const textLimit = 4096

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter bridges telebot to the platform-neutral transport types.
type Adapter struct {
	cfg Config
	log zerolog.Logger
	bot *tele.Bot

	out     atomic.Value // stores (chan<- transport.Update)
	runMu   sync.Mutex
	running bool

	// droppedUpdates counts updates dropped because the consumer was
	// slower than the poll loop.
	droppedUpdates uint64
}

func New(cfg Config, log zerolog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, _ tele.Context) {
			log.Warn().Err(err).Msg("telebot error")
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		msg := &transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			FromFullName: senderName(m.Sender),
			Text:         m.Text,
		}
		if m.ReplyTo != nil {
			msg.ReplyTo = &transport.MessageRef{ChatID: m.ReplyTo.Chat.ID, MessageID: m.ReplyTo.ID}
		}
		a.sendUpdate(transport.Update{Kind: transport.UpdateMessage, Message: msg})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || cb.Sender == nil || m == nil {
			return nil
		}
		a.sendUpdate(transport.Update{
			Kind: transport.UpdateCallback,
			Callback: &transport.Callback{
				ID:           cb.ID,
				FromID:       cb.Sender.ID,
				FromUsername: cb.Sender.Username,
				FromFullName: senderName(cb.Sender),
				ChatID:       m.Chat.ID,
				MessageID:    m.ID,
				Data:         strings.TrimPrefix(cb.Data, "\f"),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnQuery, func(c tele.Context) error {
		q := c.Query()
		if q == nil || q.Sender == nil {
			return nil
		}
		a.sendUpdate(transport.Update{
			Kind: transport.UpdateInline,
			Inline: &transport.InlineQuery{
				ID:           q.ID,
				FromID:       q.Sender.ID,
				FromUsername: q.Sender.Username,
				FromFullName: senderName(q.Sender),
				Query:        q.Text,
			},
		})
		return nil
	})
}

func senderName(u *tele.User) string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

func (a *Adapter) sendUpdate(up transport.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) BotID() int64 { return a.bot.Me.ID }

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.runMu.Unlock()

	go a.bot.Start()
	go func() {
		<-ctx.Done()
		_ = a.Stop(context.Background())
	}()
	a.log.Info().Int64("bot_id", a.bot.Me.ID).Str("username", a.bot.Me.Username).Msg("telegram adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.bot.Stop()
	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn().Uint64("dropped", n).Msg("updates dropped during run")
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return transport.MessageRef{}, err
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), truncate(text), sendOptions(opt))
	if err != nil {
		return transport.MessageRef{}, classify(err)
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	_, err := a.bot.Edit(m, truncate(text), sendOptions(opt))
	return classify(err)
}

func (a *Adapter) SendAnimation(ctx context.Context, to transport.ChatTarget, fileID string, opt *transport.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	anim := &tele.Animation{File: tele.File{FileID: fileID}}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), anim, sendOptions(opt))
	return classify(err)
}

func (a *Adapter) CopyMessage(ctx context.Context, to transport.ChatTarget, src transport.MessageRef) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	stored := tele.StoredMessage{MessageID: strconv.Itoa(src.MessageID), ChatID: src.ChatID}
	_, err := a.bot.Copy(tele.ChatID(to.ChatID), stored)
	return classify(err)
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return classify(a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text, ShowAlert: alert}))
}

func (a *Adapter) AnswerInline(ctx context.Context, queryID string, results []transport.InlineResult, button *transport.InlineButton) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	rs := make(tele.Results, 0, len(results))
	for _, r := range results {
		pr := &tele.PhotoResult{URL: r.PhotoURL, ThumbURL: r.ThumbURL, Caption: r.Caption}
		pr.SetResultID(r.ID)
		rs = append(rs, pr)
	}
	resp := &tele.QueryResponse{Results: rs, IsPersonal: true}
	if button != nil {
		resp.SwitchPMText = button.Text
		resp.SwitchPMParameter = button.StartParam
	}
	return classify(a.bot.Answer(&tele.Query{ID: queryID}, resp))
}

func (a *Adapter) ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}
	m, err := a.bot.ChatMemberOf(tele.ChatID(chatID), &tele.User{ID: userID})
	if err != nil {
		return "", classify(err)
	}
	return string(m.Role), nil
}

func (a *Adapter) SendTyping(ctx context.Context, chatID int64) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return classify(a.bot.Notify(tele.ChatID(chatID), tele.Typing))
}

func sendOptions(opt *transport.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if opt.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyTo}
	}
	if len(opt.Keyboard) > 0 {
		so.ReplyMarkup = markupFrom(opt.Keyboard)
	}
	return so
}

func markupFrom(rows [][]transport.Button) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	for _, row := range rows {
		tr := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			ib := tele.InlineButton{Text: b.Text}
			switch {
			case b.URL != "":
				ib.URL = b.URL
			case b.SwitchInlineSet:
				ib.InlineQueryChat = b.SwitchInline
			default:
				ib.Data = b.Data
			}
			tr = append(tr, ib)
		}
		rm.InlineKeyboard = append(rm.InlineKeyboard, tr)
	}
	return rm
}

func truncate(s string) string {
	if len(s) <= textLimit {
		return s
	}
	// Cut on a rune boundary.
	cut := textLimit
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

// classify maps Telegram API failures onto the transport error taxonomy so
// the gate can tell "no rights" apart from "unknown chat".
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *tele.Error
	if errors.As(err, &ae) {
		switch ae.Code {
		case 403:
			return fmt.Errorf("%w: %s", transport.ErrAccessDenied, ae.Description)
		case 400:
			return fmt.Errorf("%w: %s", transport.ErrBadRequest, ae.Description)
		}
	}
	return err
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
