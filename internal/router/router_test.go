package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"animebot/internal/broadcast"
	"animebot/internal/config"
	"animebot/internal/gate"
	"animebot/internal/storage"
	"animebot/internal/texts"
	"animebot/internal/transport"
)

type recordedSend struct {
	chatID int64
	text   string
	opt    *transport.SendOptions
}

type recordedEdit struct {
	ref  transport.MessageRef
	text string
	opt  *transport.SendOptions
}

type recordedAnswer struct {
	callbackID string
	text       string
	alert      bool
}

type fakeAdapter struct {
	mu       sync.Mutex
	sends    []recordedSend
	edits    []recordedEdit
	answers  []recordedAnswer
	copies   []int64
	inline   []*transport.InlineButton
	typingOK bool
}

func (a *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                          { return nil }
func (a *fakeAdapter) BotID() int64                                        { return 999 }

func (a *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sends = append(a.sends, recordedSend{chatID: to.ChatID, text: text, opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(a.sends)}, nil
}

func (a *fakeAdapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edits = append(a.edits, recordedEdit{ref: ref, text: text, opt: opt})
	return nil
}

func (a *fakeAdapter) SendAnimation(context.Context, transport.ChatTarget, string, *transport.SendOptions) error {
	return nil
}

func (a *fakeAdapter) CopyMessage(_ context.Context, to transport.ChatTarget, _ transport.MessageRef) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.copies = append(a.copies, to.ChatID)
	return nil
}

func (a *fakeAdapter) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, recordedAnswer{callbackID: callbackID, text: text, alert: alert})
	return nil
}

func (a *fakeAdapter) AnswerInline(_ context.Context, _ string, _ []transport.InlineResult, button *transport.InlineButton) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inline = append(a.inline, button)
	return nil
}

func (a *fakeAdapter) ChatMemberStatus(context.Context, int64, int64) (string, error) {
	return transport.StatusMember, nil
}

func (a *fakeAdapter) SendTyping(context.Context, int64) error {
	if a.typingOK {
		return nil
	}
	return transport.ErrAccessDenied
}

func (a *fakeAdapter) sentTo(chatID int64) []recordedSend {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []recordedSend
	for _, s := range a.sends {
		if s.chatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

type memStore struct {
	mu    sync.Mutex
	users map[int64]*storage.User
}

func newMemStore() *memStore { return &memStore{users: map[int64]*storage.User{}} }

func (s *memStore) UpsertUser(_ context.Context, id int64, username, fullName string, now int64) (*storage.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Username = username
		u.FullName = fullName
		u.LastActive = now
		cp := *u
		return &cp, false, nil
	}
	u := &storage.User{ID: id, Username: username, FullName: fullName, IdentityHash: "hash", CreatedAt: now, LastActive: now}
	s.users[id] = u
	cp := *u
	return &cp, true, nil
}

func (s *memStore) GetUser(_ context.Context, id int64) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) FindUserByAny(_ context.Context, key string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := strings.TrimPrefix(key, "@")
	for _, u := range s.users {
		if u.Username == handle {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) SetBanned(_ context.Context, id int64, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Banned = banned
	}
	return nil
}

func (s *memStore) CountUsers(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memStore) CountBanned(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Banned {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountActiveSince(_ context.Context, ts int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.LastActive >= ts {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UsersPage(_ context.Context, limit, offset int) ([]storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []storage.User
	// ids are assigned in insertion order in these tests
	for id := int64(1); int(id) <= len(s.users)+1000 && len(all) < offset+limit; id++ {
		if u, ok := s.users[id]; ok {
			all = append(all, *u)
		}
	}
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:], nil
}

func (s *memStore) UnbannedUserIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, u := range s.users {
		if !u.Banned {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) Close() error { return nil }

type routerFixture struct {
	adapter *fakeAdapter
	store   *memStore
	cfg     *config.Config
	router  *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		adapter: &fakeAdapter{typingOK: true},
		store:   newMemStore(),
		cfg: &config.Config{
			Version: "test",
			Admins:  []int64{500},
			Owners:  []int64{900},
		},
	}
	txt := texts.Defaults()
	cfgFn := func() *config.Config { return f.cfg }
	txtFn := func() *texts.Texts { return txt }

	g := gate.New(gate.Deps{
		Store:     f.store,
		Oracle:    gate.NewChatOracle(f.adapter, f.adapter.BotID()),
		Messenger: f.adapter,
		Config:    cfgFn,
		Texts:     txtFn,
		Log:       zerolog.Nop(),
	})
	f.router = New(Deps{
		Adapter: f.adapter,
		Store:   f.store,
		Gate:    g,
		Pool:    broadcast.New(broadcast.Config{Workers: 2, RatePerSec: 10000}, zerolog.Nop()),
		Config:  cfgFn,
		Texts:   txtFn,
		Log:     zerolog.Nop(),
	})
	return f
}

func message(fromID int64, text string) *transport.Message {
	return &transport.Message{
		ID:           1,
		ChatID:       fromID,
		FromID:       fromID,
		FromUsername: "user",
		FromFullName: "User",
		Text:         text,
	}
}

func TestStartRegistersAndSendsMenu(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.handleMessage(ctx, message(1, "/start"))

	if _, err := f.store.GetUser(ctx, 1); err != nil {
		t.Errorf("user not registered on /start: %v", err)
	}
	sent := f.adapter.sentTo(1)
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	kb := sent[0].opt.Keyboard
	if len(kb) != 1 || !kb[0][0].SwitchInlineSet {
		t.Errorf("menu keyboard = %+v, want switch-inline button", kb)
	}
}

func TestCommandBotSuffixStripped(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleMessage(context.Background(), message(1, "/start@somebot"))
	if len(f.adapter.sentTo(1)) != 1 {
		t.Error("suffixed command not routed")
	}
}

func TestNonCommandIgnored(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleMessage(context.Background(), message(1, "hello"))
	if len(f.adapter.sends) != 0 {
		t.Errorf("plain text produced %d sends", len(f.adapter.sends))
	}
}

func TestBroadcastAllSkipsBanned(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		if _, _, err := f.store.UpsertUser(ctx, id, "", "User", 100); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.store.SetBanned(ctx, 2, true); err != nil {
		t.Fatal(err)
	}

	m := message(900, "/broadcast")
	m.ReplyTo = &transport.MessageRef{ChatID: 900, MessageID: 55}
	f.router.handleMessage(ctx, m)

	// Audience: users 1 and 3 plus the owner, who got registered by the
	// gate when issuing the command. The banned user is excluded.
	if len(f.adapter.copies) != 3 {
		t.Fatalf("copied to %d users, want 3", len(f.adapter.copies))
	}
	for _, id := range f.adapter.copies {
		if id == 2 {
			t.Error("banned user received broadcast")
		}
	}

	sent := f.adapter.sentTo(900)
	if len(sent) != 1 {
		t.Fatalf("got %d result messages, want 1", len(sent))
	}
	if !strings.Contains(sent[0].text, "3") || !strings.Contains(sent[0].text, "0") {
		t.Errorf("result = %q, want 3 delivered / 0 failed", sent[0].text)
	}
}

func TestBroadcastSingleTarget(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	if _, _, err := f.store.UpsertUser(ctx, 7, "bob", "Bob", 100); err != nil {
		t.Fatal(err)
	}

	m := message(900, "/broadcast @bob")
	m.ReplyTo = &transport.MessageRef{ChatID: 900, MessageID: 55}
	f.router.handleMessage(ctx, m)

	if len(f.adapter.copies) != 1 || f.adapter.copies[0] != 7 {
		t.Errorf("copies = %v, want exactly user 7", f.adapter.copies)
	}
}

func TestBroadcastUnknownTarget(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	m := message(900, "/broadcast @nobody")
	m.ReplyTo = &transport.MessageRef{ChatID: 900, MessageID: 55}
	f.router.handleMessage(context.Background(), m)

	if len(f.adapter.copies) != 0 {
		t.Error("unknown target still produced copies")
	}
	sent := f.adapter.sentTo(900)
	if len(sent) != 1 || sent[0].text != texts.Defaults().Errors.UserNotFound {
		t.Errorf("sent = %+v, want user-not-found notice", sent)
	}
}

func TestBroadcastWithoutReplyShowsUsage(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleMessage(context.Background(), message(900, "/broadcast"))

	sent := f.adapter.sentTo(900)
	if len(sent) != 1 || sent[0].text != texts.Defaults().Admin.BroadcastUsage {
		t.Errorf("sent = %+v, want usage hint", sent)
	}
	if len(f.adapter.copies) != 0 {
		t.Error("usage path should not copy anything")
	}
}

func TestBroadcastOutlivesHandlerDeadline(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	for id := int64(1); id <= 12; id++ {
		if _, _, err := f.store.UpsertUser(ctx, id, "", "User", 100); err != nil {
			t.Fatal(err)
		}
	}

	// Pace delivery well past the interaction deadline: 13 recipients at
	// 5 msg/s needs over a second, the parent context expires after 50ms.
	// Only a transport error may fail a recipient, never the deadline.
	f.router.d.Pool = broadcast.New(broadcast.Config{Workers: 2, RatePerSec: 5}, zerolog.Nop())

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	m := message(900, "/broadcast")
	m.ReplyTo = &transport.MessageRef{ChatID: 900, MessageID: 55}
	f.router.dispatch(short, transport.Update{Kind: transport.UpdateMessage, Message: m})

	// 12 seeded users plus the owner registered by the gate.
	if len(f.adapter.copies) != 13 {
		t.Fatalf("copied to %d users, want 13", len(f.adapter.copies))
	}
	sent := f.adapter.sentTo(900)
	if len(sent) != 1 {
		t.Fatalf("got %d result messages, want 1", len(sent))
	}
	want := texts.Render(texts.Defaults().Admin.BroadcastResult, "success", "13", "failed", "0")
	if sent[0].text != want {
		t.Errorf("result = %q, want %q", sent[0].text, want)
	}
}

func TestBroadcastRequiresOwner(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	// 500 is admin but not owner.
	m := message(500, "/broadcast")
	m.ReplyTo = &transport.MessageRef{ChatID: 500, MessageID: 55}
	f.router.handleMessage(context.Background(), m)

	if len(f.adapter.copies) != 0 || len(f.adapter.sentTo(500)) != 0 {
		t.Error("non-owner reached the broadcast surface")
	}
}

func TestUsersPager(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	for id := int64(1); id <= 25; id++ {
		if _, _, err := f.store.UpsertUser(ctx, id, "", "User", 100); err != nil {
			t.Fatal(err)
		}
	}

	f.router.handleMessage(ctx, message(900, "/users"))

	sent := f.adapter.sentTo(900)
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	kb := sent[0].opt.Keyboard
	if len(kb) != 1 || len(kb[0]) != 1 || kb[0][0].Data != "show_users:2" {
		t.Errorf("page 1 nav = %+v, want only next", kb)
	}

	// Pager callback edits in place and gains a prev button.
	f.router.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 900, ChatID: 900, MessageID: 10, Data: "show_users:2",
	})
	if len(f.adapter.edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(f.adapter.edits))
	}
	kb = f.adapter.edits[0].opt.Keyboard
	if len(kb) != 1 || len(kb[0]) != 1 || kb[0][0].Data != "show_users:1" {
		t.Errorf("page 2 nav = %+v, want only prev", kb)
	}
}

func TestUsersRequiresOwner(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleMessage(context.Background(), message(500, "/users"))
	if len(f.adapter.sends) != 0 {
		t.Error("non-owner browsed users")
	}
}

func TestUserInfoCardLinksUser(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	if _, _, err := f.store.UpsertUser(ctx, 7, "bob", "Bob <X>", 100); err != nil {
		t.Fatal(err)
	}

	f.router.handleMessage(ctx, message(500, "/user @bob"))

	sent := f.adapter.sentTo(500)
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	if !strings.Contains(sent[0].text, `<a href="tg://user?id=7">Bob &lt;X&gt;</a>`) {
		t.Errorf("card = %q, want mention link with escaped name", sent[0].text)
	}
	kb := sent[0].opt.Keyboard
	if len(kb) != 1 || kb[0][0].Data != "admin_banuser:7" {
		t.Errorf("card keyboard = %+v, want ban toggle", kb)
	}
}

func TestUserInfoWithoutArgs(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleMessage(context.Background(), message(500, "/user"))

	sent := f.adapter.sentTo(500)
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	want := "<b>" + texts.Defaults().Errors.InvalidCommand + "</b>"
	if sent[0].text != want {
		t.Errorf("notice = %q, want %q", sent[0].text, want)
	}
}

func TestCallbackAccessDenied(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleCallback(context.Background(), &transport.Callback{
		ID: "cb1", FromID: 1, ChatID: 1, MessageID: 10, Data: "status_panel",
	})
	if len(f.adapter.answers) != 1 || !f.adapter.answers[0].alert {
		t.Fatalf("answers = %+v, want one alert", f.adapter.answers)
	}
	if f.adapter.answers[0].text != texts.Defaults().Errors.AccessDenied {
		t.Errorf("alert text = %q", f.adapter.answers[0].text)
	}
}

func TestBanToggleFlipsAndRerenders(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	if _, _, err := f.store.UpsertUser(ctx, 7, "bob", "Bob", 100); err != nil {
		t.Fatal(err)
	}

	f.router.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 500, ChatID: 500, MessageID: 10, Data: "admin_banuser:7",
	})

	u, err := f.store.GetUser(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !u.Banned {
		t.Error("target not banned after toggle")
	}
	if len(f.adapter.edits) != 1 {
		t.Fatalf("got %d edits, want re-rendered card", len(f.adapter.edits))
	}
	kb := f.adapter.edits[0].opt.Keyboard
	if kb[0][0].Text != texts.Defaults().Admin.UnbanButton {
		t.Errorf("button = %q, want unban label after ban", kb[0][0].Text)
	}
}

func TestBanToggleSelfGuard(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	if _, _, err := f.store.UpsertUser(ctx, 500, "admin", "Admin", 100); err != nil {
		t.Fatal(err)
	}

	f.router.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 500, ChatID: 500, MessageID: 10, Data: "admin_banuser:500",
	})

	u, err := f.store.GetUser(ctx, 500)
	if err != nil {
		t.Fatal(err)
	}
	if u.Banned {
		t.Error("self-ban went through")
	}
	if len(f.adapter.answers) != 1 || f.adapter.answers[0].text != texts.Defaults().Admin.BanSelf {
		t.Errorf("answers = %+v, want self-ban guard alert", f.adapter.answers)
	}
}

func TestToggleUserNotify(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	f.router.handleCallback(ctx, &transport.Callback{
		ID: "cb1", FromID: 500, ChatID: 500, MessageID: 10, Data: "toggle_user_notify",
	})

	// Toggle off: a fresh registration must stay silent.
	f.router.NotifyNewUser(ctx, &storage.User{ID: 3, FullName: "New"})
	if len(f.adapter.sentTo(500)) != 0 {
		t.Error("notify sent while toggled off")
	}

	f.router.handleCallback(ctx, &transport.Callback{
		ID: "cb2", FromID: 500, ChatID: 500, MessageID: 10, Data: "toggle_user_notify",
	})
	f.router.NotifyNewUser(ctx, &storage.User{ID: 3, FullName: "New"})
	if len(f.adapter.sentTo(500)) != 1 {
		t.Error("notify suppressed while toggled on")
	}
}

func TestEmptyCallbackAnsweredWithoutAdmission(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)

	f.router.handleCallback(context.Background(), &transport.Callback{
		ID: "cb1", FromID: 1, Data: "emptycallback",
	})
	if len(f.adapter.answers) != 1 || f.adapter.answers[0].text != shrug {
		t.Errorf("answers = %+v, want shrug", f.adapter.answers)
	}
}

func TestInlineBannedGetsBanButton(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	ctx := context.Background()

	if _, _, err := f.store.UpsertUser(ctx, 1, "u", "User", 100); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetBanned(ctx, 1, true); err != nil {
		t.Fatal(err)
	}

	f.router.handleInline(ctx, &transport.InlineQuery{ID: "q1", FromID: 1, Query: ""})

	if len(f.adapter.inline) != 1 {
		t.Fatalf("got %d inline answers, want 1", len(f.adapter.inline))
	}
	btn := f.adapter.inline[0]
	if btn == nil || btn.StartParam != "ban" {
		t.Errorf("button = %+v, want ban start param", btn)
	}
}

func TestInlineNoPrivateChatBouncesToStart(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.adapter.typingOK = false

	f.router.handleInline(context.Background(), &transport.InlineQuery{ID: "q1", FromID: 1})

	if len(f.adapter.inline) != 1 {
		t.Fatalf("got %d inline answers, want 1", len(f.adapter.inline))
	}
	btn := f.adapter.inline[0]
	if btn == nil || btn.StartParam != "inline" {
		t.Errorf("button = %+v, want start bounce", btn)
	}
}
