// Package texts holds every user-visible string. Strings come from an
// optional YAML file and use {name} placeholders filled by Render.
package texts

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	yaml "go.yaml.in/yaml/v3"
)

type Texts struct {
	MainMenu MainMenu `yaml:"main_menu"`
	Dev      string   `yaml:"dev"`
	Errors   Errors   `yaml:"errors"`
	Required Required `yaml:"required_chat"`
	Admin    Admin    `yaml:"admin"`
	Inline   Inline   `yaml:"inline"`
}

type MainMenu struct {
	Title        string `yaml:"title"`
	InlineButton string `yaml:"inline_button"`
}

type Errors struct {
	Banned         string `yaml:"banned"`
	UserNotFound   string `yaml:"user_notfound"`
	InvalidCommand string `yaml:"invalid_command"`
	AccessDenied   string `yaml:"access_denied"`
}

type Required struct {
	Message      string `yaml:"message"`
	BotNotJoined string `yaml:"bot_not_joined"`
	BotNoAccess  string `yaml:"bot_no_access"`
}

type Admin struct {
	PanelText        string `yaml:"panel_text"`
	NewUserActive    string `yaml:"new_user_active"`
	NewUserInactive  string `yaml:"new_user_inactive"`
	StatusButton     string `yaml:"status_button"`
	StatusResult     string `yaml:"status_result"`
	BackToMenu       string `yaml:"backtomenu"`
	BroadcastUsage   string `yaml:"broadcast_usage"`
	BroadcastResult  string `yaml:"broadcast_result"`
	UserInfo         string `yaml:"user_info"`
	BanButton        string `yaml:"ban_button"`
	UnbanButton      string `yaml:"unban_button"`
	BanSelf          string `yaml:"ban_self"`
	BanStateChanged  string `yaml:"ban_state_changed"`
	SettingSaved     string `yaml:"setting_saved"`
	NewUserNotify    string `yaml:"new_user_notify"`
	UsersPageHeader  string `yaml:"users_page_header"`
	PrevPage         string `yaml:"prev_page"`
	NextPage         string `yaml:"next_page"`
	DigestText       string `yaml:"digest_text"`
}

type Inline struct {
	StartHint string `yaml:"start_hint"`
	Caption   string `yaml:"caption"`
}

// Manager serves an immutable snapshot per interaction, like the config
// manager. Reload swaps the whole pointer.
type Manager struct {
	path string
	cur  atomic.Pointer[Texts]
}

func NewManager(path string) *Manager {
	m := &Manager{path: path}
	m.cur.Store(Defaults())
	return m
}

// Load reads the strings file; with no path configured the built-in
// defaults stay active.
func (m *Manager) Load() error {
	if strings.TrimSpace(m.path) == "" {
		return nil
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var t Texts
	if err := yaml.Unmarshal(b, &t); err != nil {
		return fmt.Errorf("texts decode: %w", err)
	}
	fillDefaults(&t)
	m.cur.Store(&t)
	return nil
}

func (m *Manager) Snapshot() *Texts { return m.cur.Load() }

// SetPath points the manager at a different strings file; the next Load
// reads from it. Callers serialize SetPath/Load themselves.
func (m *Manager) SetPath(path string) { m.path = path }

// Render substitutes {name} placeholders. kv is alternating name, value.
func Render(tpl string, kv ...string) string {
	if len(kv) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{"+kv[i]+"}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// fillDefaults backfills any string the file left empty, so a partial
// texts file never renders blank messages.
func fillDefaults(t *Texts) {
	def := Defaults()
	fill(&t.MainMenu.Title, def.MainMenu.Title)
	fill(&t.MainMenu.InlineButton, def.MainMenu.InlineButton)
	fill(&t.Dev, def.Dev)
	fill(&t.Errors.Banned, def.Errors.Banned)
	fill(&t.Errors.UserNotFound, def.Errors.UserNotFound)
	fill(&t.Errors.InvalidCommand, def.Errors.InvalidCommand)
	fill(&t.Errors.AccessDenied, def.Errors.AccessDenied)
	fill(&t.Required.Message, def.Required.Message)
	fill(&t.Required.BotNotJoined, def.Required.BotNotJoined)
	fill(&t.Required.BotNoAccess, def.Required.BotNoAccess)
	fill(&t.Admin.PanelText, def.Admin.PanelText)
	fill(&t.Admin.NewUserActive, def.Admin.NewUserActive)
	fill(&t.Admin.NewUserInactive, def.Admin.NewUserInactive)
	fill(&t.Admin.StatusButton, def.Admin.StatusButton)
	fill(&t.Admin.StatusResult, def.Admin.StatusResult)
	fill(&t.Admin.BackToMenu, def.Admin.BackToMenu)
	fill(&t.Admin.BroadcastUsage, def.Admin.BroadcastUsage)
	fill(&t.Admin.BroadcastResult, def.Admin.BroadcastResult)
	fill(&t.Admin.UserInfo, def.Admin.UserInfo)
	fill(&t.Admin.BanButton, def.Admin.BanButton)
	fill(&t.Admin.UnbanButton, def.Admin.UnbanButton)
	fill(&t.Admin.BanSelf, def.Admin.BanSelf)
	fill(&t.Admin.BanStateChanged, def.Admin.BanStateChanged)
	fill(&t.Admin.SettingSaved, def.Admin.SettingSaved)
	fill(&t.Admin.NewUserNotify, def.Admin.NewUserNotify)
	fill(&t.Admin.UsersPageHeader, def.Admin.UsersPageHeader)
	fill(&t.Admin.PrevPage, def.Admin.PrevPage)
	fill(&t.Admin.NextPage, def.Admin.NextPage)
	fill(&t.Admin.DigestText, def.Admin.DigestText)
	fill(&t.Inline.StartHint, def.Inline.StartHint)
	fill(&t.Inline.Caption, def.Inline.Caption)
}

func fill(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

func Defaults() *Texts {
	return &Texts{
		MainMenu: MainMenu{
			Title:        "<b>Anime search bot</b> v{version}\nTap the button below and start typing to search.",
			InlineButton: "🔍 Search images",
		},
		Dev: "Built with caffeine. v{version}",
		Errors: Errors{
			Banned:         "You are banned from using this bot.",
			UserNotFound:   "User not found.",
			InvalidCommand: "Invalid command. Check the usage and try again.",
			AccessDenied:   "Access denied.",
		},
		Required: Required{
			Message:      "To use the bot, join the chats below first, then try again.",
			BotNotJoined: "⚠️ Bot is no longer a member of required chat {title} ({chat_id}).",
			BotNoAccess:  "⚠️ Bot has no access to required chat {title} ({chat_id}).",
		},
		Admin: Admin{
			PanelText:       "<b>Admin panel</b>\nNew-user notifications: {user_notify_status}",
			NewUserActive:   "🔔 New-user notify: on",
			NewUserInactive: "🔕 New-user notify: off",
			StatusButton:    "📊 Status",
			StatusResult:    "📊 <b>Status</b>\nTotal users: {total_users}\nBanned: {banned_users}\nActive today: {today_active}",
			BackToMenu:      "⬅️ Back",
			BroadcastUsage:  "Reply to a message with /broadcast to send it to everyone, or /broadcast &lt;user&gt; for a single user.",
			BroadcastResult: "Broadcast finished.\n✅ Delivered: {success}\n❌ Failed: {failed}",
			UserInfo: "👤 <b>User</b> <code>{user_id}</code>\n" +
				"Username: {username}\nName: {full_name}\nHash: <code>{user_hash}</code>\n" +
				"Registered: {created_at} ({created_ago} ago)\nLast active: {last_active} ({last_ago} ago)\n" +
				"Status: {status}",
			BanButton:       "🚫 Ban",
			UnbanButton:     "✅ Unban",
			BanSelf:         "You cannot ban yourself.",
			BanStateChanged: "Ban state changed.",
			SettingSaved:    "Saved.",
			NewUserNotify:   "🆕 New user: {full_name} (<code>{user_id}</code>)",
			UsersPageHeader: "📊 Total users: {total}\n📄 Page {page} of {max_page}\n",
			PrevPage:        "⬅️ Prev",
			NextPage:        "➡️ Next",
			DigestText:      "🗞 <b>Daily digest</b>\nTotal users: {total_users}\nBanned: {banned_users}\nActive today: {today_active}",
		},
		Inline: Inline{
			StartHint: "Tap here to start the bot 🤖",
			Caption:   "Tags: {tags}",
		},
	}
}
