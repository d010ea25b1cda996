package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/udevs/promocast/internal/groups"
	"github.com/udevs/promocast/internal/linking"
	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/premium"
	"github.com/udevs/promocast/internal/userbot"
)

// opTimeout bounds every userbot network call made from a handler.
const opTimeout = 30 * time.Second

func (d *Dispatcher) handleMessage(m *tgbotapi.Message) {
	u, err := d.store.UpsertUser(m.From.ID, m.Chat.ID, m.From.UserName, m.From.FirstName)
	if err != nil {
		d.log.Error().Err(err).Int64("user", m.From.ID).Msg("upsert user")
		d.send(m.Chat.ID, "❌ System error. Please try again later.", backKeyboard())
		return
	}

	if m.IsCommand() {
		d.handleCommand(u, m)
		return
	}

	text := strings.TrimSpace(m.Text)
	switch u.State {
	case models.StateAwaitingKey:
		d.processKeyActivation(u, m.Chat.ID, text)
	case models.StateAwaitingAppID:
		d.processAppID(u, m.Chat.ID, text)
	case models.StateAwaitingAppHash:
		d.processAppHash(u, m.Chat.ID, text)
	case models.StateAwaitingPhone:
		d.processPhone(u, m.Chat.ID, text)
	case models.StateAwaitingCode:
		d.processCode(u, m.Chat.ID, text)
	case models.StateAwaiting2FA:
		d.processPassword(u, m.Chat.ID, text)
	case models.StateAwaitingGroupLink:
		d.processGroupLink(u, m.Chat.ID, text)
	case models.StateAwaitingMessage:
		d.processMessageText(u, m.Chat.ID, text)
	case models.StateAwaitingInterval:
		d.processInterval(u, m.Chat.ID, text)
	default:
		d.send(m.Chat.ID, "Use /start to open the menu.", nil)
	}
}

func (d *Dispatcher) handleCommand(u *models.TelegramUser, m *tgbotapi.Message) {
	cmd := m.Command()
	switch {
	case cmd == "start":
		// Entering the menu abandons any flow in progress.
		if err := d.abandonFlow(u); err != nil {
			d.systemError(u, m.Chat.ID, err)
			return
		}
		d.sendMainMenu(u, m.Chat.ID)
	case cmd == "admin":
		if !d.isAdmin(u.UserID) {
			d.send(m.Chat.ID, "❌ Admins only!", nil)
			return
		}
		d.send(m.Chat.ID, "🛠 Admin panel:", adminPanelKeyboard())
	case cmd == "premium":
		d.sendPremiumInfo(u, m.Chat.ID, 0)
	case cmd == "help":
		d.send(m.Chat.ID, helpText, backKeyboard())
	case strings.HasPrefix(cmd, "approve_"):
		if !d.isAdmin(u.UserID) {
			d.send(m.Chat.ID, "❌ Admins only!", nil)
			return
		}
		target, err := strconv.ParseInt(strings.TrimPrefix(cmd, "approve_"), 10, 64)
		if err != nil {
			d.send(m.Chat.ID, "❌ Bad user id.", nil)
			return
		}
		d.approveRequest(m.Chat.ID, target)
	default:
		d.send(m.Chat.ID, "Unknown command. Try /start or /help.", nil)
	}
}

func (d *Dispatcher) sendMainMenu(u *models.TelegramUser, chatID int64) {
	d.send(chatID, mainMenuText(u.FirstName), mainMenuKeyboard(d.premium.IsPremium(u.UserID), d.isAdmin(u.UserID)))
}

func mainMenuText(firstName string) string {
	name := firstName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("👋 Hi, <b>%s</b>!\n\nThis bot sends your message to your registered groups on a schedule.", name)
}

const helpText = `🤖 <b>How to use this bot</b>

<b>Commands:</b>
/start — open the menu
/premium — check premium status
/help — this message

<b>Premium features:</b>
➕ register groups to broadcast to
📲 connect your own Telegram account
✉️ send a message to all groups on an interval`

// --- key activation ---

func (d *Dispatcher) processKeyActivation(u *models.TelegramUser, chatID int64, text string) {
	key := strings.ToUpper(strings.TrimSpace(text))
	grant, err := d.premium.Redeem(key, u.UserID)
	switch {
	case errors.Is(err, premium.ErrBadKeyFormat):
		d.send(chatID, "❌ Invalid key format! Expected: <code>PREMIUM-ABC123DEF456</code>", retryActivationKeyboard())
		return
	case errors.Is(err, premium.ErrKeyNotFound):
		d.send(chatID, "❌ Unknown key. Check for typos or contact the admin.", contactAdminKeyboard(d.adminUsername))
		return
	case errors.Is(err, premium.ErrKeyRedeemed):
		d.send(chatID, "❌ This key has already been used!", contactAdminKeyboard(d.adminUsername))
		return
	case err != nil:
		d.systemError(u, chatID, err)
		return
	}

	if err := u.Transition(models.StateIdle); err == nil {
		_ = d.store.SaveUser(u)
	}
	d.send(chatID, fmt.Sprintf(
		"🎉 Premium activated!\n⏳ Duration: %d days\n📅 Expires: %s\n\nAll features are now available.",
		grant.Days, grant.ExpiresAt.Format("2006-01-02")), backKeyboard())
}

// --- account linking ---

func (d *Dispatcher) processAppID(u *models.TelegramUser, chatID int64, text string) {
	if err := d.linking.SubmitAppID(u, text); err != nil {
		if errors.Is(err, linking.ErrAppIDNotNumeric) {
			d.send(chatID, "❌ API_ID must be numbers only. Try again:", backKeyboard())
			return
		}
		d.systemError(u, chatID, err)
		return
	}
	d.send(chatID, "✅ API id accepted!\n\nNow enter your <b>API_HASH</b>:", backKeyboard())
}

func (d *Dispatcher) processAppHash(u *models.TelegramUser, chatID int64, text string) {
	if err := d.linking.SubmitAppHash(u, text); err != nil {
		if errors.Is(err, linking.ErrEmptyAppHash) {
			d.send(chatID, "❌ API_HASH must not be empty. Try again:", backKeyboard())
			return
		}
		d.systemError(u, chatID, err)
		return
	}
	d.send(chatID, "✅ API credentials saved!\n\nNow send your phone number, e.g. <code>+12025550123</code>:", backKeyboard())
}

func (d *Dispatcher) processPhone(u *models.TelegramUser, chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	err := d.linking.SubmitPhone(ctx, u, text)
	switch {
	case err == nil:
		d.send(chatID, "✅ Verification code sent! Enter the 5-digit code from Telegram (e.g. <code>12 345</code>):", codeEntryKeyboard())
	case errors.Is(err, linking.ErrBadPhone):
		d.send(chatID, "❌ Invalid phone format! Use international format: <code>+12025550123</code>", backKeyboard())
	case errors.Is(err, userbot.ErrPhoneInvalid):
		d.send(chatID, "❌ The platform rejected this phone number. Check it and try again.", backKeyboard())
	default:
		var fw *userbot.FloodWaitError
		if errors.As(err, &fw) {
			d.send(chatID, fmt.Sprintf("❌ Too many attempts! Please wait %s and try again.", fw.Wait), backKeyboard())
			return
		}
		d.systemError(u, chatID, err)
	}
}

func (d *Dispatcher) processCode(u *models.TelegramUser, chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := d.linking.SubmitCode(ctx, u, text)
	switch {
	case errors.Is(err, linking.ErrBadCode):
		d.send(chatID, "❌ The code must be exactly 5 digits. Try again:", codeEntryKeyboard())
		return
	case errors.Is(err, linking.ErrNoPendingLogin):
		d.send(chatID, "❌ Send your phone number first!", backKeyboard())
		return
	case errors.Is(err, userbot.ErrCodeInvalid):
		d.send(chatID, "❌ Wrong verification code! Request a new one and try again.", codeEntryKeyboard())
		return
	case err != nil:
		d.systemError(u, chatID, err)
		return
	}

	if res == linking.NeedPassword {
		d.send(chatID, "🔒 Your account has two-step verification. Enter your password:", backKeyboard())
		return
	}
	d.send(chatID, "✅ Telegram account connected! All features are now available.", backKeyboard())
}

func (d *Dispatcher) processPassword(u *models.TelegramUser, chatID int64, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := d.linking.SubmitPassword(ctx, u, text); err != nil {
		if errors.Is(err, linking.ErrNoPendingLogin) {
			d.send(chatID, "❌ No login in progress. Start over from the menu.", backKeyboard())
			return
		}
		// Surface the platform error verbatim; the user stays in this
		// step and may retry.
		d.send(chatID, fmt.Sprintf("❌ Error: %v\nTry again:", err), backKeyboard())
		return
	}
	d.send(chatID, "✅ Successfully connected!", backKeyboard())
}

// --- groups ---

func (d *Dispatcher) processGroupLink(u *models.TelegramUser, chatID int64, text string) {
	if err := d.groups.Stage(u, text); err != nil {
		if errors.Is(err, groups.ErrBadLink) {
			d.send(chatID, "❌ Could not read a group handle from that. Send a link like <code>https://t.me/groupname</code> or <code>@groupname</code>:", backKeyboard())
			return
		}
		d.systemError(u, chatID, err)
		return
	}
	d.send(chatID, fmt.Sprintf("Group: https://t.me/%s\n\nAdd this group to your list?", u.StagedHandle), confirmGroupKeyboard())
}

// --- broadcast setup ---

func (d *Dispatcher) processMessageText(u *models.TelegramUser, chatID int64, text string) {
	if text == "" {
		d.send(chatID, "❌ The message must not be empty. Send the text to broadcast:", backKeyboard())
		return
	}
	u.PendingMessage = text
	if err := u.Transition(models.StateAwaitingInterval); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := d.store.SaveUser(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.send(chatID, "Choose how often to send the message:", intervalKeyboard(u.IntervalMinutes))
}

func (d *Dispatcher) processInterval(u *models.TelegramUser, chatID int64, text string) {
	minutes, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || minutes < 1 {
		d.send(chatID, "❌ Invalid interval! Send a whole number of minutes (e.g. 15):", backKeyboard())
		return
	}
	d.applyInterval(u, chatID, minutes)
}

func (d *Dispatcher) applyInterval(u *models.TelegramUser, chatID int64, minutes int) {
	message := u.PendingMessage
	if message == "" {
		d.send(chatID, "❌ No message set. Use ✉️ Send message first.", backKeyboard())
		return
	}
	if _, err := d.scheduler.Start(u.UserID, message, minutes); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	u.IntervalMinutes = minutes
	u.PendingMessage = ""
	if err := u.Transition(models.StateIdle); err == nil {
		_ = d.store.SaveUser(u)
	}

	preview := truncateRunes(message, 200)
	d.send(chatID, fmt.Sprintf(
		"✅ Saved!\n\nYour message will be sent every %d minute(s).\n\nMessage:\n%s",
		minutes, preview), broadcastRunningKeyboard())
}

// truncateRunes shortens s to at most max runes, never splitting a
// multi-byte character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

// systemError is the uniform boundary for unexpected failures: log
// with context, clear a mid-flow state so the conversation stays
// recoverable, apologize with a path back to the menu.
func (d *Dispatcher) systemError(u *models.TelegramUser, chatID int64, err error) {
	d.log.Error().Err(err).Int64("user", u.UserID).Str("state", string(u.State)).Msg("handler failed")
	if u.State != models.StateIdle {
		if terr := u.Transition(models.StateIdle); terr == nil {
			_ = d.store.SaveUser(u)
		}
	}
	d.send(chatID, "❌ System error. Please try again.", backKeyboard())
}
