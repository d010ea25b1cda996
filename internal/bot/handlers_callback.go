package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/udevs/promocast/internal/groups"
	"github.com/udevs/promocast/internal/linking"
	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/premium"
	"github.com/udevs/promocast/internal/store"
	"github.com/udevs/promocast/internal/userbot"
)

func (d *Dispatcher) handleCallback(q *tgbotapi.CallbackQuery) {
	if _, err := d.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		d.log.Warn().Err(err).Msg("answer callback")
	}
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID

	u, err := d.store.UpsertUser(q.From.ID, chatID, q.From.UserName, q.From.FirstName)
	if err != nil {
		d.log.Error().Err(err).Int64("user", q.From.ID).Msg("upsert user")
		d.send(chatID, "❌ System error. Please try again later.", backKeyboard())
		return
	}

	data := q.Data
	switch {
	case data == "back_to_start":
		if err := d.abandonFlow(u); err != nil {
			d.systemError(u, chatID, err)
			return
		}
		d.edit(chatID, msgID, mainMenuText(u.FirstName), mainMenuKeyboard(d.premium.IsPremium(u.UserID), d.isAdmin(u.UserID)))

	case data == "activate_key":
		d.startKeyActivation(u, chatID, msgID)
	case data == "request_premium":
		d.requestPremium(u, chatID, msgID)
	case data == "premium_info":
		d.sendPremiumInfo(u, chatID, msgID)

	case data == "admin_panel":
		if !d.requireAdmin(u, chatID) {
			return
		}
		d.edit(chatID, msgID, "🛠 Admin panel:", adminPanelKeyboard())
	case data == "issue_key":
		if !d.requireAdmin(u, chatID) {
			return
		}
		d.edit(chatID, msgID, "Choose the key duration:", keyDurationKeyboard())
	case strings.HasPrefix(data, "genkey_"):
		if !d.requireAdmin(u, chatID) {
			return
		}
		d.generateKey(u, chatID, strings.TrimPrefix(data, "genkey_"))
	case data == "premium_users":
		if !d.requireAdmin(u, chatID) {
			return
		}
		d.listPremiumUsers(u, chatID, msgID)
	case data == "pending_requests":
		if !d.requireAdmin(u, chatID) {
			return
		}
		d.listPendingRequests(u, chatID, msgID)
	case strings.HasPrefix(data, "approve_"):
		if !d.requireAdmin(u, chatID) {
			return
		}
		target, err := strconv.ParseInt(strings.TrimPrefix(data, "approve_"), 10, 64)
		if err != nil {
			d.send(chatID, "❌ Bad user id.", nil)
			return
		}
		d.approveRequest(chatID, target)

	case data == "connect_account":
		d.startLinking(u, chatID, msgID)
	case data == "resend_code":
		d.resendCode(u, chatID)
	case data == "account_info":
		d.showAccountInfo(u, chatID, msgID)
	case data == "disconnect_account":
		d.disconnectAccount(u, chatID, msgID)

	case data == "add_group":
		d.startAddGroup(u, chatID, msgID)
	case data == "list_groups":
		d.listGroups(u, chatID, msgID)
	case data == "confirm_add":
		d.confirmGroup(u, chatID, msgID)
	case data == "cancel_add":
		d.cancelGroup(u, chatID, msgID)
	case data == "create_folder":
		d.createFolder(u, chatID, msgID)

	case data == "send_message":
		d.startBroadcastSetup(u, chatID, msgID)
	case strings.HasPrefix(data, "interval_"):
		minutes, err := strconv.Atoi(strings.TrimPrefix(data, "interval_"))
		if err != nil || minutes < 1 {
			d.send(chatID, "❌ Bad interval.", backKeyboard())
			return
		}
		d.applyInterval(u, chatID, minutes)
	case data == "custom_interval":
		d.edit(chatID, msgID, "Send the interval in minutes (a whole number, e.g. 15):", backKeyboard())
	case data == "stop_messages":
		d.stopBroadcast(u, chatID, msgID)

	default:
		d.log.Warn().Str("data", data).Int64("user", u.UserID).Msg("unknown callback")
	}
}

// abandonFlow resets whatever conversation flow the user is in so a
// feature button always works: a mid-login connection is released, and
// every scratch field is cleared so stale confirm buttons cannot act
// on abandoned input.
func (d *Dispatcher) abandonFlow(u *models.TelegramUser) error {
	if err := d.linking.Cancel(u); err != nil {
		return err
	}
	if u.StagedHandle == "" && u.StagedLink == "" && u.PendingMessage == "" {
		return nil
	}
	u.StagedHandle = ""
	u.StagedLink = ""
	u.PendingMessage = ""
	return d.store.SaveUser(u)
}

func (d *Dispatcher) requireAdmin(u *models.TelegramUser, chatID int64) bool {
	if d.isAdmin(u.UserID) {
		return true
	}
	d.send(chatID, "❌ Admins only!", nil)
	return false
}

// requirePremium gates a feature button behind an active grant.
func (d *Dispatcher) requirePremium(u *models.TelegramUser, chatID int64, msgID int) bool {
	if d.premium.IsPremium(u.UserID) {
		return true
	}
	d.edit(chatID, msgID, "⭐ This feature needs premium. Activate a key or request access.", mainMenuKeyboard(false, d.isAdmin(u.UserID)))
	return false
}

// --- premium ---

func (d *Dispatcher) startKeyActivation(u *models.TelegramUser, chatID int64, msgID int) {
	if d.premium.IsPremium(u.UserID) {
		d.edit(chatID, msgID, "✅ You already have premium!", backKeyboard())
		return
	}
	if err := d.abandonFlow(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := u.Transition(models.StateAwaitingKey); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := d.store.SaveUser(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, "🔑 Send your activation key.\nFormat: <code>PREMIUM-ABC123DEF456</code>", backKeyboard())
}

func (d *Dispatcher) requestPremium(u *models.TelegramUser, chatID int64, msgID int) {
	err := d.premium.Request(u.UserID, u.Username)
	switch {
	case errors.Is(err, premium.ErrAlreadyPremium):
		d.edit(chatID, msgID, "✅ You already have premium!", backKeyboard())
		return
	case errors.Is(err, premium.ErrRequestPending):
		d.edit(chatID, msgID, "⏳ Your request is already waiting for the admin.", backKeyboard())
		return
	case err != nil:
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, "✅ Request sent! The admin will review it shortly.", backKeyboard())
	d.notifyAdmin(fmt.Sprintf(
		"🆙 New premium request\nUser: @%s (<code>%d</code>)\nApprove: /approve_%d",
		u.Username, u.UserID, u.UserID))
}

func (d *Dispatcher) sendPremiumInfo(u *models.TelegramUser, chatID int64, msgID int) {
	g, err := d.premium.Grant(u.UserID)
	var text string
	switch {
	case errors.Is(err, store.ErrNotFound):
		text = "⭐ You do not have premium.\n\nActivate a key or request access from the admin."
	case err != nil:
		d.systemError(u, chatID, err)
		return
	case !d.premium.IsPremium(u.UserID):
		text = fmt.Sprintf("⭐ Your premium expired on %s.\n\nActivate a new key to continue.", g.ExpiresAt.Format("2006-01-02"))
	default:
		text = fmt.Sprintf("⭐ Premium is active!\n📅 Expires: %s", g.ExpiresAt.Format("2006-01-02 15:04"))
	}
	if msgID != 0 {
		d.edit(chatID, msgID, text, backKeyboard())
	} else {
		d.send(chatID, text, backKeyboard())
	}
}

// --- admin ---

func (d *Dispatcher) generateKey(u *models.TelegramUser, chatID int64, daysArg string) {
	days, err := strconv.Atoi(daysArg)
	if err != nil || days < 1 {
		d.send(chatID, "❌ Bad duration.", adminPanelKeyboard())
		return
	}
	key, err := d.premium.IssueKey(days, u.UserID)
	if err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.send(chatID, fmt.Sprintf(
		"🔑 New key for %d days:\n\n<code>%s</code>\n\nSend it to the user; it works exactly once.",
		days, key.Key), adminPanelKeyboard())

	png, err := d.premium.KeyQR(key.Key)
	if err != nil {
		d.log.Error().Err(err).Msg("key qr")
		return
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "key.png", Bytes: png})
	photo.Caption = key.Key
	if _, err := d.api.Send(photo); err != nil {
		d.log.Error().Err(err).Msg("send key qr")
	}
}

func (d *Dispatcher) listPremiumUsers(u *models.TelegramUser, chatID int64, msgID int) {
	grants, err := d.premium.PremiumUsers()
	if err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if len(grants) == 0 {
		d.edit(chatID, msgID, "👥 No premium users yet.", adminPanelKeyboard())
		return
	}
	var b strings.Builder
	b.WriteString("👥 <b>Premium users:</b>\n\n")
	for _, g := range grants {
		fmt.Fprintf(&b, "• <code>%d</code> — until %s\n", g.UserID, g.ExpiresAt.Format("2006-01-02"))
	}
	d.edit(chatID, msgID, b.String(), adminPanelKeyboard())
}

func (d *Dispatcher) listPendingRequests(u *models.TelegramUser, chatID int64, msgID int) {
	reqs, err := d.premium.PendingRequests()
	if err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if len(reqs) == 0 {
		d.edit(chatID, msgID, "⏳ No pending requests.", adminPanelKeyboard())
		return
	}
	var r [][]tgbotapi.InlineKeyboardButton
	for _, req := range reqs {
		label := fmt.Sprintf("@%s (%d)", req.Username, req.UserID)
		r = append(r, tgbotapi.NewInlineKeyboardRow(btn("✅ "+label, fmt.Sprintf("approve_%d", req.UserID))))
	}
	r = append(r, tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "admin_panel")))
	d.edit(chatID, msgID, "⏳ <b>Pending requests</b> — tap to approve:", rows(r...))
}

func (d *Dispatcher) approveRequest(chatID, target int64) {
	grant, err := d.premium.Approve(target, d.adminID)
	switch {
	case errors.Is(err, premium.ErrNoRequest):
		d.send(chatID, fmt.Sprintf("❌ User <code>%d</code> has no pending request.", target), adminPanelKeyboard())
		return
	case err != nil:
		d.log.Error().Err(err).Int64("target", target).Msg("approve failed")
		d.send(chatID, "❌ System error. Please try again.", adminPanelKeyboard())
		return
	}
	d.send(chatID, fmt.Sprintf("✅ Approved <code>%d</code> until %s.", target, grant.ExpiresAt.Format("2006-01-02")), adminPanelKeyboard())

	if tu, err := d.store.GetUser(target); err == nil {
		d.send(tu.ChatID, fmt.Sprintf(
			"🎉 Your premium request was approved!\n📅 Active until %s.",
			grant.ExpiresAt.Format("2006-01-02")), backKeyboard())
	}
}

// --- account ---

func (d *Dispatcher) startLinking(u *models.TelegramUser, chatID int64, msgID int) {
	if !d.requirePremium(u, chatID, msgID) {
		return
	}
	if acct, err := d.linking.Account(u.UserID); err == nil && acct.Usable() {
		d.edit(chatID, msgID, "✅ An account is already connected.", accountInfoKeyboard())
		return
	}
	if err := d.abandonFlow(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := d.linking.Begin(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID,
		"📲 <b>Connect your Telegram account</b>\n\n"+
			"1. Open https://my.telegram.org\n"+
			"2. Create an application\n"+
			"3. Send me your <b>API_ID</b> (numbers only):",
		backKeyboard())
}

func (d *Dispatcher) resendCode(u *models.TelegramUser, chatID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	err := d.linking.ResendCode(ctx, u)
	switch {
	case err == nil:
		d.send(chatID, "✅ A new code was sent. Enter the 5 digits:", codeEntryKeyboard())
	case errors.Is(err, linking.ErrNoPendingLogin):
		d.send(chatID, "❌ No login in progress. Start over from the menu.", backKeyboard())
	default:
		var cd *linking.ResendCooldownError
		if errors.As(err, &cd) {
			d.send(chatID, fmt.Sprintf("⏳ Please wait %s before requesting another code.", cd.Remaining.Round(time.Second)), codeEntryKeyboard())
			return
		}
		var fw *userbot.FloodWaitError
		if errors.As(err, &fw) {
			d.send(chatID, fmt.Sprintf("❌ Too many attempts! Please wait %s and try again.", fw.Wait), codeEntryKeyboard())
			return
		}
		d.systemError(u, chatID, err)
	}
}

func (d *Dispatcher) showAccountInfo(u *models.TelegramUser, chatID int64, msgID int) {
	acct, err := d.linking.Account(u.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !acct.Usable()) {
		d.edit(chatID, msgID, "📲 No account connected yet.", backKeyboard())
		return
	}
	if err != nil {
		d.systemError(u, chatID, err)
		return
	}
	linkedAt := "unknown"
	if acct.LinkedAt != nil {
		linkedAt = acct.LinkedAt.Format("2006-01-02 15:04")
	}
	d.edit(chatID, msgID, fmt.Sprintf(
		"📲 <b>Connected account</b>\nPhone: <code>%s</code>\nConnected: %s", acct.Phone, linkedAt),
		accountInfoKeyboard())
}

func (d *Dispatcher) disconnectAccount(u *models.TelegramUser, chatID int64, msgID int) {
	// A running broadcast cannot outlive its session.
	d.scheduler.Stop(u.UserID)
	if err := d.linking.Disconnect(u.UserID); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, "✅ Account disconnected. Your API credentials are kept for next time.", backKeyboard())
}

// --- groups ---

func (d *Dispatcher) startAddGroup(u *models.TelegramUser, chatID int64, msgID int) {
	if !d.requirePremium(u, chatID, msgID) {
		return
	}
	if err := d.abandonFlow(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := u.Transition(models.StateAwaitingGroupLink); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := d.store.SaveUser(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, "➕ Send a group link or handle:\n<code>https://t.me/groupname</code> or <code>@groupname</code>", backKeyboard())
}

func (d *Dispatcher) listGroups(u *models.TelegramUser, chatID int64, msgID int) {
	gs, err := d.groups.List(u.UserID)
	if err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if len(gs) == 0 {
		d.edit(chatID, msgID, "📋 You have no registered groups yet.", groupsKeyboard())
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Your groups (%d):</b>\n\n", len(gs))
	for i, g := range gs {
		fmt.Fprintf(&b, "%d. @%s\n", i+1, g.Handle)
	}
	if f, err := d.groups.Folder(u.UserID); err == nil {
		fmt.Fprintf(&b, "\n🗂 Folder «%s» covers %d group(s).", f.Name, len(f.Handles))
	}
	d.edit(chatID, msgID, b.String(), groupsKeyboard())
}

func (d *Dispatcher) confirmGroup(u *models.TelegramUser, chatID int64, msgID int) {
	g, err := d.groups.Confirm(u)
	switch {
	case errors.Is(err, groups.ErrNothingStaged):
		d.edit(chatID, msgID, "❌ Nothing to confirm. Use ➕ Add group.", backKeyboard())
		return
	case errors.Is(err, groups.ErrDuplicateGroup):
		d.edit(chatID, msgID, "⚠️ That group is already in your list.", groupsKeyboard())
		return
	case err != nil:
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, fmt.Sprintf("✅ Group @%s added!", g.Handle), groupsKeyboard())
}

func (d *Dispatcher) cancelGroup(u *models.TelegramUser, chatID int64, msgID int) {
	if err := d.groups.CancelStaged(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, "❌ Cancelled.", groupsKeyboard())
}

func (d *Dispatcher) createFolder(u *models.TelegramUser, chatID int64, msgID int) {
	if !d.requirePremium(u, chatID, msgID) {
		return
	}
	f, err := d.groups.CreateFolder(u.UserID)
	switch {
	case errors.Is(err, groups.ErrFolderExists):
		d.edit(chatID, msgID, "⚠️ You already have an auto-folder.", backKeyboard())
		return
	case errors.Is(err, groups.ErrAccountNotLinked):
		d.edit(chatID, msgID, "❌ Connect your Telegram account first (📲 Connect account).", backKeyboard())
		return
	case errors.Is(err, groups.ErrNoGroups):
		d.edit(chatID, msgID, "❌ Register at least one group first (➕ Add group).", groupsKeyboard())
		return
	case err != nil:
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, fmt.Sprintf("🗂 Folder «%s» created over %d group(s). Broadcasts now target the folder.", f.Name, len(f.Handles)), backKeyboard())
}

// --- broadcast ---

func (d *Dispatcher) startBroadcastSetup(u *models.TelegramUser, chatID int64, msgID int) {
	if !d.requirePremium(u, chatID, msgID) {
		return
	}
	if acct, err := d.linking.Account(u.UserID); err != nil || !acct.Usable() {
		d.edit(chatID, msgID, "❌ Connect your Telegram account first (📲 Connect account).", backKeyboard())
		return
	}
	targets, err := d.groups.Targets(u.UserID)
	if err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if len(targets) == 0 {
		d.edit(chatID, msgID, "❌ Register at least one group first (➕ Add group).", groupsKeyboard())
		return
	}
	if err := d.abandonFlow(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := u.Transition(models.StateAwaitingMessage); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	if err := d.store.SaveUser(u); err != nil {
		d.systemError(u, chatID, err)
		return
	}
	d.edit(chatID, msgID, fmt.Sprintf("✉️ Send the text to broadcast to your %d group(s):", len(targets)), backKeyboard())
}

func (d *Dispatcher) stopBroadcast(u *models.TelegramUser, chatID int64, msgID int) {
	if _, ok := d.scheduler.Active(u.UserID); !ok {
		d.edit(chatID, msgID, "ℹ️ No broadcast is running.", backKeyboard())
		return
	}
	d.scheduler.Stop(u.UserID)
	d.edit(chatID, msgID, "🛑 Broadcast stopped.", backKeyboard())
}

func (d *Dispatcher) notifyAdmin(text string) {
	if admin, err := d.store.GetUser(d.adminID); err == nil {
		d.send(admin.ChatID, text, nil)
		return
	}
	// The admin may never have messaged the bot; their user id doubles
	// as a private chat id.
	d.send(d.adminID, text, nil)
}
