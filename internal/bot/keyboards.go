package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func btn(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func urlBtn(text, url string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonURL(text, url)
}

func rows(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

func backKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")))
}

func mainMenuKeyboard(isPremium, isAdmin bool) *tgbotapi.InlineKeyboardMarkup {
	var r [][]tgbotapi.InlineKeyboardButton
	if isPremium {
		r = append(r,
			tgbotapi.NewInlineKeyboardRow(btn("➕ Add group", "add_group"), btn("📋 My groups", "list_groups")),
			tgbotapi.NewInlineKeyboardRow(btn("🗂 Create auto-folder", "create_folder")),
			tgbotapi.NewInlineKeyboardRow(btn("✉️ Send message", "send_message"), btn("🛑 Stop sending", "stop_messages")),
			tgbotapi.NewInlineKeyboardRow(btn("📲 Connect account", "connect_account"), btn("ℹ️ Account info", "account_info")),
		)
	} else {
		r = append(r,
			tgbotapi.NewInlineKeyboardRow(btn("🔑 Activate key", "activate_key")),
			tgbotapi.NewInlineKeyboardRow(btn("🆙 Request premium", "request_premium")),
		)
	}
	r = append(r, tgbotapi.NewInlineKeyboardRow(btn("⭐ Premium status", "premium_info")))
	if isAdmin {
		r = append(r, tgbotapi.NewInlineKeyboardRow(btn("🛠 Admin panel", "admin_panel")))
	}
	return rows(r...)
}

func adminPanelKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("🔑 Issue key", "issue_key")),
		tgbotapi.NewInlineKeyboardRow(btn("👥 Premium users", "premium_users")),
		tgbotapi.NewInlineKeyboardRow(btn("⏳ Pending requests", "pending_requests")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
}

func keyDurationKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("1 month", "genkey_30")),
		tgbotapi.NewInlineKeyboardRow(btn("3 months", "genkey_90")),
		tgbotapi.NewInlineKeyboardRow(btn("6 months", "genkey_180")),
		tgbotapi.NewInlineKeyboardRow(btn("1 year", "genkey_365")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "admin_panel")),
	)
}

func retryActivationKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(tgbotapi.NewInlineKeyboardRow(btn("🔄 Try again", "activate_key")))
}

func contactAdminKeyboard(adminUsername string) *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(urlBtn("Contact admin", "https://t.me/"+adminUsername)),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
}

func codeEntryKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("🔄 Resend code", "resend_code")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
}

func confirmGroupKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("✅ Yes", "confirm_add")),
		tgbotapi.NewInlineKeyboardRow(btn("❌ No", "cancel_add")),
	)
}

func groupsKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("➕ Add group", "add_group")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
}

func intervalKeyboard(lastMinutes int) *tgbotapi.InlineKeyboardMarkup {
	presets := []int{1, 2, 5, 10, 30}
	if lastMinutes > 0 {
		presets = append([]int{lastMinutes}, presets...)
	}
	var row []tgbotapi.InlineKeyboardButton
	var r [][]tgbotapi.InlineKeyboardButton
	for _, m := range presets {
		row = append(row, btn(fmt.Sprintf("%d min", m), fmt.Sprintf("interval_%d", m)))
		if len(row) == 3 {
			r = append(r, row)
			row = nil
		}
	}
	if len(row) > 0 {
		r = append(r, row)
	}
	r = append(r,
		tgbotapi.NewInlineKeyboardRow(btn("✏️ Other interval", "custom_interval")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
	return rows(r...)
}

func broadcastRunningKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("🛑 Stop", "stop_messages")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
}

func accountInfoKeyboard() *tgbotapi.InlineKeyboardMarkup {
	return rows(
		tgbotapi.NewInlineKeyboardRow(btn("❌ Disconnect", "disconnect_account")),
		tgbotapi.NewInlineKeyboardRow(btn("🔙 Back", "back_to_start")),
	)
}
