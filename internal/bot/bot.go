// Package bot is the Telegram-facing layer: it routes commands,
// callback buttons and state-driven text messages to the services, and
// turns service errors into user-facing replies. No business rules live
// here.
package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/broadcast"
	"github.com/udevs/promocast/internal/groups"
	"github.com/udevs/promocast/internal/linking"
	"github.com/udevs/promocast/internal/premium"
	"github.com/udevs/promocast/internal/store"
)

// Sender is the slice of *tgbotapi.BotAPI the dispatcher needs; tests
// substitute a recorder.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Dispatcher struct {
	api       Sender
	store     *store.Store
	premium   *premium.Service
	linking   *linking.Flow
	groups    *groups.Registry
	scheduler *broadcast.Scheduler
	log       zerolog.Logger

	adminID       int64
	adminUsername string

	locks userLocks
}

func NewDispatcher(api Sender, s *store.Store, p *premium.Service, l *linking.Flow, g *groups.Registry, b *broadcast.Scheduler, adminID int64, adminUsername string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		api:           api,
		store:         s,
		premium:       p,
		linking:       l,
		groups:        g,
		scheduler:     b,
		log:           log.With().Str("component", "bot").Logger(),
		adminID:       adminID,
		adminUsername: adminUsername,
	}
}

// HandleUpdate is the top-level boundary: it serializes all handling
// for one user and never lets an error or panic escape.
func (d *Dispatcher) HandleUpdate(u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("handler panicked")
		}
	}()

	switch {
	case u.Message != nil && u.Message.From != nil:
		m := u.Message
		unlock := d.locks.lock(m.From.ID)
		defer unlock()
		d.handleMessage(m)
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		q := u.CallbackQuery
		unlock := d.locks.lock(q.From.ID)
		defer unlock()
		d.handleCallback(q)
	}
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	return userID == d.adminID
}

func newHTMLMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}

func (d *Dispatcher) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := newHTMLMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := d.api.Send(msg); err != nil {
		d.log.Error().Err(err).Int64("chat", chatID).Msg("send failed")
	}
}

func (d *Dispatcher) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := d.api.Send(msg); err != nil {
		d.log.Error().Err(err).Int64("chat", chatID).Msg("edit failed")
	}
}

// userLocks serializes update handling per user so two concurrent
// updates cannot interleave a read-modify-write of the same records.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID int64) (unlock func()) {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[int64]*userLock)
	}
	entry := l.m[userID]
	if entry == nil {
		entry = &userLock{}
		l.m[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}
