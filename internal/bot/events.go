package bot

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/store"
	"github.com/udevs/promocast/internal/userbot"
)

// Notifier turns broadcast cycle outcomes into messages to the job
// owner. It implements broadcast.Events and is wired before the
// dispatcher so the scheduler can report without a back-reference.
type Notifier struct {
	api   Sender
	store *store.Store
	log   zerolog.Logger
}

func NewNotifier(api Sender, s *store.Store, log zerolog.Logger) *Notifier {
	return &Notifier{api: api, store: s, log: log.With().Str("component", "notify").Logger()}
}

func (n *Notifier) CycleFinished(ownerID int64, sent, failed int) {
	if failed == 0 {
		n.tell(ownerID, fmt.Sprintf("📤 Sent to %d group(s).", sent))
		return
	}
	n.tell(ownerID, fmt.Sprintf("📤 Sent to %d group(s), %d failed. Check that your account is a member of every group.", sent, failed))
}

func (n *Notifier) AccountUnlinked(ownerID int64) {
	n.tell(ownerID, "⚠️ Broadcast skipped: your Telegram account is no longer connected. Reconnect it and start again.")
}

func (n *Notifier) SessionFailed(ownerID int64, err error) {
	var fw *userbot.FloodWaitError
	if errors.As(err, &fw) {
		n.tell(ownerID, fmt.Sprintf("⚠️ Broadcast paused by a rate limit. The platform asks to wait %s.", fw.Wait))
		return
	}
	n.tell(ownerID, "⚠️ Broadcast cycle failed: could not open your account session. It will retry on the next interval.")
}

func (n *Notifier) tell(ownerID int64, text string) {
	u, err := n.store.GetUser(ownerID)
	if err != nil {
		n.log.Warn().Err(err).Int64("owner", ownerID).Msg("owner chat unknown")
		return
	}
	msg := newHTMLMessage(u.ChatID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error().Err(err).Int64("owner", ownerID).Msg("notify failed")
	}
}
