// Package linking drives the account-linking conversation: collecting
// api credentials and a phone number, exchanging a verification code
// (and optional 2FA password) with Telegram, and persisting the
// exported session string. State transitions go through the typed
// transition table on models.TelegramUser; live client connections are
// held here, never persisted.
package linking

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/store"
	"github.com/udevs/promocast/internal/userbot"
)

// ResendCooldown is the client-side floor between two code requests.
const ResendCooldown = 2 * time.Minute

var phoneRe = regexp.MustCompile(`^\+[0-9]{10,14}$`)

// Result of a code or password submission.
type Result int

const (
	Linked Result = iota
	NeedPassword
)

// pending is a live, unauthorized login attempt.
type pending struct {
	auth       userbot.Authenticator
	codeHash   string
	phone      string
	lastCodeAt time.Time
}

type Flow struct {
	store  *store.Store
	dialer userbot.Dialer
	log    zerolog.Logger
	now    func() time.Time

	// Fallback app credentials used until the user supplies their own.
	defaultAppID   int32
	defaultAppHash string

	mu       sync.Mutex
	attempts map[int64]*pending
}

func NewFlow(s *store.Store, d userbot.Dialer, defaultAppID int32, defaultAppHash string, log zerolog.Logger) *Flow {
	return &Flow{
		store:          s,
		dialer:         d,
		log:            log.With().Str("component", "linking").Logger(),
		now:            time.Now,
		defaultAppID:   defaultAppID,
		defaultAppHash: defaultAppHash,
		attempts:       make(map[int64]*pending),
	}
}

// Begin starts the flow: the user is now asked for their api_id.
func (f *Flow) Begin(u *models.TelegramUser) error {
	if err := u.Transition(models.StateAwaitingAppID); err != nil {
		return err
	}
	return f.store.SaveUser(u)
}

// SubmitAppID validates the numeric api_id. On bad input the state does
// not advance and the caller re-prompts.
func (f *Flow) SubmitAppID(u *models.TelegramUser, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return ErrAppIDNotNumeric
	}
	if err := f.mergeAccount(u.UserID, func(a *models.LinkedAccount) { a.AppID = int32(id) }); err != nil {
		return err
	}
	if err := u.Transition(models.StateAwaitingAppHash); err != nil {
		return err
	}
	return f.store.SaveUser(u)
}

// SubmitAppHash stores the raw hash; no validation beyond non-empty.
func (f *Flow) SubmitAppHash(u *models.TelegramUser, text string) error {
	hash := strings.TrimSpace(text)
	if hash == "" {
		return ErrEmptyAppHash
	}
	if err := f.mergeAccount(u.UserID, func(a *models.LinkedAccount) { a.AppHash = hash }); err != nil {
		return err
	}
	if err := u.Transition(models.StateAwaitingPhone); err != nil {
		return err
	}
	return f.store.SaveUser(u)
}

// SubmitPhone validates the number, opens a userbot connection with the
// stored credentials and requests a verification code. The opaque code
// hash and the live connection are kept in memory for the next step.
func (f *Flow) SubmitPhone(ctx context.Context, u *models.TelegramUser, phone string) error {
	phone = strings.TrimSpace(phone)
	if !phoneRe.MatchString(phone) {
		return ErrBadPhone
	}

	appID, appHash, err := f.credentials(u.UserID)
	if err != nil {
		return err
	}
	auth, err := f.dialer.DialAuth(ctx, appID, appHash)
	if err != nil {
		return err
	}
	codeHash, err := auth.SendCode(ctx, phone)
	if err != nil {
		_ = auth.Close()
		return err
	}

	if err := f.mergeAccount(u.UserID, func(a *models.LinkedAccount) { a.Phone = phone }); err != nil {
		_ = auth.Close()
		return err
	}

	f.mu.Lock()
	if old := f.attempts[u.UserID]; old != nil {
		_ = old.auth.Close()
	}
	f.attempts[u.UserID] = &pending{auth: auth, codeHash: codeHash, phone: phone, lastCodeAt: f.now()}
	f.mu.Unlock()

	if err := u.Transition(models.StateAwaitingCode); err != nil {
		return err
	}
	return f.store.SaveUser(u)
}

// SubmitCode normalizes the code to digits, requires exactly five of
// them, and signs in. Outcomes: Linked, NeedPassword, or an error that
// leaves the user in awaiting_code for a retry.
func (f *Flow) SubmitCode(ctx context.Context, u *models.TelegramUser, raw string) (Result, error) {
	code := digitsOnly(raw)
	if len(code) != 5 {
		return 0, ErrBadCode
	}

	p := f.attempt(u.UserID)
	if p == nil {
		return 0, ErrNoPendingLogin
	}

	res, err := p.auth.SignIn(ctx, p.phone, p.codeHash, code)
	if err != nil {
		return 0, err
	}
	if res == userbot.PasswordNeeded {
		if err := u.Transition(models.StateAwaiting2FA); err != nil {
			return 0, err
		}
		return NeedPassword, f.store.SaveUser(u)
	}
	return Linked, f.finish(u, p)
}

// SubmitPassword completes the optional 2FA branch. On failure the
// platform error is returned verbatim and the state stays put.
func (f *Flow) SubmitPassword(ctx context.Context, u *models.TelegramUser, password string) (Result, error) {
	p := f.attempt(u.UserID)
	if p == nil {
		return 0, ErrNoPendingLogin
	}
	if err := p.auth.CheckPassword(ctx, password); err != nil {
		return 0, err
	}
	return Linked, f.finish(u, p)
}

// ResendCode re-requests a verification code over the existing
// connection, enforcing the local cooldown before asking the platform.
func (f *Flow) ResendCode(ctx context.Context, u *models.TelegramUser) error {
	p := f.attempt(u.UserID)
	if p == nil {
		return ErrNoPendingLogin
	}
	if since := f.now().Sub(p.lastCodeAt); since < ResendCooldown {
		return &ResendCooldownError{Remaining: ResendCooldown - since}
	}

	codeHash, err := p.auth.SendCode(ctx, p.phone)
	if err != nil {
		return err
	}
	f.mu.Lock()
	p.codeHash = codeHash
	p.lastCodeAt = f.now()
	f.mu.Unlock()
	return nil
}

// Cancel abandons the flow from any state: the live connection (if one
// was opened mid-flow) is released and the user returns to idle.
func (f *Flow) Cancel(u *models.TelegramUser) error {
	f.dropAttempt(u.UserID)
	if u.State == models.StateIdle {
		return nil
	}
	if err := u.Transition(models.StateIdle); err != nil {
		return err
	}
	return f.store.SaveUser(u)
}

// Disconnect drops the stored session (keeping the api credentials) so
// the account is no longer usable for broadcasting.
func (f *Flow) Disconnect(userID int64) error {
	f.dropAttempt(userID)
	a, err := f.store.GetAccount(userID)
	if err != nil {
		return err
	}
	a.Session = nil
	a.LinkedAt = nil
	return f.store.SaveAccount(a)
}

// Account returns the user's linked account record, store.ErrNotFound
// if the flow was never started.
func (f *Flow) Account(userID int64) (*models.LinkedAccount, error) {
	return f.store.GetAccount(userID)
}

// finish exports and persists the session, releases the connection and
// clears the conversation state.
func (f *Flow) finish(u *models.TelegramUser, p *pending) error {
	sess, err := p.auth.ExportSession()
	if err != nil {
		return err
	}
	now := f.now()
	if err := f.mergeAccount(u.UserID, func(a *models.LinkedAccount) {
		a.Session = &sess
		a.LinkedAt = &now
	}); err != nil {
		return err
	}
	f.dropAttempt(u.UserID)

	if err := u.Transition(models.StateIdle); err != nil {
		return err
	}
	if err := f.store.SaveUser(u); err != nil {
		return err
	}
	f.log.Info().Int64("user", u.UserID).Msg("account linked")
	return nil
}

func (f *Flow) attempt(userID int64) *pending {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[userID]
}

func (f *Flow) dropAttempt(userID int64) {
	f.mu.Lock()
	p := f.attempts[userID]
	delete(f.attempts, userID)
	f.mu.Unlock()
	if p != nil {
		_ = p.auth.Close()
	}
}

// credentials resolves the app credential pair, falling back to the
// process-wide defaults when the user has not supplied their own.
func (f *Flow) credentials(userID int64) (int32, string, error) {
	a, err := f.store.GetAccount(userID)
	if errors.Is(err, store.ErrNotFound) {
		return f.defaultAppID, f.defaultAppHash, nil
	}
	if err != nil {
		return 0, "", err
	}
	if a.AppID == 0 || a.AppHash == "" {
		return f.defaultAppID, f.defaultAppHash, nil
	}
	return a.AppID, a.AppHash, nil
}

func (f *Flow) mergeAccount(userID int64, mutate func(*models.LinkedAccount)) error {
	a, err := f.store.GetAccount(userID)
	if errors.Is(err, store.ErrNotFound) {
		a = &models.LinkedAccount{UserID: userID}
	} else if err != nil {
		return err
	}
	mutate(a)
	return f.store.SaveAccount(a)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
