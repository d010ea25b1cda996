package linking

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/db"
	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/store"
	"github.com/udevs/promocast/internal/userbot"
)

type fakeAuth struct {
	signInResult userbot.SignInResult
	signInErr    error
	passwordErr  error
	sendCodeErr  error

	codesSent int
	closed    bool
}

func (a *fakeAuth) SendCode(ctx context.Context, phone string) (string, error) {
	if a.sendCodeErr != nil {
		return "", a.sendCodeErr
	}
	a.codesSent++
	return "hash-1", nil
}

func (a *fakeAuth) SignIn(ctx context.Context, phone, codeHash, code string) (userbot.SignInResult, error) {
	return a.signInResult, a.signInErr
}

func (a *fakeAuth) CheckPassword(ctx context.Context, password string) error {
	return a.passwordErr
}

func (a *fakeAuth) ExportSession() (string, error) { return "exported-session", nil }
func (a *fakeAuth) Close() error                   { a.closed = true; return nil }

type fakeDialer struct {
	auth  *fakeAuth
	dials int
}

func (d *fakeDialer) DialAuth(ctx context.Context, appID int32, appHash string) (userbot.Authenticator, error) {
	d.dials++
	return d.auth, nil
}

func (d *fakeDialer) DialSession(ctx context.Context, appID int32, appHash, session string) (userbot.Session, error) {
	return nil, errors.New("not used in linking tests")
}

func newFlow(t *testing.T, auth *fakeAuth) (*Flow, *store.Store, *fakeDialer) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "linking_test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	s := store.New(conn)
	d := &fakeDialer{auth: auth}
	return NewFlow(s, d, 999, "default-hash", zerolog.Nop()), s, d
}

func newUser(t *testing.T, s *store.Store) *models.TelegramUser {
	t.Helper()
	u, err := s.UpsertUser(1, 1, "alice", "Alice")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func TestHappyPathWithoutPassword(t *testing.T) {
	auth := &fakeAuth{signInResult: userbot.SignedIn}
	f, s, _ := newFlow(t, auth)
	u := newUser(t, s)
	ctx := context.Background()

	if err := f.Begin(u); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.SubmitAppID(u, "12345"); err != nil {
		t.Fatalf("app id: %v", err)
	}
	if err := f.SubmitAppHash(u, "abcdef"); err != nil {
		t.Fatalf("app hash: %v", err)
	}
	if err := f.SubmitPhone(ctx, u, "+998901234567"); err != nil {
		t.Fatalf("phone: %v", err)
	}
	if u.State != models.StateAwaitingCode {
		t.Fatalf("state after phone: %q", u.State)
	}

	res, err := f.SubmitCode(ctx, u, "12 345")
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if res != Linked {
		t.Fatalf("want Linked, got %v", res)
	}
	if u.State != models.StateIdle {
		t.Errorf("state after link: %q", u.State)
	}
	if !auth.closed {
		t.Error("auth connection must be released after linking")
	}

	a, err := f.Account(1)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !a.Usable() || *a.Session != "exported-session" {
		t.Errorf("account not usable after link: %+v", a)
	}
	if a.AppID != 12345 || a.AppHash != "abcdef" || a.Phone != "+998901234567" {
		t.Errorf("credentials not persisted: %+v", a)
	}
}

func TestTwoFactorBranch(t *testing.T) {
	auth := &fakeAuth{signInResult: userbot.PasswordNeeded}
	f, s, _ := newFlow(t, auth)
	u := newUser(t, s)
	ctx := context.Background()

	_ = f.Begin(u)
	_ = f.SubmitAppID(u, "1")
	_ = f.SubmitAppHash(u, "h")
	_ = f.SubmitPhone(ctx, u, "+12025550123")

	res, err := f.SubmitCode(ctx, u, "12345")
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if res != NeedPassword || u.State != models.StateAwaiting2FA {
		t.Fatalf("want NeedPassword/awaiting_2fa, got %v/%q", res, u.State)
	}

	// Wrong password: verbatim error, state stays.
	auth.passwordErr = errors.New("PASSWORD_HASH_INVALID")
	if _, err := f.SubmitPassword(ctx, u, "wrong"); err == nil {
		t.Fatal("expected password error")
	}
	if u.State != models.StateAwaiting2FA {
		t.Errorf("state after bad password: %q", u.State)
	}

	auth.passwordErr = nil
	res, err = f.SubmitPassword(ctx, u, "right")
	if err != nil {
		t.Fatalf("password: %v", err)
	}
	if res != Linked {
		t.Fatalf("want Linked, got %v", res)
	}
	a, _ := f.Account(1)
	if !a.Usable() {
		t.Error("account should be usable after 2fa")
	}
}

func TestInputValidationDoesNotAdvance(t *testing.T) {
	f, s, _ := newFlow(t, &fakeAuth{})
	u := newUser(t, s)
	ctx := context.Background()

	_ = f.Begin(u)
	if err := f.SubmitAppID(u, "not-a-number"); !errors.Is(err, ErrAppIDNotNumeric) {
		t.Errorf("want ErrAppIDNotNumeric, got %v", err)
	}
	if u.State != models.StateAwaitingAppID {
		t.Errorf("state advanced on bad app id: %q", u.State)
	}

	_ = f.SubmitAppID(u, "1")
	if err := f.SubmitAppHash(u, "  "); !errors.Is(err, ErrEmptyAppHash) {
		t.Errorf("want ErrEmptyAppHash, got %v", err)
	}

	_ = f.SubmitAppHash(u, "h")
	for _, bad := range []string{"998901234567", "+99890", "+9989012345678901234", "phone"} {
		if err := f.SubmitPhone(ctx, u, bad); !errors.Is(err, ErrBadPhone) {
			t.Errorf("SubmitPhone(%q): want ErrBadPhone, got %v", bad, err)
		}
	}
	if u.State != models.StateAwaitingPhone {
		t.Errorf("state advanced on bad phone: %q", u.State)
	}

	_ = f.SubmitPhone(ctx, u, "+998901234567")
	if _, err := f.SubmitCode(ctx, u, "123"); !errors.Is(err, ErrBadCode) {
		t.Errorf("short code: want ErrBadCode, got %v", err)
	}
	if u.State != models.StateAwaitingCode {
		t.Errorf("state advanced on bad code: %q", u.State)
	}
}

func TestCodeWithoutPendingLogin(t *testing.T) {
	f, s, _ := newFlow(t, &fakeAuth{})
	u := newUser(t, s)
	u.State = models.StateAwaitingCode

	if _, err := f.SubmitCode(context.Background(), u, "12345"); !errors.Is(err, ErrNoPendingLogin) {
		t.Errorf("want ErrNoPendingLogin, got %v", err)
	}
}

func TestResendCooldown(t *testing.T) {
	auth := &fakeAuth{}
	f, s, _ := newFlow(t, auth)
	u := newUser(t, s)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return base }

	_ = f.Begin(u)
	_ = f.SubmitAppID(u, "1")
	_ = f.SubmitAppHash(u, "h")
	if err := f.SubmitPhone(ctx, u, "+998901234567"); err != nil {
		t.Fatalf("phone: %v", err)
	}

	// One minute later: still in cooldown.
	f.now = func() time.Time { return base.Add(time.Minute) }
	err := f.ResendCode(ctx, u)
	var cd *ResendCooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("want ResendCooldownError, got %v", err)
	}
	if cd.Remaining != time.Minute {
		t.Errorf("remaining: want 1m, got %s", cd.Remaining)
	}

	// Past the window: resend goes through.
	f.now = func() time.Time { return base.Add(ResendCooldown + time.Second) }
	if err := f.ResendCode(ctx, u); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	if auth.codesSent != 2 {
		t.Errorf("codes sent: want 2, got %d", auth.codesSent)
	}
}

func TestCancelReleasesConnection(t *testing.T) {
	auth := &fakeAuth{}
	f, s, _ := newFlow(t, auth)
	u := newUser(t, s)
	ctx := context.Background()

	_ = f.Begin(u)
	_ = f.SubmitAppID(u, "1")
	_ = f.SubmitAppHash(u, "h")
	_ = f.SubmitPhone(ctx, u, "+998901234567")

	if err := f.Cancel(u); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !auth.closed {
		t.Error("cancel must disconnect the live login connection")
	}
	if u.State != models.StateIdle {
		t.Errorf("state after cancel: %q", u.State)
	}
}

func TestDisconnectKeepsCredentials(t *testing.T) {
	auth := &fakeAuth{signInResult: userbot.SignedIn}
	f, s, _ := newFlow(t, auth)
	u := newUser(t, s)
	ctx := context.Background()

	_ = f.Begin(u)
	_ = f.SubmitAppID(u, "777")
	_ = f.SubmitAppHash(u, "hash777")
	_ = f.SubmitPhone(ctx, u, "+998901234567")
	if _, err := f.SubmitCode(ctx, u, "12345"); err != nil {
		t.Fatalf("code: %v", err)
	}

	if err := f.Disconnect(1); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	a, err := f.Account(1)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if a.Usable() {
		t.Error("session must be dropped on disconnect")
	}
	if a.AppID != 777 || a.AppHash != "hash777" {
		t.Errorf("api credentials must survive disconnect: %+v", a)
	}
}
