// Package userbot abstracts the secondary MTProto client used to log in
// as the user and send broadcasts from their account. The linking flow
// and the scheduler depend only on the interfaces here; the gogram
// implementation lives in gogram.go.
package userbot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SignInResult distinguishes a completed sign-in from one that still
// needs the account's 2FA password.
type SignInResult int

const (
	SignedIn SignInResult = iota
	PasswordNeeded
)

// Platform error kinds surfaced to the linking flow.
var (
	ErrCodeInvalid  = errors.New("verification code invalid")
	ErrPhoneInvalid = errors.New("phone number rejected by platform")
	ErrBadPassword  = errors.New("2fa password rejected")
)

// FloodWaitError reports a platform rate limit and how long to wait.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry in %s", e.Wait)
}

// Authenticator is a live, not-yet-authorized client connection used
// during the linking flow. Close releases the connection; the flow must
// call it on cancel so abandoned logins don't leak connections.
type Authenticator interface {
	SendCode(ctx context.Context, phone string) (codeHash string, err error)
	SignIn(ctx context.Context, phone, codeHash, code string) (SignInResult, error)
	CheckPassword(ctx context.Context, password string) error
	ExportSession() (string, error)
	Close() error
}

// Session is an authorized client restored from a stored session
// string, used for one broadcast cycle.
type Session interface {
	SendMessage(ctx context.Context, peer, text string) error
	Close() error
}

// Dialer opens userbot connections. Fakes implement it in tests.
type Dialer interface {
	DialAuth(ctx context.Context, appID int32, appHash string) (Authenticator, error)
	DialSession(ctx context.Context, appID int32, appHash, session string) (Session, error)
}
