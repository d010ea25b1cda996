package userbot

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amarnathcjd/gogram/telegram"
)

// GogramDialer implements Dialer on top of gogram's MTProto client.
// Sessions are kept in memory only; the exported session string is the
// sole persistent artifact.
type GogramDialer struct{}

func NewGogramDialer() *GogramDialer { return &GogramDialer{} }

func (d *GogramDialer) DialAuth(ctx context.Context, appID int32, appHash string) (Authenticator, error) {
	c, err := telegram.NewClient(telegram.ClientConfig{
		AppID:         appID,
		AppHash:       appHash,
		MemorySession: true,
		LogLevel:      telegram.LogError,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return &gogramAuth{tg: c}, nil
}

func (d *GogramDialer) DialSession(ctx context.Context, appID int32, appHash, session string) (Session, error) {
	c, err := telegram.NewClient(telegram.ClientConfig{
		AppID:         appID,
		AppHash:       appHash,
		StringSession: session,
		MemorySession: true,
		LogLevel:      telegram.LogError,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return &gogramSession{tg: c}, nil
}

type gogramAuth struct {
	tg *telegram.Client
}

func (a *gogramAuth) SendCode(ctx context.Context, phone string) (string, error) {
	hash, err := a.tg.SendCode(phone)
	if err != nil {
		return "", mapRPCError(err)
	}
	return hash, nil
}

func (a *gogramAuth) SignIn(ctx context.Context, phone, codeHash, code string) (SignInResult, error) {
	_, err := a.tg.AuthSignIn(phone, codeHash, code, nil)
	if err != nil {
		if strings.Contains(err.Error(), "SESSION_PASSWORD_NEEDED") {
			return PasswordNeeded, nil
		}
		return 0, mapRPCError(err)
	}
	return SignedIn, nil
}

func (a *gogramAuth) CheckPassword(ctx context.Context, password string) error {
	accPwd, err := a.tg.AccountGetPassword()
	if err != nil {
		return mapRPCError(err)
	}
	srp, err := telegram.GetInputCheckPassword(password, accPwd)
	if err != nil {
		return err
	}
	if _, err := a.tg.AuthCheckPassword(srp); err != nil {
		if strings.Contains(err.Error(), "PASSWORD_HASH_INVALID") {
			return ErrBadPassword
		}
		return mapRPCError(err)
	}
	return nil
}

func (a *gogramAuth) ExportSession() (string, error) {
	return a.tg.ExportSession(), nil
}

func (a *gogramAuth) Close() error {
	return a.tg.Disconnect()
}

type gogramSession struct {
	tg *telegram.Client
}

func (s *gogramSession) SendMessage(ctx context.Context, peer, text string) error {
	if _, err := s.tg.SendMessage(peer, text); err != nil {
		return mapRPCError(err)
	}
	return nil
}

func (s *gogramSession) Close() error {
	return s.tg.Disconnect()
}

var floodWaitRe = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// mapRPCError translates Telegram RPC error strings into the typed
// errors the linking flow branches on.
func mapRPCError(err error) error {
	msg := err.Error()
	if m := floodWaitRe.FindStringSubmatch(msg); m != nil {
		secs, _ := strconv.Atoi(m[1])
		return &FloodWaitError{Wait: time.Duration(secs) * time.Second}
	}
	switch {
	case strings.Contains(msg, "PHONE_CODE_INVALID"), strings.Contains(msg, "PHONE_CODE_EXPIRED"):
		return ErrCodeInvalid
	case strings.Contains(msg, "PHONE_NUMBER_INVALID"):
		return ErrPhoneInvalid
	}
	return err
}
