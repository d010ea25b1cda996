// Package premium owns the key/subscription lifecycle: issuing one-time
// activation keys, redeeming them into grants, and answering "is this
// user premium right now".
package premium

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/store"
)

const (
	keyPrefix    = "PREMIUM-"
	keySuffixLen = 12
	keyAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Issued keys accept an 8..12 character suffix so older, shorter keys
// stay redeemable.
var keyPattern = regexp.MustCompile(`^PREMIUM-[A-Z0-9]{8,12}$`)

type Service struct {
	store *store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewService(s *store.Store, log zerolog.Logger) *Service {
	return &Service{
		store: s,
		log:   log.With().Str("component", "premium").Logger(),
		now:   time.Now,
	}
}

// GenerateKey produces a fresh key string. The suffix must be
// unguessable, so it always comes from crypto/rand.
func (s *Service) GenerateKey() (string, error) {
	buf := make([]byte, keySuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("premium: generate key: %w", err)
	}
	for i, b := range buf {
		buf[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return keyPrefix + string(buf), nil
}

// IssueKey mints and persists an unredeemed key valid for days.
func (s *Service) IssueKey(days int, grantorID int64) (*models.IssuedKey, error) {
	key, err := s.GenerateKey()
	if err != nil {
		return nil, err
	}
	k := &models.IssuedKey{
		Key:       key,
		ExpiresAt: s.now().Add(time.Duration(days) * 24 * time.Hour),
		GrantorID: grantorID,
		Days:      days,
	}
	if err := s.store.CreateKey(k); err != nil {
		return nil, fmt.Errorf("premium: persist key: %w", err)
	}
	s.log.Info().Int("days", days).Int64("grantor", grantorID).Msg("key issued")
	return k, nil
}

// Redeem validates the key (format, then existence, then un-redeemed
// status, in that order) and grants premium to userID. The grant's
// validity window starts at redemption, not at issuance, so a key that
// sat unused does not shortchange the buyer. Marking the key redeemed
// and writing the grant happen in one transaction.
func (s *Service) Redeem(keyString string, userID int64) (*models.PremiumGrant, error) {
	if !keyPattern.MatchString(keyString) {
		return nil, ErrBadKeyFormat
	}

	var grant *models.PremiumGrant
	err := s.store.Tx(func(tx *store.Store) error {
		k, err := tx.GetKey(keyString)
		if errors.Is(err, store.ErrNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		if k.RedeemedBy != nil {
			return ErrKeyRedeemed
		}

		k.RedeemedBy = &userID
		if err := tx.SaveKey(k); err != nil {
			return err
		}
		grant = &models.PremiumGrant{
			UserID:    userID,
			Key:       k.Key,
			ExpiresAt: s.now().Add(time.Duration(k.Days) * 24 * time.Hour),
			GrantorID: k.GrantorID,
			Days:      k.Days,
		}
		return tx.PutGrant(grant)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user", userID).Time("expires", grant.ExpiresAt).Msg("key redeemed")
	return grant, nil
}

// IsPremium recomputes validity on every call; expiry is exclusive, so
// a grant expiring exactly now is no longer active.
func (s *Service) IsPremium(userID int64) bool {
	g, err := s.store.GetGrant(userID)
	if err != nil {
		return false
	}
	return s.now().Before(g.ExpiresAt)
}

// Grant returns the user's grant record, ErrNotFound if none.
func (s *Service) Grant(userID int64) (*models.PremiumGrant, error) {
	return s.store.GetGrant(userID)
}

// Request files a pending premium request for the user. Duplicate
// requests and requests from already-premium users are conflicts.
func (s *Service) Request(userID int64, username string) error {
	if s.IsPremium(userID) {
		return ErrAlreadyPremium
	}
	if _, err := s.store.GetRequest(userID); err == nil {
		return ErrRequestPending
	}
	return s.store.CreateRequest(&models.PendingRequest{
		UserID:      userID,
		Username:    username,
		RequestedAt: s.now(),
	})
}

// Approve is the admin action: mint a fresh 30-day key, redeem it on
// the requester's behalf, and consume the pending request atomically.
func (s *Service) Approve(userID, adminID int64) (*models.PremiumGrant, error) {
	if _, err := s.store.GetRequest(userID); errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoRequest
	} else if err != nil {
		return nil, err
	}

	key, err := s.GenerateKey()
	if err != nil {
		return nil, err
	}

	var grant *models.PremiumGrant
	err = s.store.Tx(func(tx *store.Store) error {
		redeemer := userID
		k := &models.IssuedKey{
			Key:        key,
			ExpiresAt:  s.now().Add(30 * 24 * time.Hour),
			GrantorID:  adminID,
			Days:       30,
			RedeemedBy: &redeemer,
		}
		if err := tx.CreateKey(k); err != nil {
			return err
		}
		grant = &models.PremiumGrant{
			UserID:    userID,
			Key:       k.Key,
			ExpiresAt: k.ExpiresAt,
			GrantorID: adminID,
			Days:      30,
		}
		if err := tx.PutGrant(grant); err != nil {
			return err
		}
		return tx.DeleteRequest(userID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("user", userID).Int64("admin", adminID).Msg("request approved")
	return grant, nil
}

// PendingRequests lists outstanding requests, oldest first.
func (s *Service) PendingRequests() ([]models.PendingRequest, error) {
	return s.store.ListRequests()
}

// PremiumUsers lists all grants, newest expiry first.
func (s *Service) PremiumUsers() ([]models.PremiumGrant, error) {
	return s.store.ListGrants()
}

// KeyQR renders the key as a PNG QR code, sent to the admin alongside a
// freshly issued key.
func (s *Service) KeyQR(key string) ([]byte, error) {
	return qrcode.Encode(key, qrcode.Medium, 256)
}
