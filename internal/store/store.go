// Package store is the persistence layer: one Store wraps a gorm handle
// and exposes typed accessors per collection (users, grants, keys,
// pending requests, linked accounts, groups, folders). No business
// logic lives here; services own the rules and call through the Store.
package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/udevs/promocast/internal/models"
)

// ErrNotFound aliases gorm.ErrRecordNotFound so callers don't import gorm.
var ErrNotFound = gorm.ErrRecordNotFound

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Tx runs fn inside a database transaction. The Store passed to fn is
// bound to the transaction; both writes commit or neither does.
func (s *Store) Tx(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// --- users ---

// UpsertUser fetches the user record for userID, creating it on first
// contact, and refreshes chat/handle fields that Telegram may change.
func (s *Store) UpsertUser(userID, chatID int64, username, firstName string) (*models.TelegramUser, error) {
	// Lookup by user_id only; chat/handle fields change over time and
	// must never be part of the match condition.
	var u models.TelegramUser
	err := s.db.Where(models.TelegramUser{UserID: userID}).
		Attrs(models.TelegramUser{ChatID: chatID, Username: username, FirstName: firstName}).
		FirstOrCreate(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ChatID != chatID || u.Username != username || u.FirstName != firstName {
		u.ChatID = chatID
		u.Username = username
		u.FirstName = firstName
		if err := s.db.Save(&u).Error; err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (s *Store) GetUser(userID int64) (*models.TelegramUser, error) {
	var u models.TelegramUser
	if err := s.db.Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SaveUser(u *models.TelegramUser) error {
	return s.db.Save(u).Error
}

// --- premium grants ---

func (s *Store) GetGrant(userID int64) (*models.PremiumGrant, error) {
	var g models.PremiumGrant
	if err := s.db.Where("user_id = ?", userID).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// PutGrant inserts or overwrites the user's grant; one active grant per
// user, keyed by user_id.
func (s *Store) PutGrant(g *models.PremiumGrant) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"key", "expires_at", "grantor_id", "days", "updated_at",
		}),
	}).Create(g).Error
}

func (s *Store) ListGrants() ([]models.PremiumGrant, error) {
	var out []models.PremiumGrant
	err := s.db.Order("expires_at desc").Find(&out).Error
	return out, err
}

// --- issued keys ---

func (s *Store) CreateKey(k *models.IssuedKey) error {
	return s.db.Create(k).Error
}

func (s *Store) GetKey(key string) (*models.IssuedKey, error) {
	var k models.IssuedKey
	if err := s.db.Where("key = ?", key).First(&k).Error; err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) SaveKey(k *models.IssuedKey) error {
	return s.db.Save(k).Error
}

// --- pending requests ---

func (s *Store) GetRequest(userID int64) (*models.PendingRequest, error) {
	var r models.PendingRequest
	if err := s.db.Where("user_id = ?", userID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateRequest(r *models.PendingRequest) error {
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now()
	}
	return s.db.Create(r).Error
}

func (s *Store) DeleteRequest(userID int64) error {
	return s.db.Where("user_id = ?", userID).Delete(&models.PendingRequest{}).Error
}

func (s *Store) ListRequests() ([]models.PendingRequest, error) {
	var out []models.PendingRequest
	err := s.db.Order("requested_at asc").Find(&out).Error
	return out, err
}

// --- linked accounts ---

func (s *Store) GetAccount(userID int64) (*models.LinkedAccount, error) {
	var a models.LinkedAccount
	if err := s.db.Where("user_id = ?", userID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAccount upserts by user_id: one linked account per user.
func (s *Store) SaveAccount(a *models.LinkedAccount) error {
	if a.ID != 0 {
		return s.db.Save(a).Error
	}
	var existing models.LinkedAccount
	err := s.db.Where("user_id = ?", a.UserID).First(&existing).Error
	switch {
	case err == nil:
		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
		return s.db.Save(a).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.Create(a).Error
	default:
		return err
	}
}

// --- group refs ---

func (s *Store) ListGroups(userID int64) ([]models.GroupRef, error) {
	var out []models.GroupRef
	err := s.db.Where("user_id = ?", userID).Order("id asc").Find(&out).Error
	return out, err
}

func (s *Store) GroupExists(userID int64, handle string) (bool, error) {
	var n int64
	err := s.db.Model(&models.GroupRef{}).
		Where("user_id = ? AND handle = ?", userID, handle).Count(&n).Error
	return n > 0, err
}

func (s *Store) AddGroup(g *models.GroupRef) error {
	return s.db.Create(g).Error
}

// --- broadcast folders ---

func (s *Store) GetFolder(userID int64) (*models.BroadcastFolder, error) {
	var f models.BroadcastFolder
	if err := s.db.Where("user_id = ?", userID).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) CreateFolder(f *models.BroadcastFolder) error {
	return s.db.Create(f).Error
}
