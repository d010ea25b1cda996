package models

import "time"

// TelegramUser is one end user of the bot. State tracks the conversation
// flow the user is currently in; the Staged*/Pending* columns are scratch
// space for that flow and are cleared when it completes or is cancelled.
type TelegramUser struct {
	ID        uint  `gorm:"primarykey"`
	UserID    int64 `gorm:"uniqueIndex"`
	ChatID    int64
	Username  string
	FirstName string

	State State `gorm:"default:''"`

	StagedHandle    string // group staged for confirmation
	StagedLink      string
	PendingMessage  string // broadcast text awaiting an interval
	IntervalMinutes int    // last applied broadcast interval

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PremiumGrant records a user's active (or expired) premium access.
// Validity is always recomputed against the wall clock: the grant is
// active iff now < ExpiresAt.
type PremiumGrant struct {
	ID        uint  `gorm:"primarykey"`
	UserID    int64 `gorm:"uniqueIndex"`
	Key       string
	ExpiresAt time.Time
	GrantorID int64
	Days      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IssuedKey is a one-time activation key. RedeemedBy is nil until the
// first successful redemption permanently binds the key to that user.
type IssuedKey struct {
	ID         uint   `gorm:"primarykey"`
	Key        string `gorm:"uniqueIndex"`
	ExpiresAt  time.Time
	GrantorID  int64
	Days       int
	RedeemedBy *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PendingRequest is an outstanding premium request. At most one per
// user; removed when the admin approves.
type PendingRequest struct {
	ID          uint  `gorm:"primarykey"`
	UserID      int64 `gorm:"uniqueIndex"`
	Username    string
	RequestedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LinkedAccount holds a user's secondary Telegram login. Session is nil
// until the login flow finishes; only then is the account usable for
// broadcasting.
type LinkedAccount struct {
	ID       uint  `gorm:"primarykey"`
	UserID   int64 `gorm:"uniqueIndex"`
	AppID    int32
	AppHash  string
	Phone    string
	Session  *string
	LinkedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable reports whether the account can open a userbot session.
func (a *LinkedAccount) Usable() bool {
	return a != nil && a.Session != nil && *a.Session != ""
}

// GroupRef is a broadcast target registered by a user. The canonical key
// is the lowercased handle; the bot has no privilege to resolve a real
// numeric chat id, so none is stored.
type GroupRef struct {
	ID     uint  `gorm:"primarykey"`
	UserID int64 `gorm:"index"`
	Handle string
	Title  string
	Link   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BroadcastFolder is a named tag over a user's registered groups: an
// ordered list of handles. At most one folder per user.
type BroadcastFolder struct {
	ID      uint  `gorm:"primarykey"`
	UserID  int64 `gorm:"uniqueIndex"`
	Name    string
	Handles []string `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
