// Package groups keeps each user's broadcast targets: group references
// registered by link or @handle (staged, then explicitly confirmed) and
// the optional auto-folder built over them.
package groups

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/models"
	"github.com/udevs/promocast/internal/store"
)

var (
	// ErrBadLink means no handle could be parsed from the input.
	ErrBadLink = errors.New("cannot parse a group handle from input")

	// ErrNothingStaged means confirm/cancel arrived with no staged group.
	ErrNothingStaged = errors.New("no group staged for confirmation")

	// ErrDuplicateGroup is a conflict, reported as a warning: the handle
	// is already in the owner's set and the operation is a no-op.
	ErrDuplicateGroup = errors.New("group already registered")

	// ErrNoGroups means folder creation needs at least one group first.
	ErrNoGroups = errors.New("no groups registered")

	// ErrFolderExists limits owners to one folder.
	ErrFolderExists = errors.New("folder already exists")

	// ErrAccountNotLinked means folder creation requires a usable session.
	ErrAccountNotLinked = errors.New("no linked account with a usable session")
)

// FolderName is the single auto-folder's fixed display name.
const FolderName = "Auto-Folder"

type Registry struct {
	store *store.Store
	log   zerolog.Logger
}

func NewRegistry(s *store.Store, log zerolog.Logger) *Registry {
	return &Registry{store: s, log: log.With().Str("component", "groups").Logger()}
}

// ParseHandle extracts the canonical (lowercased) handle from a full
// t.me URL, an @handle, or a bare handle, stripping query parameters.
func ParseHandle(text string) (handle, link string, err error) {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "https://t.me/"), strings.HasPrefix(text, "http://t.me/"):
		parts := strings.Split(text, "/")
		handle = parts[len(parts)-1]
	case strings.HasPrefix(text, "@"):
		handle = text[1:]
	default:
		handle = text
	}
	handle = strings.ToLower(strings.SplitN(handle, "?", 2)[0])
	if handle == "" || strings.ContainsAny(handle, " /") {
		return "", "", ErrBadLink
	}
	if strings.HasPrefix(text, "http") {
		link = strings.SplitN(text, "?", 2)[0]
	} else {
		link = "https://t.me/" + handle
	}
	return handle, link, nil
}

// Stage parses the input and stores it on the user record for explicit
// confirmation; nothing is persisted to the group set yet.
func (r *Registry) Stage(u *models.TelegramUser, text string) error {
	handle, link, err := ParseHandle(text)
	if err != nil {
		return err
	}
	u.StagedHandle = handle
	u.StagedLink = link
	if err := u.Transition(models.StateConfirmingGroup); err != nil {
		return err
	}
	return r.store.SaveUser(u)
}

// Confirm persists the staged group. A duplicate handle is a warning:
// the staged value is discarded and ErrDuplicateGroup returned.
func (r *Registry) Confirm(u *models.TelegramUser) (*models.GroupRef, error) {
	if u.StagedHandle == "" {
		return nil, ErrNothingStaged
	}
	handle, link := u.StagedHandle, u.StagedLink
	if err := r.clearStaged(u); err != nil {
		return nil, err
	}

	exists, err := r.store.GroupExists(u.UserID, handle)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateGroup
	}

	g := &models.GroupRef{
		UserID: u.UserID,
		Handle: handle,
		Title:  handle, // real title unknown without resolve privilege
		Link:   link,
	}
	if err := r.store.AddGroup(g); err != nil {
		return nil, err
	}
	r.log.Info().Int64("user", u.UserID).Str("handle", handle).Msg("group registered")
	return g, nil
}

// CancelStaged discards the staged group and returns the user to idle.
func (r *Registry) CancelStaged(u *models.TelegramUser) error {
	return r.clearStaged(u)
}

// List returns the owner's groups in insertion order.
func (r *Registry) List(ownerID int64) ([]models.GroupRef, error) {
	return r.store.ListGroups(ownerID)
}

// CreateFolder builds the owner's single auto-folder over all currently
// registered groups. Requires at least one group and a linked account
// with a usable session.
func (r *Registry) CreateFolder(ownerID int64) (*models.BroadcastFolder, error) {
	if _, err := r.store.GetFolder(ownerID); err == nil {
		return nil, ErrFolderExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	acct, err := r.store.GetAccount(ownerID)
	if err != nil || !acct.Usable() {
		return nil, ErrAccountNotLinked
	}

	groups, err := r.store.ListGroups(ownerID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	handles := make([]string, len(groups))
	for i, g := range groups {
		handles[i] = g.Handle
	}

	f := &models.BroadcastFolder{UserID: ownerID, Name: FolderName, Handles: handles}
	if err := r.store.CreateFolder(f); err != nil {
		return nil, err
	}
	r.log.Info().Int64("user", ownerID).Int("groups", len(handles)).Msg("folder created")
	return f, nil
}

// Folder returns the owner's folder, store.ErrNotFound if none.
func (r *Registry) Folder(ownerID int64) (*models.BroadcastFolder, error) {
	return r.store.GetFolder(ownerID)
}

// Targets resolves the handles a broadcast cycle should send to: the
// folder's ordered handles when a folder exists, else every registered
// group in insertion order.
func (r *Registry) Targets(ownerID int64) ([]string, error) {
	if f, err := r.store.GetFolder(ownerID); err == nil {
		return f.Handles, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	groups, err := r.store.ListGroups(ownerID)
	if err != nil {
		return nil, err
	}
	handles := make([]string, len(groups))
	for i, g := range groups {
		handles[i] = g.Handle
	}
	return handles, nil
}

func (r *Registry) clearStaged(u *models.TelegramUser) error {
	u.StagedHandle = ""
	u.StagedLink = ""
	if u.State == models.StateConfirmingGroup || u.State == models.StateAwaitingGroupLink {
		if err := u.Transition(models.StateIdle); err != nil {
			return err
		}
	}
	return r.store.SaveUser(u)
}
