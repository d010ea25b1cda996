package premium

import "errors"

// Service-level error values. The bot layer maps these to user-facing
// messages; they carry no presentation text themselves.
var (
	// ErrBadKeyFormat is returned before any lookup when the submitted
	// string does not match PREMIUM-<8..12 uppercase alphanumerics>.
	ErrBadKeyFormat = errors.New("key has invalid format")

	// ErrKeyNotFound is returned for well-formed keys that were never issued.
	ErrKeyNotFound = errors.New("key does not exist")

	// ErrKeyRedeemed is returned when the key is already bound to a user.
	ErrKeyRedeemed = errors.New("key already redeemed")

	// ErrAlreadyPremium is returned when the user holds an active grant.
	ErrAlreadyPremium = errors.New("user already has an active grant")

	// ErrRequestPending is returned when the user already has an
	// outstanding premium request.
	ErrRequestPending = errors.New("premium request already pending")

	// ErrNoRequest is returned when approving a user with no pending request.
	ErrNoRequest = errors.New("no pending request for user")
)
