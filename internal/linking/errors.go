package linking

import (
	"errors"
	"fmt"
	"time"
)

// Input-validation errors: recovered locally, the user is re-prompted
// and the state does not advance.
var (
	ErrAppIDNotNumeric = errors.New("api_id must be numeric")
	ErrEmptyAppHash    = errors.New("api_hash must not be empty")
	ErrBadPhone        = errors.New("phone must match +<10..14 digits>")
	ErrBadCode         = errors.New("code must be exactly 5 digits")

	// ErrNoPendingLogin means the step arrived without a live login
	// attempt (expired, cancelled, or never started).
	ErrNoPendingLogin = errors.New("no login attempt in progress")
)

// ResendCooldownError rejects a resend issued within the client-side
// cooldown window, independent of the platform's own flood control.
type ResendCooldownError struct {
	Remaining time.Duration
}

func (e *ResendCooldownError) Error() string {
	return fmt.Sprintf("resend allowed in %s", e.Remaining.Round(time.Second))
}
