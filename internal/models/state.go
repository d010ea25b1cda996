package models

import "fmt"

// State is the conversation state of a TelegramUser. The zero value
// (StateIdle) means no flow is in progress.
type State string

const (
	StateIdle State = ""

	// Account-linking flow, in order.
	StateAwaitingAppID   State = "awaiting_app_id"
	StateAwaitingAppHash State = "awaiting_app_hash"
	StateAwaitingPhone   State = "awaiting_phone"
	StateAwaitingCode    State = "awaiting_code"
	StateAwaiting2FA     State = "awaiting_2fa_password"

	// Key activation.
	StateAwaitingKey State = "awaiting_key"

	// Group registration.
	StateAwaitingGroupLink State = "awaiting_group_link"
	StateConfirmingGroup   State = "confirming_group"

	// Broadcast setup.
	StateAwaitingMessage  State = "awaiting_message"
	StateAwaitingInterval State = "awaiting_interval"
)

// transitions lists, for every state, the states it may move to.
// Cancellation back to StateIdle is always legal and not listed.
var transitions = map[State][]State{
	StateIdle:              {StateAwaitingAppID, StateAwaitingKey, StateAwaitingGroupLink, StateAwaitingMessage, StateAwaitingInterval},
	StateAwaitingAppID:     {StateAwaitingAppHash},
	StateAwaitingAppHash:   {StateAwaitingPhone},
	StateAwaitingPhone:     {StateAwaitingCode},
	StateAwaitingCode:      {StateAwaiting2FA},
	StateAwaiting2FA:       {},
	StateAwaitingKey:       {},
	StateAwaitingGroupLink: {StateConfirmingGroup},
	StateConfirmingGroup:   {},
	StateAwaitingMessage:   {StateAwaitingInterval},
	StateAwaitingInterval:  {},
}

// ErrIllegalTransition is returned by Transition for moves the flow
// tables do not allow.
type ErrIllegalTransition struct {
	From, To State
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal state transition %q -> %q", e.From, e.To)
}

// Transition moves the user to next if the transition table allows it.
// Moving to StateIdle (cancel / flow done) is always allowed.
func (u *TelegramUser) Transition(next State) error {
	if next == StateIdle {
		u.State = next
		return nil
	}
	for _, allowed := range transitions[u.State] {
		if allowed == next {
			u.State = next
			return nil
		}
	}
	return &ErrIllegalTransition{From: u.State, To: next}
}
