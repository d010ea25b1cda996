package models

import (
	"errors"
	"testing"
)

func TestTransitionLinkingFlow(t *testing.T) {
	u := &TelegramUser{}
	steps := []State{
		StateAwaitingAppID,
		StateAwaitingAppHash,
		StateAwaitingPhone,
		StateAwaitingCode,
		StateAwaiting2FA,
	}
	for _, s := range steps {
		if err := u.Transition(s); err != nil {
			t.Fatalf("transition to %q: %v", s, err)
		}
	}
	if u.State != StateAwaiting2FA {
		t.Errorf("final state: got %q", u.State)
	}
}

func TestTransitionIllegal(t *testing.T) {
	u := &TelegramUser{State: StateAwaitingAppID}
	err := u.Transition(StateAwaitingCode)
	if err == nil {
		t.Fatal("expected error for skipping states")
	}
	var it *ErrIllegalTransition
	if !errors.As(err, &it) {
		t.Fatalf("want ErrIllegalTransition, got %T", err)
	}
	if u.State != StateAwaitingAppID {
		t.Errorf("state must not change on illegal transition, got %q", u.State)
	}
}

func TestTransitionCancelAlwaysAllowed(t *testing.T) {
	for from := range transitions {
		u := &TelegramUser{State: from}
		if err := u.Transition(StateIdle); err != nil {
			t.Errorf("cancel from %q: %v", from, err)
		}
	}
}
