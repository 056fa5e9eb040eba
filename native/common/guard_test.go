package common

import (
	"errors"
	"testing"

	lendingerrors "lendingmarket/core/errors"
)

func TestGuardHonoursPauseSet(t *testing.T) {
	pauses := PauseSet{}
	if err := Guard(pauses, "market-a", ActionMint); err != nil {
		t.Fatalf("unexpected error on empty set: %v", err)
	}

	pauses.Set("market-a", ActionMint, true)
	if err := Guard(pauses, "market-a", ActionMint); !errors.Is(err, lendingerrors.ErrActionPaused) {
		t.Fatalf("expected ErrActionPaused, got %v", err)
	}
	if err := Guard(pauses, "market-a", ActionBorrow); err != nil {
		t.Fatalf("borrow should not be paused: %v", err)
	}
	if err := Guard(pauses, "market-b", ActionMint); err != nil {
		t.Fatalf("other scopes should not be paused: %v", err)
	}

	pauses.Set("market-a", ActionMint, false)
	if err := Guard(pauses, "market-a", ActionMint); err != nil {
		t.Fatalf("unexpected error after unpause: %v", err)
	}
	if len(pauses) != 0 {
		t.Fatalf("expected empty set after unpause, got %v", pauses)
	}
}

func TestGuardNilViewIsOpen(t *testing.T) {
	if err := Guard(nil, "market-a", ActionBorrow); err != nil {
		t.Fatalf("nil view should never block: %v", err)
	}
}

func TestActionValid(t *testing.T) {
	if !ActionMint.Valid() || !ActionBorrow.Valid() {
		t.Fatalf("expected built-in actions to be valid")
	}
	if Action("liquidate").Valid() {
		t.Fatalf("unexpected valid action")
	}
}
