package common

import (
	"fmt"
	"strings"

	lendingerrors "lendingmarket/core/errors"
)

// Action names a pausable user flow.
type Action string

const (
	ActionMint   Action = "mint"
	ActionBorrow Action = "borrow"
)

// Valid reports whether the action is one of the pausable flows.
func (a Action) Valid() bool {
	switch a {
	case ActionMint, ActionBorrow:
		return true
	default:
		return false
	}
}

// PauseView exposes the pause switches keyed by scope (e.g. a market identifier).
type PauseView interface {
	IsPaused(scope string, action Action) bool
}

// Guard returns ErrActionPaused when the action is switched off for the scope.
func Guard(p PauseView, scope string, action Action) error {
	if p == nil || strings.TrimSpace(scope) == "" {
		return nil
	}
	if p.IsPaused(scope, action) {
		return fmt.Errorf("%w: %s %s", lendingerrors.ErrActionPaused, action, scope)
	}
	return nil
}

// PauseSet is a mutable PauseView backed by a map.
type PauseSet map[string]map[Action]bool

// IsPaused implements PauseView.
func (s PauseSet) IsPaused(scope string, action Action) bool {
	if s == nil {
		return false
	}
	return s[scope][action]
}

// Set flips the switch for the scope and action.
func (s PauseSet) Set(scope string, action Action, paused bool) {
	if s == nil {
		return
	}
	actions, ok := s[scope]
	if !ok {
		if !paused {
			return
		}
		actions = make(map[Action]bool)
		s[scope] = actions
	}
	if paused {
		actions[action] = true
		return
	}
	delete(actions, action)
	if len(actions) == 0 {
		delete(s, scope)
	}
}
