package common

import (
	"errors"
	"fmt"

	"netyield/crypto"
)

// ErrModulePaused is returned by Guard when the pause collaborator reports the
// module as halted.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause collaborator's current view. A nil view leaves
// every module unpaused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating entry points while the module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// RoleView exposes the access-control collaborator's capability memberships.
type RoleView interface {
	HasRole(role string, addr []byte) bool
}

// UnauthorizedError reports a caller lacking a required capability. Entry
// points surface it before mutating any state.
type UnauthorizedError struct {
	Caller     crypto.Address
	Capability string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: caller %s lacks capability %s", e.Caller, e.Capability)
}

// RequireRole verifies the caller holds the named capability. A nil view
// denies everything; the collaborator must be wired explicitly.
func RequireRole(r RoleView, role string, caller crypto.Address) error {
	if r == nil || !r.HasRole(role, caller.Bytes()) {
		return &UnauthorizedError{Caller: caller, Capability: role}
	}
	return nil
}
