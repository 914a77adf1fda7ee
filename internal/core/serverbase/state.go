// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"errors"
	"fmt"
)

const (
	// StateCreated is the state before Start.
	StateCreated State = iota
	// StateStarting covers loading everything needed before a socket exists.
	StateStarting
	// StateBinding is the single attempt to acquire the listen socket.
	StateBinding
	// StateServing accepts and dispatches requests.
	StateServing
	// StateDraining no longer accepts; in-flight requests are finishing.
	StateDraining
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal: startup or serving hit a fatal error.
	StateFailed
)

var (
	// ErrInvalidState is returned when a State value is not a defined lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTransition is returned when a transition is attempted from the wrong state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

type (
	// State is a lifecycle state.
	State int32

	// InvalidStateError wraps ErrInvalidState.
	InvalidStateError struct {
		Value State
	}

	// TransitionError reports a rejected transition. It wraps ErrInvalidTransition.
	TransitionError struct {
		From State
		To   State
	}
)

var stateNames = [...]string{
	StateCreated:  "created",
	StateStarting: "starting",
	StateBinding:  "binding",
	StateServing:  "serving",
	StateDraining: "draining",
	StateStopped:  "stopped",
	StateFailed:   "failed",
}

func (s State) String() string {
	if s.Validate() != nil {
		return "unknown"
	}
	return stateNames[s]
}

// Validate returns an error wrapping ErrInvalidState for undefined values.
func (s State) Validate() error {
	if s < StateCreated || s > StateFailed {
		return &InvalidStateError{Value: s}
	}
	return nil
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d", e.Value)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
