// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"fmt"
)

const (
	// PhaseLoad is application loading, before any socket exists.
	PhaseLoad Phase = "load"
	// PhaseBind is the single listen attempt.
	PhaseBind Phase = "bind"
)

var (
	// ErrAppLoad marks a failure to load the application.
	ErrAppLoad = errors.New("application load failed")
	// ErrBind marks a failure to acquire the listen socket.
	ErrBind = errors.New("bind failed")
)

type (
	// Phase names the startup phase a StartError happened in.
	Phase string

	// StartError is returned by Start when the launcher cannot begin serving.
	StartError struct {
		Phase Phase
		// Addr is the listen address, set for PhaseBind.
		Addr string
		Err  error
	}
)

func (e *StartError) Error() string {
	if e.Phase == PhaseBind {
		return fmt.Sprintf("%v on %s: %v", e.sentinel(), e.Addr, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.sentinel(), e.Err)
}

// Unwrap exposes the phase sentinel and the underlying error.
func (e *StartError) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *StartError) sentinel() error {
	if e.Phase == PhaseBind {
		return ErrBind
	}
	return ErrAppLoad
}
