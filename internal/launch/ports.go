// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"fmt"
)

const (
	// ReasonExposed means the resolved port differs from the exposed port.
	ReasonExposed MismatchReason = "bind port differs from exposed port"
	// ReasonIgnoresEnv means a fixed bind ignores a $PORT the platform set.
	ReasonIgnoresEnv MismatchReason = "fixed bind ignores $PORT"
)

// ErrPortMismatch is wrapped by PortMismatchError.
var ErrPortMismatch = errors.New("port mismatch")

type (
	// MismatchReason says which port relationship is broken.
	MismatchReason string

	// PortMismatchError reports a bind that would not receive the traffic
	// routed to the container.
	PortMismatchError struct {
		Reason  MismatchReason
		Bind    BindSpec
		Bound   int
		Exposed int
		// EnvPort is the raw $PORT value, empty when unset.
		EnvPort string
	}
)

// Error implements the error interface.
func (e *PortMismatchError) Error() string {
	switch e.Reason {
	case ReasonIgnoresEnv:
		return fmt.Sprintf("%s: bind %s ignores $PORT=%s", e.Reason, e.Bind, e.EnvPort)
	default:
		return fmt.Sprintf("%s: bind %s resolves to port %d, image exposes %d", e.Reason, e.Bind, e.Bound, e.Exposed)
	}
}

// Unwrap returns ErrPortMismatch.
func (e *PortMismatchError) Unwrap() error { return ErrPortMismatch }

// CheckPorts resolves bind against env and verifies it against the exposed
// port. A fixed bind is also flagged when $PORT is set to something else,
// since the platform will route traffic to $PORT. The resolved bind is
// returned even when a mismatch is reported.
func CheckPorts(exposed int, bind BindSpec, env Env) (ResolvedBind, error) {
	listen, err := bind.Resolve(env, exposed)
	if err != nil {
		return listen, err
	}

	envPort, _ := env.Lookup(PortEnvVar)
	if bind.Policy == PolicyFixed && envPort != "" {
		if p, perr := parsePort(envPort); perr == nil && p != bind.Port {
			return listen, &PortMismatchError{
				Reason: ReasonIgnoresEnv, Bind: bind, Bound: listen.Port, Exposed: exposed, EnvPort: envPort,
			}
		}
	}

	if listen.Port != exposed {
		return listen, &PortMismatchError{
			Reason: ReasonExposed, Bind: bind, Bound: listen.Port, Exposed: exposed, EnvPort: envPort,
		}
	}
	return listen, nil
}
