// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// PolicyFixed binds a literal port.
	PolicyFixed Policy = "fixed"
	// PolicyEnv reads the port from an environment variable at startup.
	PolicyEnv Policy = "env"

	// PortEnvVar is the variable read by PolicyEnv.
	PortEnvVar = "PORT"
)

var (
	// ErrInvalidBind is returned for unparseable bind addresses.
	ErrInvalidBind = errors.New("invalid bind address")
	// ErrInvalidPort is returned for ports outside 1-65535.
	ErrInvalidPort = errors.New("invalid port")
)

type (
	// Policy says where a BindSpec gets its port from.
	Policy string

	// BindSpec is a listen address whose port is either fixed or read from
	// the environment. It implements pflag.Value.
	BindSpec struct {
		Host   string
		Port   int
		Policy Policy
	}
)

// ParseBind accepts "host:port", ":port", "host:$PORT" and "host:${PORT}".
func ParseBind(s string) (BindSpec, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return BindSpec{}, fmt.Errorf("%w %q: %v", ErrInvalidBind, s, err)
	}

	switch port {
	case "$" + PortEnvVar, "${" + PortEnvVar + "}":
		return BindSpec{Host: host, Policy: PolicyEnv}, nil
	}

	p, err := parsePort(port)
	if err != nil {
		return BindSpec{}, fmt.Errorf("%w %q: %w", ErrInvalidBind, s, err)
	}
	return BindSpec{Host: host, Port: p, Policy: PolicyFixed}, nil
}

// MustParseBind is ParseBind for literals known to be valid.
func MustParseBind(s string) BindSpec {
	b, err := ParseBind(s)
	if err != nil {
		panic(err)
	}
	return b
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 || p > 65535 {
		return 0, fmt.Errorf("%w %q: must be 1-65535", ErrInvalidPort, s)
	}
	return p, nil
}

// String renders the bind as it appears on the command line, e.g.
// "0.0.0.0:$PORT" or "0.0.0.0:8000".
func (b BindSpec) String() string {
	if b.Policy == PolicyEnv {
		return b.Host + ":$" + PortEnvVar
	}
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// Set implements pflag.Value.
func (b *BindSpec) Set(s string) error {
	parsed, err := ParseBind(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Type implements pflag.Value.
func (b *BindSpec) Type() string { return "host:port" }

// IsZero reports whether the bind was never set.
func (b BindSpec) IsZero() bool { return b.Policy == "" }

// Validate checks the bind is complete.
func (b BindSpec) Validate() error {
	switch b.Policy {
	case PolicyEnv:
		return nil
	case PolicyFixed:
		if b.Port < 1 || b.Port > 65535 {
			return fmt.Errorf("%w %d: must be 1-65535", ErrInvalidPort, b.Port)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown port policy %q", ErrInvalidBind, b.Policy)
	}
}

// Resolve picks the concrete port. PolicyEnv reads PORT from env and falls
// back to fallback when it is unset or empty.
func (b BindSpec) Resolve(env Env, fallback int) (ResolvedBind, error) {
	r := ResolvedBind{Host: b.Host, Port: b.Port, Policy: b.Policy}
	if b.Policy != PolicyEnv {
		return r, b.Validate()
	}

	v, ok := env.Lookup(PortEnvVar)
	if !ok || v == "" {
		if fallback < 1 || fallback > 65535 {
			return r, fmt.Errorf("%w: $%s is unset and no exposed port to fall back to", ErrInvalidPort, PortEnvVar)
		}
		r.Port = fallback
		return r, nil
	}

	p, err := parsePort(v)
	if err != nil {
		return r, fmt.Errorf("$%s: %w", PortEnvVar, err)
	}
	r.Port, r.FromEnv = p, true
	return r, nil
}

// ResolvedBind is a BindSpec with its port decided.
type ResolvedBind struct {
	Host    string
	Port    int
	Policy  Policy
	FromEnv bool
}

// Address returns the host:port string passed to net.Listen.
func (r ResolvedBind) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
