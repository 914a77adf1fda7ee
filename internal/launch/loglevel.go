// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	LogLevelDebug    LogLevel = "debug"
	LogLevelInfo     LogLevel = "info"
	LogLevelWarning  LogLevel = "warning"
	LogLevelError    LogLevel = "error"
	LogLevelCritical LogLevel = "critical"
)

// ErrInvalidLogLevel is returned for unknown level names.
var ErrInvalidLogLevel = errors.New("invalid log level")

// LogLevel is the launcher verbosity. The empty value means "not set", in
// which case --log-level is omitted from the rendered command.
type LogLevel string

// ParseLogLevel accepts the five launcher levels, case-insensitively, and
// "warn" as an alias.
func ParseLogLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if l == "warn" {
		l = LogLevelWarning
	}
	if err := l.Validate(); err != nil {
		return "", err
	}
	return l, nil
}

// Validate accepts the empty level.
func (l LogLevel) Validate() error {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelCritical:
		return nil
	}
	return fmt.Errorf("%w %q (valid: debug, info, warning, error, critical)", ErrInvalidLogLevel, string(l))
}

// CharmLevel maps to the logger level. Unset means info.
func (l LogLevel) CharmLevel() log.Level {
	switch l {
	case LogLevelDebug:
		return log.DebugLevel
	case LogLevelWarning:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	case LogLevelCritical:
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// String implements pflag.Value.
func (l LogLevel) String() string { return string(l) }

// Set implements pflag.Value.
func (l *LogLevel) Set(s string) error {
	parsed, err := ParseLogLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Type implements pflag.Value.
func (l *LogLevel) Type() string { return "level" }
