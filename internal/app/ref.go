// SPDX-License-Identifier: MPL-2.0

package app

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCallable is used when a reference names only a module.
const DefaultCallable = "application"

// ErrInvalidRef is returned for malformed references.
var ErrInvalidRef = errors.New("invalid application reference")

var (
	modulePattern   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*(\.py)?$`)
	callablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\(\))?$`)
)

// Ref is a parsed "module:callable" reference. A module ending in ".py"
// names an entry file that must exist in the working directory.
type Ref struct {
	Module   string
	Callable string
}

// ParseRef parses "module[:callable]".
func ParseRef(s string) (Ref, error) {
	module, callable, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || callable == "" {
		callable = DefaultCallable
	}
	if !modulePattern.MatchString(module) {
		return Ref{}, fmt.Errorf("%w %q: bad module name %q", ErrInvalidRef, s, module)
	}
	if !callablePattern.MatchString(callable) {
		return Ref{}, fmt.Errorf("%w %q: bad callable %q", ErrInvalidRef, s, callable)
	}
	return Ref{Module: module, Callable: callable}, nil
}

// EntryFile is the file named by the module, or "" when the module is a
// plain dotted name.
func (r Ref) EntryFile() string {
	if strings.HasSuffix(r.Module, ".py") {
		return r.Module
	}
	return ""
}

// Key is the registry key: the module without a ".py" suffix and the
// callable without call parentheses.
func (r Ref) Key() string {
	return strings.TrimSuffix(r.Module, ".py") + ":" + strings.TrimSuffix(r.Callable, "()")
}

func (r Ref) String() string {
	return r.Module + ":" + r.Callable
}
