// SPDX-License-Identifier: MPL-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrAppNotFound is wrapped by LoadError when no factory matches a reference.
var ErrAppNotFound = errors.New("application not found")

type (
	// Application handles one request and writes one response.
	Application = http.Handler

	// Options are passed to factories.
	Options struct {
		// Dir is the working directory the application is loaded from.
		Dir    string
		Logger *log.Logger
	}

	// Factory builds an application. It runs once per launcher, before bind.
	Factory func(ctx context.Context, opts Options) (Application, error)

	// Registry maps reference keys to factories. It is safe for concurrent use.
	Registry struct {
		mu        sync.RWMutex
		factories map[string]Factory
	}

	// LoadError reports a reference that could not be turned into an application.
	LoadError struct {
		Ref   string
		Cause error
	}
)

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load application %q: %v", e.Ref, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f under ref. Registering a key twice is an error.
func (r *Registry) Register(ref string, f Factory) error {
	parsed, err := ParseRef(ref)
	if err != nil {
		return err
	}
	key := parsed.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("application %q already registered", key)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register that panics, for package initialisation.
func (r *Registry) MustRegister(ref string, f Factory) {
	if err := r.Register(ref, f); err != nil {
		panic(err)
	}
}

// Refs returns the registered keys in order.
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Load resolves ref and builds the application. Every failure is a
// *LoadError; unknown references also match ErrAppNotFound.
func (r *Registry) Load(ctx context.Context, ref string, opts Options) (Application, error) {
	parsed, err := ParseRef(ref)
	if err != nil {
		return nil, &LoadError{Ref: ref, Cause: err}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	if entry := parsed.EntryFile(); entry != "" {
		path := filepath.Join(opts.Dir, entry)
		if _, err := os.Stat(path); err != nil {
			return nil, &LoadError{Ref: ref, Cause: fmt.Errorf("entry file %s: %w", path, err)}
		}
	}

	r.mu.RLock()
	f, ok := r.factories[parsed.Key()]
	r.mu.RUnlock()
	if !ok {
		return nil, &LoadError{
			Ref:   ref,
			Cause: fmt.Errorf("%w (available: %s)", ErrAppNotFound, strings.Join(r.Refs(), ", ")),
		}
	}

	a, err := f(ctx, opts)
	if err != nil {
		return nil, &LoadError{Ref: ref, Cause: err}
	}
	if a == nil {
		return nil, &LoadError{Ref: ref, Cause: errors.New("factory returned no application")}
	}
	return a, nil
}

var defaultRegistry = newBuiltinRegistry()

// Default returns the process-wide registry holding the built-in applications.
func Default() *Registry {
	return defaultRegistry
}

// Load resolves ref against the default registry.
func Load(ctx context.Context, ref string, opts Options) (Application, error) {
	return defaultRegistry.Load(ctx, ref, opts)
}
