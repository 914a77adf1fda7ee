// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// EngineTypePodman selects the Podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the Docker CLI.
	EngineTypeDocker EngineType = "docker"
)

// ErrEngineNotAvailable is the sentinel wrapped by EngineNotAvailableError.
var ErrEngineNotAvailable = errors.New("container engine not available")

type (
	// Engine is the set of container operations the image builder and the
	// run command need.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available reports whether the engine binary is installed and answering.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// Build builds an image from a Dockerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// Tag adds target as an additional name for source.
		Tag(ctx context.Context, source, target string) error
		// ImageExists reports whether an image is present locally.
		ImageExists(ctx context.Context, image string) (bool, error)
		// RemoveImage removes an image.
		RemoveImage(ctx context.Context, image string, force bool) error
		// Run runs a container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	}

	// EngineType identifies the container engine type.
	EngineType string

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the Dockerfile path, relative to ContextDir unless absolute.
		Dockerfile string
		// Tags are the names given to the built image.
		Tags []string
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// Labels are attached to the image as metadata.
		Labels map[string]string
		// NoCache disables the layer cache.
		NoCache bool
		// Pull always attempts to pull a newer base image.
		Pull bool
		// Stdout receives build progress.
		Stdout io.Writer
		// Stderr receives build diagnostics.
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		Image   string
		Command []string
		WorkDir string
		Env     map[string]string
		// Ports are "host:container[/proto]" mappings.
		Ports  []string
		Remove bool
		Name   string
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
		// Interactive keeps stdin open.
		Interactive bool
		// TTY attaches the engine process to a pseudo-terminal.
		TTY bool
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the container's exit status.
		ExitCode int
		// Error is set for infrastructure failures (binary missing, pty failure).
		Error error
	}

	// EngineNotAvailableError is returned when no usable engine is found.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// String returns the engine type name.
func (t EngineType) String() string { return string(t) }

// NewEngine returns the preferred engine, falling back to the other one when
// the preferred binary is not available. An empty preference auto-detects.
func NewEngine(preferred EngineType) (Engine, error) {
	var primary, fallback Engine
	switch preferred {
	case "":
		return AutoDetectEngine()
	case EngineTypePodman:
		primary, fallback = NewPodmanEngine(), NewDockerEngine()
	case EngineTypeDocker:
		primary, fallback = NewDockerEngine(), NewPodmanEngine()
	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}

	if primary.Available() {
		return primary, nil
	}
	if fallback.Available() {
		return fallback, nil
	}
	return nil, &EngineNotAvailableError{
		Engine: string(preferred),
		Reason: fmt.Sprintf("%s is not installed or not accessible, and %s fallback is also not available",
			primary.Name(), fallback.Name()),
	}
}

// AutoDetectEngine returns the first available engine, trying Docker first.
func AutoDetectEngine() (Engine, error) {
	for _, e := range []Engine{NewDockerEngine(), NewPodmanEngine()} {
		if e.Available() {
			return e, nil
		}
	}
	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
