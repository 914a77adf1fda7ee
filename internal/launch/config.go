// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultProgram is the launcher installed in the image by the manifest.
	DefaultProgram = "gunicorn"
	// DefaultApp is the module:callable reference of the application.
	DefaultApp = "app:app"
	// DefaultWorkers is the worker count of every observed deployment.
	DefaultWorkers = 1
	// DefaultThreads is the per-worker thread pool size.
	DefaultThreads = 8
	// DefaultExpose is the port the image declares.
	DefaultExpose = 8000
)

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid launch configuration")

type (
	// Config is the launcher's runtime configuration. It is built once and
	// passed by pointer; resolution against the environment happens in
	// Resolve, never later.
	Config struct {
		// Program is the launcher executable rendered into the image CMD. It may
		// hold several words, e.g. "berth serve".
		Program string
		// App is the module:callable entry reference.
		App     string
		Bind    BindSpec
		Workers int
		Threads int
		// Timeout is the per-request watchdog.
		Timeout Deadline
		// LogLevel is omitted from the command line when empty.
		LogLevel LogLevel
		// GracefulTimeout bounds draining after a termination signal.
		GracefulTimeout Deadline
		// Expose is the port the image declares.
		Expose int
		// StrictPorts makes a port mismatch fatal instead of a warning.
		StrictPorts bool
	}

	// Runtime is a Config resolved against one environment snapshot.
	Runtime struct {
		Config
		Listen ResolvedBind
	}
)

// Default returns the configuration shared by every observed deployment:
// one worker with eight threads, watchdog disabled, binding $PORT.
func Default() Config {
	return Config{
		Program:         DefaultProgram,
		App:             DefaultApp,
		Bind:            BindSpec{Host: "0.0.0.0", Policy: PolicyEnv},
		Workers:         DefaultWorkers,
		Threads:         DefaultThreads,
		Timeout:         NoDeadline,
		GracefulTimeout: NoDeadline,
		Expose:          DefaultExpose,
		StrictPorts:     true,
	}
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.App) == "" {
		errs = append(errs, errors.New("app reference is required"))
	}
	if err := c.Bind.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", c.Threads))
	}
	if c.Timeout < 0 || c.GracefulTimeout < 0 {
		errs = append(errs, ErrInvalidDeadline)
	}
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Expose < 1 || c.Expose > 65535 {
		errs = append(errs, fmt.Errorf("%w %d: expose must be 1-65535", ErrInvalidPort, c.Expose))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Args renders the launcher flags followed by the app reference:
//
//	--bind 0.0.0.0:$PORT --workers 1 --threads 8 --timeout 0 [--log-level debug] app:app
//
// The timeout is always present so a disabled watchdog stays visible.
func (c *Config) Args() []string {
	args := []string{
		"--bind", c.Bind.String(),
		"--workers", strconv.Itoa(c.Workers),
		"--threads", strconv.Itoa(c.Threads),
		"--timeout", strconv.Itoa(c.Timeout.Seconds()),
	}
	if c.LogLevel != "" {
		args = append(args, "--log-level", string(c.LogLevel))
	}
	return append(args, c.App)
}

// Command is Program split into words followed by Args.
func (c *Config) Command() []string {
	program := strings.Fields(c.Program)
	if len(program) == 0 {
		program = []string{DefaultProgram}
	}
	return append(program, c.Args()...)
}

// Resolve validates c and fixes the listen address against env. The port
// check runs here too: a mismatch is returned as *PortMismatchError alongside
// a usable Runtime, and callers decide via StrictPorts whether it is fatal.
func (c *Config) Resolve(env Env) (*Runtime, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	listen, err := CheckPorts(c.Expose, c.Bind, env)
	if err != nil {
		var mismatch *PortMismatchError
		if !errors.As(err, &mismatch) {
			return nil, err
		}
		return &Runtime{Config: *c, Listen: listen}, err
	}
	return &Runtime{Config: *c, Listen: listen}, nil
}
