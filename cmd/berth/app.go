// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/berth-run/berth/internal/config"
	"github.com/berth-run/berth/internal/container"
	"github.com/berth-run/berth/internal/issue"

	"github.com/charmbracelet/log"
)

type (
	// App is the composition root of the CLI. Command handlers receive it and
	// reach configuration, engines and output streams through it.
	App struct {
		Config  ConfigProvider
		Engines EngineFactory
		stdout  io.Writer
		stderr  io.Writer

		// Populated by the root command before any subcommand runs.
		settings   *config.Config
		configPath string
		verbose    bool
	}

	// Dependencies are the injection points of NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config  ConfigProvider
		Engines EngineFactory
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// ConfigProvider loads user configuration.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory returns a container engine. An empty preference means
	// auto-detect.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)
)

// NewApp builds an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	a := &App{
		Config:  deps.Config,
		Engines: deps.Engines,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
	}
	if a.Config == nil {
		a.Config = config.NewProvider()
	}
	if a.Engines == nil {
		a.Engines = container.NewEngine
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	return a
}

// loadSettings loads configuration once per invocation. A broken config file
// is reported as a warning and defaults are used instead.
func (a *App) loadSettings(ctx context.Context, path string) {
	a.configPath = path
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: path})
	if err != nil {
		fmt.Fprintln(a.stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, a.verbose))
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a.settings = cfg
	if cfg.UI.Verbose {
		a.verbose = true
	}
}

// Settings returns the loaded configuration, defaults before loading.
func (a *App) Settings() *config.Config {
	if a.settings == nil {
		return config.DefaultConfig()
	}
	return a.settings
}

// logger returns a stderr logger for one subsystem.
func (a *App) logger(prefix string, level log.Level) *log.Logger {
	if a.verbose && level > log.DebugLevel {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportTimestamp: true,
	})
}

// engine resolves the container engine from the flag, then configuration.
func (a *App) engine(flag string) (container.Engine, error) {
	choice := config.ContainerEngine(flag)
	if choice == "" {
		choice = a.Settings().ContainerEngine
	}
	if err := choice.Validate(); err != nil {
		return nil, err
	}

	eng, err := a.Engines(choice.EngineType())
	if err != nil {
		if errors.Is(err, container.ErrEngineNotAvailable) {
			return nil, issue.NewErrorContext().
				WithOperation("select container engine").
				WithResource(string(choice)).
				WithSuggestion("Install docker or podman, or pass --engine").
				WithIssue(issue.ContainerEngineNotFoundId).
				Wrap(err).
				BuildError()
		}
		return nil, err
	}
	return eng, nil
}
