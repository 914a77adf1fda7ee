// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/berth-run/berth/internal/container"
	"github.com/berth-run/berth/internal/launch"
)

const (
	// ContainerEngineAuto tries docker first, then podman.
	ContainerEngineAuto ContainerEngine = "auto"
	// ContainerEngineDocker forces docker.
	ContainerEngineDocker ContainerEngine = ContainerEngine(container.EngineTypeDocker)
	// ContainerEnginePodman forces podman.
	ContainerEnginePodman ContainerEngine = ContainerEngine(container.EngineTypePodman)

	ColorSchemeAuto  ColorScheme = "auto"
	ColorSchemeDark  ColorScheme = "dark"
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidContainerEngine is wrapped by InvalidContainerEngineError.
	ErrInvalidContainerEngine = errors.New("invalid container engine")
	// ErrInvalidColorScheme is wrapped by InvalidColorSchemeError.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ContainerEngine selects the engine used for builds.
	ContainerEngine string

	// InvalidContainerEngineError is returned for unknown engine names.
	InvalidContainerEngineError struct {
		Value ContainerEngine
	}

	// ColorScheme selects terminal colours.
	ColorScheme string

	// InvalidColorSchemeError is returned for unknown colour schemes.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidConfigError collects every field error of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config is berth's user configuration.
	Config struct {
		ContainerEngine ContainerEngine `json:"container_engine" mapstructure:"container_engine"`
		// WorkRoot overrides the parent directory of build contexts.
		WorkRoot string      `json:"work_root" mapstructure:"work_root"`
		Build    BuildConfig `json:"build" mapstructure:"build"`
		Serve    ServeConfig `json:"serve" mapstructure:"serve"`
		UI       UIConfig    `json:"ui" mapstructure:"ui"`
	}

	// BuildConfig holds defaults for `berth build`.
	BuildConfig struct {
		Pull          bool   `json:"pull" mapstructure:"pull"`
		NoCache       bool   `json:"no_cache" mapstructure:"no_cache"`
		WatchDebounce string `json:"watch_debounce" mapstructure:"watch_debounce"`
	}

	// ServeConfig holds defaults for `berth serve`.
	ServeConfig struct {
		LogLevel   string `json:"log_level" mapstructure:"log_level"`
		StatsdAddr string `json:"statsd_addr" mapstructure:"statsd_addr"`
		EnvFile    string `json:"env_file" mapstructure:"env_file"`
	}

	// UIConfig holds terminal output settings.
	UIConfig struct {
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
	}
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: ContainerEngineAuto,
		Build:           BuildConfig{WatchDebounce: "500ms"},
		Serve:           ServeConfig{LogLevel: string(launch.LogLevelInfo)},
		UI:              UIConfig{ColorScheme: ColorSchemeAuto},
	}
}

// Validate returns an *InvalidConfigError listing every bad field.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Build.Debounce(); err != nil {
		errs = append(errs, err)
	}
	if c.Serve.LogLevel != "" {
		if _, err := launch.ParseLogLevel(c.Serve.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("serve.log_level: %w", err))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Debounce parses WatchDebounce. Empty means zero, the watcher default.
func (b BuildConfig) Debounce() (time.Duration, error) {
	if b.WatchDebounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.WatchDebounce)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("build.watch_debounce %q: must be a duration such as 500ms", b.WatchDebounce)
	}
	return d, nil
}

// Validate checks the engine name.
func (e ContainerEngine) Validate() error {
	if slices.Contains([]ContainerEngine{ContainerEngineAuto, ContainerEngineDocker, ContainerEnginePodman}, e) {
		return nil
	}
	return &InvalidContainerEngineError{Value: e}
}

// EngineType maps the setting to a container engine; auto maps to "".
func (e ContainerEngine) EngineType() container.EngineType {
	if e == ContainerEngineAuto {
		return ""
	}
	return container.EngineType(e)
}

// Validate checks the colour scheme.
func (s ColorScheme) Validate() error {
	switch s {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	}
	return &InvalidColorSchemeError{Value: s}
}

func (e *InvalidContainerEngineError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: auto, docker, podman)", e.Value)
}

func (e *InvalidContainerEngineError) Unwrap() error { return ErrInvalidContainerEngine }

func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig followed by the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}
