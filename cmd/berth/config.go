// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/berth-run/berth/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `berth config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage berth configuration",
		Long: `Manage berth configuration.

Configuration is stored in:
  - Linux: $XDG_CONFIG_HOME/berth/config.cue (default ~/.config/berth)
  - macOS: ~/Library/Application Support/berth/config.cue
  - Windows: %APPDATA%\berth\config.cue

Every setting can be overridden with a BERTH_* environment variable, e.g.
BERTH_CONTAINER_ENGINE=podman or BERTH_SERVE_LOG_LEVEL=debug.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configFilePath(app)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.configPath})
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, err := app.Config.Load(ctx, config.LoadOptions{ConfigFilePath: app.configPath})
	if err != nil {
		return app.renderFailure(err)
	}

	key := CmdStyle.Render
	value := SuccessStyle.Render

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)

	source := SubtitleStyle.Render("(using defaults)")
	if path, err := configFilePath(app); err == nil && fileExists(path) {
		source = path
	}
	fmt.Fprintf(app.stdout, "%s: %s\n\n", key("Config file"), source)

	fmt.Fprintf(app.stdout, "%s: %s\n", key("container_engine"), value(string(cfg.ContainerEngine)))
	if cfg.WorkRoot != "" {
		fmt.Fprintf(app.stdout, "%s: %s\n", key("work_root"), value(cfg.WorkRoot))
	}

	fmt.Fprintf(app.stdout, "\n%s:\n", key("build"))
	fmt.Fprintf(app.stdout, "  pull: %s\n", value(fmt.Sprint(cfg.Build.Pull)))
	fmt.Fprintf(app.stdout, "  no_cache: %s\n", value(fmt.Sprint(cfg.Build.NoCache)))
	fmt.Fprintf(app.stdout, "  watch_debounce: %s\n", value(cfg.Build.WatchDebounce))

	fmt.Fprintf(app.stdout, "\n%s:\n", key("serve"))
	fmt.Fprintf(app.stdout, "  log_level: %s\n", value(cfg.Serve.LogLevel))
	fmt.Fprintf(app.stdout, "  statsd_addr: %s\n", orNone(cfg.Serve.StatsdAddr))
	fmt.Fprintf(app.stdout, "  env_file: %s\n", orNone(cfg.Serve.EnvFile))

	fmt.Fprintf(app.stdout, "\n%s:\n", key("ui"))
	fmt.Fprintf(app.stdout, "  color_scheme: %s\n", value(string(cfg.UI.ColorScheme)))
	fmt.Fprintf(app.stdout, "  verbose: %s\n", value(fmt.Sprint(cfg.UI.Verbose)))
	return nil
}

func initConfig(app *App) error {
	dir := ""
	if app.configPath != "" {
		dir = filepath.Dir(app.configPath)
	}
	path, created, err := config.CreateDefaultConfig(dir)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !created {
		fmt.Fprintf(app.stdout, "%s Configuration already exists at %s\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

// configFilePath is the --config file, or the default file location.
func configFilePath(app *App) (string, error) {
	if app.configPath != "" {
		return app.configPath, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt), nil
}

func orNone(s string) string {
	if s == "" {
		return SubtitleStyle.Render("(none)")
	}
	return SuccessStyle.Render(s)
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
