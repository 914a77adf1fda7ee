// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/berth-run/berth/internal/config"
	"github.com/berth-run/berth/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand assembles the berth command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "berth",
		Short: "Build container images for Python web apps and serve them",
		Long: TitleStyle.Render("berth") + SubtitleStyle.Render(" - build an image, then serve the app inside it") + `

berth turns a project directory (a dependency manifest plus source tree)
into a tagged container image, and launches the application inside it on
a bounded pool of request handlers.

` + SubtitleStyle.Render("Examples:") + `
  berth init                  Create a berth.cue recipe
  berth plan                  Show build steps and cache keys
  berth build                 Build and tag the image
  berth build --watch         Rebuild whenever the source changes
  berth serve status:app      Serve an application on $PORT
  berth ports                 Check bind and exposed ports agree`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			app.loadSettings(cmd.Context(), cfgFile)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/berth/config.cue)")

	rootCmd.AddCommand(
		newInitCommand(app),
		newPlanCommand(app),
		newBuildCommand(app),
		newRunCommand(app),
		newServeCommand(app),
		newPortsCommand(app),
		newConfigCommand(app),
	)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code the failure maps to. It is
// called by main.main.
func Execute() {
	app := NewApp(Dependencies{})
	err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
		fang.WithErrorHandler(handleError),
	)
	if err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// handleError prints errors fang surfaces. ExitErrors without a cause were
// rendered by the command already.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// use their own layout; verbose mode shows the full chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderFailure prints err with its catalog entry and returns the ExitError
// the command should return.
func (a *App) renderFailure(err error) error {
	fmt.Fprintf(a.stderr, "\n%s %s\n", ErrorStyle.Render("Error:"), formatErrorForDisplay(err, a.verbose))

	if id := issueFor(err); id != 0 {
		if entry := issue.Get(id); entry != nil {
			if md, renderErr := entry.Render(a.glamourStyle()); renderErr == nil {
				fmt.Fprint(a.stderr, md)
			}
		}
	}
	return &ExitError{Code: max(exitCodeFor(err), ExitFailure)}
}

// glamourStyle maps the configured colour scheme to a glamour style name.
func (a *App) glamourStyle() string {
	switch a.Settings().UI.ColorScheme {
	case config.ColorSchemeDark:
		return "dark"
	case config.ColorSchemeLight:
		return "light"
	default:
		return "auto"
	}
}
