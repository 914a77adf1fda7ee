// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/berth-run/berth/internal/launch"

	"github.com/spf13/cobra"
)

type portCheck struct {
	name   string
	cfg    launch.Config
	listen launch.ResolvedBind
	err    error
}

// newPortsCommand creates `berth ports`.
func newPortsCommand(app *App) *cobra.Command {
	var (
		variants bool
		envFiles []string
	)

	cmd := &cobra.Command{
		Use:   "ports [dir]",
		Short: "Check that the launcher binds the port the image exposes",
		Long: `Check that the launcher binds the port the image exposes.

The bind address is resolved against the current environment (plus any
--env-file) the way the launcher resolves it at startup. A fixed bind is
also reported when $PORT is set to a different port, since the platform
routes traffic to $PORT.

With --variants the built-in launch configurations are checked instead of
the project recipe. Exits 6 when any check fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := launch.FromEnvironment(envFiles...)
			if err != nil {
				return app.renderFailure(err)
			}

			var checks []portCheck
			if variants {
				for _, v := range launch.Variants() {
					checks = append(checks, portCheck{name: v.Name, cfg: v.Config})
				}
			} else {
				r, err := loadRecipe(dirArg(args))
				if err != nil {
					return app.renderFailure(err)
				}
				cfg, err := r.LaunchConfig()
				if err != nil {
					return app.renderFailure(err)
				}
				checks = append(checks, portCheck{name: r.Image, cfg: cfg})
			}
			return reportPorts(app, checks, env)
		},
	}
	cmd.Flags().BoolVar(&variants, "variants", false, "check the built-in launch configurations")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "dotenv file merged under the process environment (repeatable)")
	return cmd
}

func reportPorts(app *App, checks []portCheck, env launch.Env) error {
	var failed error
	for i := range checks {
		c := &checks[i]
		c.listen, c.err = launch.CheckPorts(c.cfg.Expose, c.cfg.Bind, env)

		mark := SuccessStyle.Render("✓")
		detail := fmt.Sprintf("binds %s, exposes %d", c.listen.Address(), c.cfg.Expose)
		if c.err != nil {
			mark = ErrorStyle.Render("✗")
			detail = c.err.Error()
			// A mismatch decides the exit code over other failures.
			if failed == nil || !errors.Is(failed, launch.ErrPortMismatch) {
				failed = c.err
			}
		}
		fmt.Fprintf(app.stdout, "%s %s %s  %s\n", mark, labelStyle.Render(c.name), CmdStyle.Render(c.cfg.Bind.String()), detail)
	}

	if failed == nil {
		return nil
	}
	return app.renderFailure(failed)
}
