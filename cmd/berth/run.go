// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/berth-run/berth/internal/container"
	"github.com/berth-run/berth/internal/imagebuild"
	"github.com/berth-run/berth/internal/launch"

	"github.com/spf13/cobra"
)

type runFlags struct {
	engine   string
	tty      bool
	hostPort int
	env      []string
}

// newRunCommand creates `berth run`.
func newRunCommand(app *App) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Build the image if needed and run it",
		Long: `Build the image if needed and run it, publishing the exposed port.

The container receives PORT set to the exposed port and is published as
<host port>:<exposed port>. The container's exit code becomes berth's.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(cmd.Context(), app, dirArg(args), flags)
		},
	}
	cmd.Flags().StringVar(&flags.engine, "engine", "", "container engine (auto, docker, podman)")
	cmd.Flags().BoolVar(&flags.tty, "tty", false, "attach the container to a pseudo-terminal")
	cmd.Flags().IntVarP(&flags.hostPort, "port", "p", 0, "host port to publish on (default: the exposed port)")
	cmd.Flags().StringArrayVarP(&flags.env, "env", "e", nil, "KEY=VALUE passed to the container (repeatable)")
	return cmd
}

func runImage(ctx context.Context, app *App, dir string, flags runFlags) error {
	r, err := loadRecipe(dir)
	if err != nil {
		return app.renderFailure(err)
	}
	eng, err := app.engine(flags.engine)
	if err != nil {
		return app.renderFailure(err)
	}

	res, err := app.newBuilder(eng).Build(ctx, r, imagebuild.BuildOptions{})
	if err != nil {
		return app.renderFailure(err)
	}

	opts, err := runOptions(res, flags)
	if err != nil {
		return app.renderFailure(err)
	}
	fmt.Fprintf(app.stderr, "%s %s on %s\n", SubtitleStyle.Render("Running"), CmdStyle.Render(res.Image), opts.Ports[0])

	opts.Stdin = os.Stdin
	opts.Stdout = app.stdout
	opts.Stderr = app.stderr
	result, err := eng.Run(ctx, opts)
	if err != nil {
		return app.renderFailure(err)
	}
	if result.Error != nil {
		return app.renderFailure(result.Error)
	}
	if result.ExitCode != 0 {
		return &ExitError{Code: result.ExitCode}
	}
	return nil
}

// runOptions publishes the exposed port and passes PORT so a $PORT bind
// inside the image listens where traffic arrives.
func runOptions(res *imagebuild.Result, flags runFlags) (container.RunOptions, error) {
	exposed := res.Plan.Launch.Expose
	hostPort := flags.hostPort
	if hostPort == 0 {
		hostPort = exposed
	}
	mapping, err := container.ParsePortMapping(strconv.Itoa(hostPort) + ":" + strconv.Itoa(exposed))
	if err != nil {
		return container.RunOptions{}, err
	}

	env := map[string]string{launch.PortEnvVar: strconv.Itoa(exposed)}
	for _, kv := range flags.env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return container.RunOptions{}, fmt.Errorf("invalid --env %q: want KEY=VALUE", kv)
		}
		env[k] = v
	}

	return container.RunOptions{
		Image:       res.Image,
		Env:         env,
		Ports:       []string{mapping.String()},
		Remove:      true,
		Interactive: flags.tty,
		TTY:         flags.tty,
	}, nil
}
