// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/berth-run/berth/internal/launch"
	"github.com/berth-run/berth/internal/server"

	"github.com/spf13/cobra"
)

type serveFlags struct {
	bind            launch.BindSpec
	workers         int
	threads         int
	timeout         launch.Deadline
	gracefulTimeout launch.Deadline
	logLevel        launch.LogLevel
	strictPorts     bool
	expose          int
	envFiles        []string
	statsdAddr      string
	dir             string
	project         string
}

// newServeCommand creates `berth serve`.
func newServeCommand(app *App) *cobra.Command {
	var flags serveFlags
	defaults := launch.Default()

	cmd := &cobra.Command{
		Use:   "serve [app]",
		Short: "Serve an application on a bounded pool of handlers",
		Long: `Serve an application on a bounded pool of handlers.

The application is loaded before any socket is opened; if it cannot be
loaded berth exits with code 3. The listening socket is bound exactly once
and a bind failure exits with code 2 without retrying. Requests run on
workers × threads handlers (default 1 × 8); a timeout of 0 disables the
per-request watchdog. A handler panic answers 500 and the server keeps
serving. SIGTERM or SIGINT stop accepting, drain in-flight requests and
exit 0.

app is module:callable, e.g. app:application or status:app.`,
		Example: `  berth serve status:app --bind 127.0.0.1:8000 --expose 8000
  PORT=8080 berth serve app:app --expose 8080`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serveConfig(app, cmd.Flags().Changed, flags, args)
			if err != nil {
				return app.renderFailure(err)
			}
			return runServe(cmd.Context(), app, cfg, flags)
		},
	}

	f := cmd.Flags()
	flags.bind = defaults.Bind
	flags.timeout = defaults.Timeout
	flags.gracefulTimeout = defaults.GracefulTimeout
	f.Var(&flags.bind, "bind", "listen address, host:port or host:$PORT")
	f.IntVar(&flags.workers, "workers", defaults.Workers, "number of workers")
	f.IntVar(&flags.threads, "threads", defaults.Threads, "handler threads per worker")
	f.Var(&flags.timeout, "timeout", "per-request watchdog in seconds or as a duration; 0 disables it")
	f.Var(&flags.gracefulTimeout, "graceful-timeout", "bound on draining after a termination signal; 0 waits indefinitely")
	f.Var(&flags.logLevel, "log-level", "debug, info, warning, error or critical")
	f.BoolVar(&flags.strictPorts, "strict-ports", defaults.StrictPorts, "refuse to start when the bind port differs from the exposed port")
	f.IntVar(&flags.expose, "expose", defaults.Expose, "port the image declares")
	f.StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv file merged under the process environment (repeatable)")
	f.StringVar(&flags.statsdAddr, "statsd-addr", "", "DogStatsD address for request metrics")
	f.StringVar(&flags.dir, "chdir", ".", "directory applications are loaded from")
	f.StringVar(&flags.project, "project", "", "take launch settings from this project's berth.cue")
	return cmd
}

// serveConfig layers the launch configuration: defaults, then the project
// recipe, then configuration file settings, then explicit flags.
func serveConfig(app *App, changed func(name string) bool, flags serveFlags, args []string) (launch.Config, error) {
	cfg := launch.Default()
	if flags.project != "" {
		r, err := loadRecipe(flags.project)
		if err != nil {
			return cfg, err
		}
		if cfg, err = r.LaunchConfig(); err != nil {
			return cfg, err
		}
	}

	if cfg.LogLevel == "" && app.Settings().Serve.LogLevel != "" {
		lvl, err := launch.ParseLogLevel(app.Settings().Serve.LogLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = lvl
	}

	if len(args) > 0 {
		cfg.App = args[0]
	}
	if changed("bind") {
		cfg.Bind = flags.bind
	}
	if changed("workers") {
		cfg.Workers = flags.workers
	}
	if changed("threads") {
		cfg.Threads = flags.threads
	}
	if changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if changed("graceful-timeout") {
		cfg.GracefulTimeout = flags.gracefulTimeout
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("strict-ports") {
		cfg.StrictPorts = flags.strictPorts
	}
	if changed("expose") {
		cfg.Expose = flags.expose
	}
	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, app *App, cfg launch.Config, flags serveFlags) error {
	settings := app.Settings()
	envFiles := flags.envFiles
	if len(envFiles) == 0 && settings.Serve.EnvFile != "" {
		envFiles = []string{settings.Serve.EnvFile}
	}
	env, err := launch.FromEnvironment(envFiles...)
	if err != nil {
		return app.renderFailure(err)
	}

	logger := app.logger("serve", cfg.LogLevel.CharmLevel())

	rt, err := cfg.Resolve(env)
	var mismatch *launch.PortMismatchError
	switch {
	case errors.As(err, &mismatch) && !cfg.StrictPorts:
		logger.Warn("port mismatch", "reason", mismatch.Reason, "bind", cfg.Bind, "exposed", cfg.Expose)
	case err != nil:
		return app.renderFailure(err)
	}

	statsdAddr := flags.statsdAddr
	if statsdAddr == "" {
		statsdAddr = settings.Serve.StatsdAddr
	}
	client, err := server.NewStatsd(statsdAddr, "app:"+cfg.App)
	if err != nil {
		return app.renderFailure(fmt.Errorf("statsd: %w", err))
	}
	defer func() { _ = client.Close() }()

	sup := server.New(rt,
		server.WithLogger(logger),
		server.WithDir(flags.dir),
		server.WithStatsd(client),
	)
	if err := sup.Run(ctx); err != nil {
		return app.renderFailure(err)
	}
	return nil
}
