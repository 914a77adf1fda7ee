// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/berth-run/berth/internal/container"
	"github.com/berth-run/berth/internal/imagebuild"
	"github.com/berth-run/berth/internal/recipe"
	"github.com/berth-run/berth/internal/watch"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type buildFlags struct {
	noCache bool
	pull    bool
	force   bool
	tags    []string
	engine  string
	watch   bool
	dryRun  bool
}

// newBuildCommand creates `berth build`.
func newBuildCommand(app *App) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Build and tag the application image",
		Long: `Build and tag the application image described by dir/berth.cue.

The image is built under a staging tag and only receives its final tag
(<image>:<plan key>) and any extra tags once every step succeeded. When a
dependency cannot be resolved the resolver's output is shown unchanged and
no tag is produced.

Exit codes: 4 dependency resolution failed, 5 any other build failure.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := app.Settings()
			if !cmd.Flags().Changed("pull") {
				flags.pull = settings.Build.Pull
			}
			if !cmd.Flags().Changed("no-cache") {
				flags.noCache = settings.Build.NoCache
			}
			return runBuild(cmd.Context(), app, dirArg(args), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "build every layer from scratch")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "always pull a newer base image")
	cmd.Flags().BoolVar(&flags.force, "force", false, "build even when the final tag already exists")
	cmd.Flags().StringSliceVarP(&flags.tags, "tag", "t", nil, "extra tag for the final image (repeatable)")
	cmd.Flags().StringVar(&flags.engine, "engine", "", "container engine (auto, docker, podman)")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "rebuild whenever the source tree changes")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the Dockerfile without building")
	return cmd
}

func runBuild(ctx context.Context, app *App, dir string, flags buildFlags) error {
	if flags.dryRun {
		plan, err := loadPlan(dir)
		if err != nil {
			return app.renderFailure(err)
		}
		fmt.Fprint(app.stdout, plan.Dockerfile())
		return nil
	}

	r, err := loadRecipe(dir)
	if err != nil {
		return app.renderFailure(err)
	}
	eng, err := app.engine(flags.engine)
	if err != nil {
		return app.renderFailure(err)
	}
	builder := app.newBuilder(eng)

	opts := imagebuild.BuildOptions{
		NoCache:   flags.noCache,
		Force:     flags.force,
		Pull:      flags.pull,
		ExtraTags: flags.tags,
	}
	if flags.watch {
		return runBuildWatch(ctx, app, builder, r, opts)
	}

	res, err := builder.Build(ctx, r, opts)
	if err != nil {
		return app.renderFailure(err)
	}
	app.printBuildResult(res)
	return nil
}

func runBuildWatch(ctx context.Context, app *App, builder *imagebuild.Builder, r *recipe.Recipe, opts imagebuild.BuildOptions) error {
	debounce, err := app.Settings().Build.Debounce()
	if err != nil {
		return app.renderFailure(err)
	}

	fmt.Fprintln(app.stderr, SubtitleStyle.Render("Watching "+r.SourceDir()+" (Ctrl+C to stop)"))
	fmt.Fprintf(app.stderr, "%s %s\n", labelStyle.Render("ignoring"), strings.Join(watchIgnores(r), " "))
	return builder.Watch(ctx, r, imagebuild.WatchOptions{
		BuildOptions: opts,
		Debounce:     debounce,
		OnResult: func(res *imagebuild.Result, err error) {
			if err != nil {
				_ = app.renderFailure(err)
				return
			}
			app.printBuildResult(res)
		},
	})
}

// watchIgnores lists the patterns that never trigger a rebuild.
func watchIgnores(r *recipe.Recipe) []string {
	return append(watch.DefaultIgnores(), r.Ignore...)
}

// newBuilder wires an image builder to eng and the configured work root.
func (a *App) newBuilder(eng container.Engine) *imagebuild.Builder {
	opts := []imagebuild.Option{
		imagebuild.WithLogger(a.logger("build", log.InfoLevel)),
		imagebuild.WithOutput(a.stderr, a.stderr),
	}
	if root := a.Settings().WorkRoot; root != "" {
		opts = append(opts, imagebuild.WithWorkRoot(root))
	}
	return imagebuild.NewBuilder(eng, opts...)
}

func (a *App) printBuildResult(res *imagebuild.Result) {
	verb := "Built"
	if res.Cached {
		verb = "Up to date"
	}
	fmt.Fprintf(a.stdout, "%s %s %s\n", SuccessStyle.Render("✓"), verb, CmdStyle.Render(res.Image))
	for _, t := range res.Tags[1:] {
		fmt.Fprintf(a.stdout, "  %s %s\n", labelStyle.Render("tag"), t)
	}
	if a.verbose {
		fmt.Fprintf(a.stdout, "  %s %s\n", labelStyle.Render("took"), VerboseStyle.Render(res.Duration.String()))
	}
}
