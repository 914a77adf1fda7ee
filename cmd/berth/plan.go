// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/berth-run/berth/internal/imagebuild"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

// newPlanCommand creates `berth plan`.
func newPlanCommand(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "plan [dir]",
		Short: "Show the build steps, layer cache keys and Dockerfile",
		Long: `Show the build steps, layer cache keys and Dockerfile for a project.

Nothing is built. Comparing the keys of two runs shows which layers an edit
invalidates: a source-only change keeps every key up to the source copy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlan(dirArg(args))
			if err != nil {
				return app.renderFailure(err)
			}

			md := planMarkdown(plan)
			if raw {
				fmt.Fprint(app.stdout, md)
				return nil
			}
			out, err := glamour.Render(md, app.glamourStyle())
			if err != nil {
				fmt.Fprint(app.stdout, md)
				return nil //nolint:nilerr // fall back to plain markdown
			}
			fmt.Fprint(app.stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without terminal rendering")
	return cmd
}

// planMarkdown renders a plan as a markdown report.
func planMarkdown(p *imagebuild.Plan) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", p.ImageRef())
	fmt.Fprintf(&sb, "Base `%s`, %d files in the build context.\n\n", p.Recipe.BaseImage, len(p.Files()))

	sb.WriteString("| # | Step | Layer key |\n|---|------|-----------|\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&sb, "| %d | %s | `%s` |\n", s.Index, s.Kind, shortKey(s.Key))
	}

	fmt.Fprintf(&sb, "\n## Dependencies\n\n`%s`, %d requirements.\n", p.Manifest.Filename(), p.Manifest.Len())
	if opts := p.Manifest.Options(); len(opts) > 0 {
		sb.WriteString("\npip options:\n\n")
		for _, o := range opts {
			fmt.Fprintf(&sb, "- `%s`\n", o)
		}
	}

	if len(p.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range p.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	fmt.Fprintf(&sb, "\n## Launch\n\n```sh\n%s\n```\n", strings.Join(p.Launch.Command(), " "))
	fmt.Fprintf(&sb, "\n## Dockerfile\n\n```dockerfile\n%s```\n", p.Dockerfile())
	return sb.String()
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
