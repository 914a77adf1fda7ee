// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/berth-run/berth/internal/recipe"

	"github.com/spf13/cobra"
)

const (
	templateMinimal = "minimal"
	templateFull    = "full"
)

// newInitCommand creates `berth init`.
func newInitCommand(app *App) *cobra.Command {
	var (
		force    bool
		template string
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a berth.cue recipe",
		Long: `Create a berth.cue recipe in the given directory (default: current).

The minimal template relies on the schema defaults; the full template spells
out every field with its default value.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(app, dir, template, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing berth.cue")
	cmd.Flags().StringVarP(&template, "template", "t", templateMinimal, "template to use (minimal, full)")
	return cmd
}

func runInit(app *App, dir, template string, force bool) error {
	content, err := generateRecipe(template)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, recipe.Filename)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("file '%s' already exists. Use --force to overwrite", path)
	}
	// The template must decode; a broken one would only fail at build time.
	if _, err := recipe.ParseBytes([]byte(content), path); err != nil {
		return fmt.Errorf("recipe template %q is invalid: %w", template, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	absPath, _ := filepath.Abs(path)
	fmt.Fprintf(app.stdout, "%s Created %s\n\n", SuccessStyle.Render("✓"), absPath)
	fmt.Fprintln(app.stdout, SubtitleStyle.Render("Next steps:"))
	fmt.Fprintln(app.stdout, "  1. List dependencies in requirements.txt (or pyproject.toml)")
	fmt.Fprintln(app.stdout, "  2. Run 'berth plan' to review the build steps")
	fmt.Fprintln(app.stdout, "  3. Run 'berth build' to produce the image")
	return nil
}

func generateRecipe(template string) (string, error) {
	switch template {
	case templateMinimal:
		return `// berth recipe. Unset fields take their defaults; see 'berth init --template full'.

image: "app"
`, nil
	case templateFull:
		return `// berth recipe

image:      "app"
base_image: "python:3.11-slim"

// Installed with the distribution package manager before dependencies.
// Numeric packages without prebuilt wheels need a compiler here.
system_packages: ["build-essential"]

manifest:    "requirements.txt"
source:      "."
workdir:     "/app"
entrypoint:  "app.py"
diagnostics: true
ignore: ["tests/**"]
tags: []
expose: 8000

launch: {
	program:          "gunicorn"
	app:              "app:app"
	bind:             "0.0.0.0:$PORT"
	workers:          1
	threads:          8
	timeout:          0
	graceful_timeout: 0
	log_level:        "info"
	strict_ports:     true
}
`, nil
	default:
		return "", fmt.Errorf("unknown template %q (valid: %s, %s)", template, templateMinimal, templateFull)
	}
}
