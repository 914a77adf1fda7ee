// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"path/filepath"

	"github.com/berth-run/berth/internal/imagebuild"
	"github.com/berth-run/berth/internal/issue"
	"github.com/berth-run/berth/internal/manifest"
	"github.com/berth-run/berth/internal/recipe"
)

// dirArg returns the project directory argument, "." when absent.
func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// loadRecipe loads dir/berth.cue, attaching the catalog entry for parse
// failures. A missing recipe is returned as is.
func loadRecipe(dir string) (*recipe.Recipe, error) {
	r, err := recipe.LoadDir(dir)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, recipe.ErrRecipeNotFound) {
		return nil, err
	}
	return nil, issue.NewErrorContext().
		WithOperation("load recipe").
		WithResource(filepath.Join(dir, recipe.Filename)).
		WithIssue(issue.RecipeParseErrorId).
		Wrap(err).
		BuildError()
}

// loadPlan loads the recipe in dir and plans its build.
func loadPlan(dir string) (*imagebuild.Plan, error) {
	r, err := loadRecipe(dir)
	if err != nil {
		return nil, err
	}
	plan, err := imagebuild.NewPlan(r)
	if err != nil {
		ctx := issue.NewErrorContext().
			WithOperation("plan image build").
			WithResource(r.ManifestPath())
		if errors.Is(err, manifest.ErrInvalidRequirement) ||
			errors.Is(err, manifest.ErrDuplicateRequirement) ||
			errors.Is(err, manifest.ErrUnsupportedInclude) {
			ctx = ctx.WithIssue(issue.ManifestParseErrorId)
		}
		return nil, ctx.Wrap(err).BuildError()
	}
	return plan, nil
}
