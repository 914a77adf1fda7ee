// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/berth-run/berth/internal/app"
	"github.com/berth-run/berth/internal/container"
	"github.com/berth-run/berth/internal/imagebuild"
	"github.com/berth-run/berth/internal/issue"
	"github.com/berth-run/berth/internal/launch"
	"github.com/berth-run/berth/internal/recipe"
	"github.com/berth-run/berth/internal/server"
)

// Process exit codes.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitBindFailure          = 2
	ExitAppLoadFailure       = 3
	ExitDependencyResolution = 4
	ExitBuildFailure         = 5
	ExitPortMismatch         = 6
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE
// handlers. A nil Err means the failure was already rendered.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps a command failure to the process exit code.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, server.ErrBind):
		return ExitBindFailure
	case errors.Is(err, server.ErrAppLoad), errors.Is(err, app.ErrAppNotFound):
		return ExitAppLoadFailure
	case errors.Is(err, imagebuild.ErrDependencyResolution):
		return ExitDependencyResolution
	case errors.Is(err, imagebuild.ErrBuildFailed), errors.Is(err, imagebuild.ErrSystemPackages):
		return ExitBuildFailure
	case errors.Is(err, launch.ErrPortMismatch):
		return ExitPortMismatch
	default:
		return ExitFailure
	}
}

// issueFor picks the catalog entry that explains err, 0 when none does.
func issueFor(err error) issue.Id {
	var ae *issue.ActionableError
	switch {
	case errors.As(err, &ae) && ae.IssueId != 0:
		return ae.IssueId
	case errors.Is(err, recipe.ErrRecipeNotFound):
		return issue.RecipeNotFoundId
	case errors.Is(err, recipe.ErrUnpinnedBaseImage):
		return issue.RecipeParseErrorId
	case errors.Is(err, container.ErrEngineNotAvailable):
		return issue.ContainerEngineNotFoundId
	case errors.Is(err, server.ErrBind):
		return issue.BindFailedId
	case errors.Is(err, server.ErrAppLoad), errors.Is(err, app.ErrAppNotFound):
		return issue.AppLoadFailedId
	case errors.Is(err, imagebuild.ErrDependencyResolution):
		return issue.DependencyResolutionFailedId
	case errors.Is(err, imagebuild.ErrBuildFailed), errors.Is(err, imagebuild.ErrSystemPackages):
		return issue.ImageBuildFailedId
	case errors.Is(err, launch.ErrPortMismatch):
		return issue.PortMismatchId
	default:
		return 0
	}
}
