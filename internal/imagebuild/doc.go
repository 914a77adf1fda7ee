// SPDX-License-Identifier: MPL-2.0

// Package imagebuild turns a recipe, its dependency manifest and a source
// tree into a container image.
//
// The build is described by a Plan: an ordered list of steps, each carrying a
// layer cache key derived from its parent's key, its instruction text and the
// content of the files it copies. The order is fixed so the expensive
// dependency layer only depends on the manifest:
//
//  1. base image and working directory
//  2. system build packages (package-manager caches removed in the same step)
//  3. copy the dependency manifest alone
//  4. resolve and install dependencies
//  5. copy the remaining source
//  6. optional diagnostics (source listing, entry-file check)
//  7. exposed port and launch command
//
// Editing application source therefore changes the keys of steps 5 onwards
// and never those of steps 1 to 4.
//
// The Builder builds into a staging tag and only names the final image once
// the engine reports success. No step is retried.
package imagebuild
