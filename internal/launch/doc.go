// SPDX-License-Identifier: MPL-2.0

// Package launch holds the process launcher's runtime configuration.
//
// A Config is assembled from flags, the recipe and defaults, then resolved
// exactly once against an Env snapshot into a Runtime. Nothing downstream
// reads the process environment; the bind step receives the Runtime.
//
// The bind/expose relationship is explicit: a BindSpec either names a fixed
// port or reads $PORT, and CheckPorts reports when the resolved port differs
// from the port the image exposes.
package launch
