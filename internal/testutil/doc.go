// SPDX-License-Identifier: MPL-2.0

// Package testutil holds helpers shared by berth's tests: writing project
// trees to disk and bounding how many tests talk to a container engine at
// once.
package testutil
