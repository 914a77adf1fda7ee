// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the berth command-line interface: building images
// from a project recipe, inspecting build plans and port wiring, and running
// the in-process launcher that serves an application.
package cmd
