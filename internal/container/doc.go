// SPDX-License-Identifier: MPL-2.0

// Package container drives Docker and Podman through their CLIs.
//
// Both engines share BaseCLIEngine, which builds the argument lists and runs
// the binary through an injectable ExecCommandFunc so tests can record the
// generated command lines without a real engine installed.
package container
