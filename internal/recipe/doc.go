// SPDX-License-Identifier: MPL-2.0

// Package recipe loads berth.cue, the per-project description of what goes
// into the image: the pinned base runtime, system build packages, the
// dependency manifest, the source tree and the launch command.
//
// Example:
//
//	image:           "shop"
//	base_image:      "python:3.11-slim"
//	system_packages: ["build-essential"]
//	launch: {
//		bind:      "0.0.0.0:$PORT"
//		log_level: "debug"
//	}
package recipe
