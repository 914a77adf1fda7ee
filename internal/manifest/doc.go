// SPDX-License-Identifier: MPL-2.0

// Package manifest parses the dependency manifest of the application being
// packaged: a flat requirements.txt list or the [project].dependencies array
// of a pyproject.toml.
//
// Parsing only checks the shape of each line. Whether the constraints can be
// satisfied is decided by the package resolver inside the image build, and
// its diagnostics are reported verbatim from there.
package manifest
