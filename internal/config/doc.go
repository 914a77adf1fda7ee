// SPDX-License-Identifier: MPL-2.0

// Package config loads berth's user configuration with Viper.
//
// Values come from, in increasing precedence: built-in defaults, a CUE file
// (config.cue in the platform config directory, or ./config.cue), and
// BERTH_* environment variables (BERTH_CONTAINER_ENGINE, BERTH_SERVE_STATSD_ADDR,
// and so on). The file is validated against the embedded config_schema.cue.
//
// The per-project recipe (berth.cue) is separate; see package recipe.
package config
