// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces ConfigDir in tests; os.UserHomeDir ignores
// $HOME on some platforms.
var configDirOverride string

// Reset clears test overrides.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride makes ConfigDir return dir.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
