// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env is an immutable snapshot of environment variables taken at startup.
type Env map[string]string

// EnvFromOS snapshots the process environment.
func EnvFromOS() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// FromEnvironment snapshots the process environment and merges the given
// dotenv files underneath it. Non-empty process variables win, and earlier
// files win over later ones. An empty variable counts as unset, matching how
// the bind policy treats an empty $PORT.
func FromEnvironment(envFiles ...string) (Env, error) {
	env := EnvFromOS()
	for _, path := range envFiles {
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", path, err)
		}
		for k, v := range vars {
			if env[k] == "" {
				env[k] = v
			}
		}
	}
	return env, nil
}

// Lookup returns the value of key and whether it is set.
func (e Env) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}
