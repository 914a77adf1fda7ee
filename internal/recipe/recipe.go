// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/berth-run/berth/internal/launch"
	"github.com/berth-run/berth/pkg/cueutil"
)

// Filename is the recipe looked up in a project directory.
const Filename = "berth.cue"

var (
	//go:embed recipe_schema.cue
	recipeSchema []byte

	// ErrRecipeNotFound is returned by LoadDir when the directory has no recipe.
	ErrRecipeNotFound = errors.New("recipe not found")
	// ErrUnpinnedBaseImage is returned for base images without a fixed tag or digest.
	ErrUnpinnedBaseImage = errors.New("base image is not pinned")
)

type (
	// Recipe is the decoded berth.cue.
	Recipe struct {
		Image          string   `json:"image"`
		BaseImage      string   `json:"base_image"`
		SystemPackages []string `json:"system_packages"`
		Manifest       string   `json:"manifest"`
		Source         string   `json:"source"`
		Workdir        string   `json:"workdir"`
		Entrypoint     string   `json:"entrypoint"`
		Diagnostics    bool     `json:"diagnostics"`
		Ignore         []string `json:"ignore"`
		Tags           []string `json:"tags"`
		Expose         int      `json:"expose"`
		Launch         Launch   `json:"launch"`

		// Dir is the directory the recipe was loaded from. Relative paths
		// resolve against it.
		Dir string `json:"-"`
	}

	// Launch overrides launch.Default. Nil fields keep the default.
	Launch struct {
		Program         *string `json:"program,omitempty"`
		App             *string `json:"app,omitempty"`
		Bind            *string `json:"bind,omitempty"`
		Workers         *int    `json:"workers,omitempty"`
		Threads         *int    `json:"threads,omitempty"`
		Timeout         *int    `json:"timeout,omitempty"`
		GracefulTimeout *int    `json:"graceful_timeout,omitempty"`
		LogLevel        *string `json:"log_level,omitempty"`
		StrictPorts     *bool   `json:"strict_ports,omitempty"`
	}
)

// Default returns the recipe produced by an empty berth.cue.
func Default() *Recipe {
	r, err := ParseBytes(nil, Filename)
	if err != nil {
		panic(fmt.Sprintf("recipe schema defaults are invalid: %v", err))
	}
	return r
}

// Load reads and validates the recipe at path.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe at %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// LoadDir loads dir/berth.cue, returning an error wrapping ErrRecipeNotFound
// when it does not exist.
func LoadDir(dir string) (*Recipe, error) {
	path := filepath.Join(dir, Filename)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrRecipeNotFound, dir)
	}
	return Load(path)
}

// ParseBytes decodes recipe content against the embedded schema and runs the
// checks CUE cannot express.
func ParseBytes(data []byte, path string) (*Recipe, error) {
	result, err := cueutil.ParseAndDecode[Recipe](recipeSchema, data, "#Recipe", cueutil.WithFilename(path))
	if err != nil {
		return nil, err
	}

	r := result.Value
	r.Dir = filepath.Dir(path)
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Validate checks the pinned base image, package names and launch overrides.
func (r *Recipe) Validate() error {
	var errs []error
	if err := ValidateBaseImage(r.BaseImage); err != nil {
		errs = append(errs, err)
	}
	for i, p := range r.SystemPackages {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("system_packages[%d]: package name is empty", i))
		}
	}
	if r.Expose < 1 || r.Expose > 65535 {
		errs = append(errs, fmt.Errorf("expose %d: %w", r.Expose, launch.ErrInvalidPort))
	}
	if filepath.IsAbs(r.Manifest) || strings.HasPrefix(filepath.Clean(r.Manifest), "..") {
		errs = append(errs, fmt.Errorf("manifest %q must be inside the source tree", r.Manifest))
	}
	if _, err := r.LaunchConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateBaseImage requires a digest or an explicit tag other than "latest".
func ValidateBaseImage(ref string) error {
	if strings.Contains(ref, "@sha256:") {
		return nil
	}
	name := ref
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		name = ref[i+1:]
	}
	_, tag, ok := strings.Cut(name, ":")
	if !ok || tag == "" || tag == "latest" {
		return fmt.Errorf("%w: %q (use an explicit version tag or a digest)", ErrUnpinnedBaseImage, ref)
	}
	return nil
}

// SourceDir returns the absolute source tree path.
func (r *Recipe) SourceDir() string {
	return r.resolve(r.Source)
}

// ManifestPath returns the absolute manifest path.
func (r *Recipe) ManifestPath() string {
	return filepath.Join(r.SourceDir(), r.Manifest)
}

func (r *Recipe) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(filepath.Join(r.Dir, p))
	if err != nil {
		return filepath.Join(r.Dir, p)
	}
	return abs
}

// LaunchConfig applies the recipe's launch overrides to launch.Default. The
// exposed port always comes from the recipe.
func (r *Recipe) LaunchConfig() (launch.Config, error) {
	c := launch.Default()
	c.Expose = r.Expose
	l := r.Launch

	if l.Program != nil {
		c.Program = *l.Program
	}
	if l.App != nil {
		c.App = *l.App
	}
	if l.Bind != nil {
		b, err := launch.ParseBind(*l.Bind)
		if err != nil {
			return c, fmt.Errorf("launch.bind: %w", err)
		}
		c.Bind = b
	}
	if l.Workers != nil {
		c.Workers = *l.Workers
	}
	if l.Threads != nil {
		c.Threads = *l.Threads
	}
	if l.Timeout != nil {
		c.Timeout = launch.Deadline(time.Duration(*l.Timeout) * time.Second)
	}
	if l.GracefulTimeout != nil {
		c.GracefulTimeout = launch.Deadline(time.Duration(*l.GracefulTimeout) * time.Second)
	}
	if l.LogLevel != nil {
		lvl, err := launch.ParseLogLevel(*l.LogLevel)
		if err != nil {
			return c, fmt.Errorf("launch.log_level: %w", err)
		}
		c.LogLevel = lvl
	}
	if l.StrictPorts != nil {
		c.StrictPorts = *l.StrictPorts
	}

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("launch: %w", err)
	}
	return c, nil
}
