// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"fmt"
	"os"
	"path/filepath"
)

// buildContext is a temporary directory holding the filtered source tree in
// Dir and the generated Dockerfile next to it, outside the context, so the
// file never collides with application files.
type buildContext struct {
	Root       string
	Dir        string
	Dockerfile string
}

func (c *buildContext) Cleanup() {
	_ = os.RemoveAll(c.Root) // Cleanup temp dir; error non-critical
}

// defaultWorkRoot picks a visible directory under $HOME for build contexts.
// Snap-packaged Docker cannot read /tmp or hidden home directories.
func defaultWorkRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "berth-build")
		}
	}
	return filepath.Join(os.TempDir(), "berth-build")
}

// prepareContext copies the plan's files and writes its Dockerfile under a
// fresh directory below workRoot.
func (p *Plan) prepareContext(workRoot string) (*buildContext, error) {
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create build work directory: %w", err)
	}
	root, err := os.MkdirTemp(workRoot, "ctx-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	bc := &buildContext{
		Root:       root,
		Dir:        filepath.Join(root, "context"),
		Dockerfile: filepath.Join(root, "Dockerfile"),
	}

	if err := os.MkdirAll(bc.Dir, 0o755); err != nil {
		bc.Cleanup()
		return nil, fmt.Errorf("failed to create context directory: %w", err)
	}
	if err := copyTree(p.sourceDir, bc.Dir, p.files); err != nil {
		bc.Cleanup()
		return nil, fmt.Errorf("failed to copy source tree: %w", err)
	}
	if err := os.WriteFile(bc.Dockerfile, []byte(p.Dockerfile()), 0o644); err != nil {
		bc.Cleanup()
		return nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}
	return bc, nil
}
