// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type pyProject struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
}

// ParsePyProject reads [project].dependencies from a pyproject.toml. Line
// numbers are positions within the dependencies array, starting at 1.
func ParsePyProject(data []byte, path string) (*Manifest, error) {
	var doc pyProject
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	m := &Manifest{path: path, format: FormatPyProject}
	seen := make(map[string]int)
	for i, dep := range doc.Project.Dependencies {
		text := strings.TrimSpace(dep)
		req, err := parseRequirement(text)
		if err != nil {
			return nil, &ParseError{Path: path, Line: i + 1, Text: text, Err: err}
		}
		req.Line = i + 1
		if err := m.add(req, seen); err != nil {
			return nil, err
		}
	}
	return m, nil
}
