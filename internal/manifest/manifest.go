// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

const (
	// FormatRequirements is a pip requirements file.
	FormatRequirements Format = "requirements"
	// FormatPyProject is a PEP 621 pyproject.toml.
	FormatPyProject Format = "pyproject"

	// DefaultFilename is the manifest looked up when a recipe names none.
	DefaultFilename = "requirements.txt"
	// PyProjectFilename selects the pyproject parser in Load.
	PyProjectFilename = "pyproject.toml"
)

var (
	// ErrInvalidRequirement is wrapped by ParseError for malformed lines.
	ErrInvalidRequirement = errors.New("invalid requirement")
	// ErrDuplicateRequirement is wrapped by ParseError when a package is listed twice.
	ErrDuplicateRequirement = errors.New("duplicate requirement")
	// ErrUnsupportedInclude is wrapped by ParseError for -r/-c includes. Only
	// the manifest file itself is copied ahead of the install step, so other
	// files would not be visible to the resolver.
	ErrUnsupportedInclude = errors.New("nested requirement files are not supported")

	namePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)
	normalizeRe = regexp.MustCompile(`[-_.]+`)
	// schemePattern matches URLs and VCS references such as git+https://.
	schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
)

type (
	// Format identifies the manifest syntax.
	Format string

	// Requirement is one package entry. Constraint holds everything after the
	// name verbatim (extras, version specifiers, markers), whitespace-trimmed.
	// Direct URL and local path entries have no Name; the whole line is kept
	// in Constraint and left for pip to interpret.
	Requirement struct {
		Name       string
		Constraint string
		Line       int
	}

	// Manifest is an ordered, immutable list of requirements.
	Manifest struct {
		path         string
		format       Format
		options      []string
		requirements []Requirement
	}

	// ParseError reports a rejected manifest line.
	ParseError struct {
		Path string
		Line int
		Text string
		Err  error
	}
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v: %q", e.Path, e.Line, e.Err, e.Text)
}

// Unwrap returns the sentinel describing the failure.
func (e *ParseError) Unwrap() error { return e.Err }

// String renders the requirement as it would appear in requirements.txt.
func (r Requirement) String() string {
	return r.Name + r.Constraint
}

// NormalizedName returns the PEP 503 form of the name used for duplicate detection.
func (r Requirement) NormalizedName() string {
	return normalizeRe.ReplaceAllString(strings.ToLower(r.Name), "-")
}

// Marker returns the environment marker after ';', whitespace-trimmed.
func (r Requirement) Marker() string {
	_, marker, ok := strings.Cut(r.Constraint, ";")
	if !ok {
		return ""
	}
	return strings.TrimSpace(marker)
}

// IsDirect reports whether the entry is a bare URL or local path.
func (r Requirement) IsDirect() bool { return r.Name == "" }

// Load reads the manifest at path, choosing the parser from the file name.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if filepath.Base(path) == PyProjectFilename {
		return ParsePyProject(data, path)
	}
	return Parse(strings.NewReader(string(data)), path)
}

// Parse reads a requirements.txt-style list. Blank lines and comments are
// skipped, trailing backslashes join lines, and pip option lines such as
// --extra-index-url are kept in Options.
func Parse(r io.Reader, path string) (*Manifest, error) {
	m := &Manifest{path: path, format: FormatRequirements}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNo, startLine := 0, 0
	var pending strings.Builder
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if pending.Len() == 0 {
			startLine = lineNo
		}
		if cont, ok := strings.CutSuffix(strings.TrimRight(raw, " \t"), `\`); ok {
			pending.WriteString(cont)
			continue
		}
		pending.WriteString(raw)
		line := pending.String()
		pending.Reset()

		if err := m.addLine(line, startLine, seen); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	if pending.Len() > 0 {
		if err := m.addLine(pending.String(), startLine, seen); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manifest) addLine(raw string, lineNo int, seen map[string]int) error {
	line := stripComment(raw)
	if line == "" {
		return nil
	}

	if strings.HasPrefix(line, "-") {
		opt, _, _ := strings.Cut(line, " ")
		switch opt {
		case "-r", "--requirement", "-c", "--constraint":
			return &ParseError{Path: m.path, Line: lineNo, Text: line, Err: ErrUnsupportedInclude}
		}
		m.options = append(m.options, line)
		return nil
	}

	req, err := parseRequirement(line)
	if err != nil {
		return &ParseError{Path: m.path, Line: lineNo, Text: line, Err: err}
	}
	req.Line = lineNo
	return m.add(req, seen)
}

// add rejects a second entry for the same package under the same marker.
// Pins split across markers select one entry per interpreter, so they are kept.
func (m *Manifest) add(req Requirement, seen map[string]int) error {
	if req.IsDirect() {
		m.requirements = append(m.requirements, req)
		return nil
	}
	key := req.NormalizedName() + ";" + req.Marker()
	if first, dup := seen[key]; dup {
		return &ParseError{
			Path: m.path,
			Line: req.Line,
			Text: req.String(),
			Err:  fmt.Errorf("%w: %s already listed on line %d", ErrDuplicateRequirement, req.Name, first),
		}
	}
	seen[key] = req.Line
	m.requirements = append(m.requirements, req)
	return nil
}

// stripComment removes full-line and inline comments. An inline comment must
// be preceded by whitespace, so URL fragments like #egg= survive.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

// parseRequirement splits "name<constraint>". The constraint must start with
// an extras bracket, a version operator, a marker separator or a direct URL.
// Lines that start with a URL scheme or a path are passed through unnamed.
func parseRequirement(line string) (Requirement, error) {
	if isDirectReference(line) {
		return Requirement{Constraint: line}, nil
	}
	name := namePattern.FindString(line)
	if name == "" {
		return Requirement{}, ErrInvalidRequirement
	}
	rest := strings.TrimSpace(line[len(name):])
	if rest != "" && !strings.ContainsAny(rest[:1], "[<>=!~;@(") {
		return Requirement{}, ErrInvalidRequirement
	}
	if op := strings.TrimLeft(rest, "<>=!~"); len(op) < len(rest) && strings.TrimSpace(op) == "" {
		// Operator without a version, e.g. "flask==".
		return Requirement{}, ErrInvalidRequirement
	}
	return Requirement{Name: name, Constraint: rest}, nil
}

func isDirectReference(line string) bool {
	if strings.HasPrefix(line, "./") || strings.HasPrefix(line, "../") || strings.HasPrefix(line, "/") {
		return true
	}
	return schemePattern.MatchString(line)
}

// Path returns the file the manifest was read from.
func (m *Manifest) Path() string { return m.path }

// Filename returns the base name of Path.
func (m *Manifest) Filename() string { return filepath.Base(m.path) }

// Format returns the manifest syntax.
func (m *Manifest) Format() Format { return m.format }

// Len returns the number of requirements.
func (m *Manifest) Len() int { return len(m.requirements) }

// Requirements returns a copy of the requirements in file order.
func (m *Manifest) Requirements() []Requirement {
	return slices.Clone(m.requirements)
}

// Options returns a copy of the pip option lines.
func (m *Manifest) Options() []string {
	return slices.Clone(m.options)
}

// Lookup returns the requirement for name, compared in normalized form.
func (m *Manifest) Lookup(name string) (Requirement, bool) {
	key := Requirement{Name: name}.NormalizedName()
	for _, r := range m.requirements {
		if !r.IsDirect() && r.NormalizedName() == key {
			return r, true
		}
	}
	return Requirement{}, false
}

// Lines renders the canonical requirements.txt form: options first, then one
// requirement per line.
func (m *Manifest) Lines() []string {
	lines := slices.Clone(m.options)
	for _, r := range m.requirements {
		lines = append(lines, r.String())
	}
	return lines
}

// Digest is a stable sha256 of the canonical lines. Comments, blank lines and
// whitespace do not affect it.
func (m *Manifest) Digest() string {
	h := sha256.New()
	h.Write([]byte(string(m.format) + "\n"))
	for _, l := range m.Lines() {
		h.Write([]byte(l + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
