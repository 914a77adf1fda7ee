// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// defaultTailSize bounds the engine output kept for error reports.
const defaultTailSize = 64 << 10

var (
	// ErrDependencyResolution marks a failure of the dependency-install step.
	ErrDependencyResolution = errors.New("dependency resolution failed")
	// ErrSystemPackages marks a failure of the system-package step.
	ErrSystemPackages = errors.New("system package installation failed")
	// ErrBuildFailed marks any other failed build.
	ErrBuildFailed = errors.New("image build failed")
)

// BuildError reports a failed build. Output is the tail of the engine's
// output, verbatim. Step is nil when the failing step could not be identified.
type BuildError struct {
	Step   *Step
	Output string
	Cause  error
	kind   error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Step == nil {
		return fmt.Sprintf("%v: %v", e.kind, e.Cause)
	}
	return fmt.Sprintf("%v at step %d (%s): %v", e.kind, e.Step.Index, e.Step.Kind, e.Cause)
}

// Unwrap exposes both the classification sentinel and the engine error.
func (e *BuildError) Unwrap() []error {
	return []error{e.kind, e.Cause}
}

// classify identifies the failing step from the engine output.
func (p *Plan) classify(output string, cause error) *BuildError {
	be := &BuildError{Output: output, Cause: cause, kind: ErrBuildFailed}

	switch {
	case strings.Contains(output, MarkerDependencyResolution):
		be.kind = ErrDependencyResolution
		if s, ok := p.Step(StepInstallDeps); ok {
			be.Step = &s
		}
		return be
	case strings.Contains(output, MarkerSystemPackages):
		be.kind = ErrSystemPackages
		if s, ok := p.Step(StepSystemPackages); ok {
			be.Step = &s
		}
		return be
	}

	// Both builders quote the failing RUN body in their final error line.
	line := lastFailureLine(output)
	if line == "" {
		return be
	}
	for i := range p.Steps {
		for _, ins := range p.Steps[i].Instructions {
			body, ok := strings.CutPrefix(ins, "RUN ")
			if ok && strings.Contains(line, body) {
				s := p.Steps[i]
				be.Step = &s
				return be
			}
		}
	}
	return be
}

func lastFailureLine(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := lines[i]
		if strings.Contains(l, "did not complete successfully") || strings.Contains(l, "returned a non-zero code") {
			return l
		}
	}
	return ""
}

// tailWriter keeps the last max bytes written to it.
type tailWriter struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
