// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "load recipe"},
			expected: "failed to load recipe",
		},
		{
			name:     "with resource",
			err:      &ActionableError{Operation: "load recipe", Resource: "./berth.cue"},
			expected: "failed to load recipe: ./berth.cue",
		},
		{
			name: "with cause",
			err: &ActionableError{
				Operation: "bind listener",
				Resource:  "0.0.0.0:8000",
				Cause:     errors.New("address already in use"),
			},
			expected: "failed to bind listener: 0.0.0.0:8000: address already in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_ErrorsIs(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := NewErrorContext().WithOperation("build image").Wrap(fmt.Errorf("step 4: %w", sentinel)).BuildError()

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the wrapped sentinel")
	}

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatal("errors.As should find the ActionableError")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	err := &ActionableError{
		Operation:   "build image",
		Resource:    "shop:abc",
		Suggestions: []string{"Relax constraints", "Add build-essential"},
		Cause:       fmt.Errorf("step 4: %w", errors.New("exit status 1")),
	}

	plain := err.Format(false)
	if !strings.Contains(plain, "• Relax constraints") || !strings.Contains(plain, "• Add build-essential") {
		t.Errorf("Format(false) should list suggestions, got:\n%s", plain)
	}
	if strings.Contains(plain, "Error chain") {
		t.Error("Format(false) should not include the error chain")
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:") || !strings.Contains(verbose, "2. exit status 1") {
		t.Errorf("Format(true) should include the full chain, got:\n%s", verbose)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if NewErrorContext().BuildError() != nil {
		t.Error("BuildError() without operation should return nil")
	}

	ae := NewErrorContext().
		WithOperation("load application").
		WithResource("missing:app").
		WithSuggestion("Check the entry reference").
		WithIssue(AppLoadFailedId).
		Build()
	if ae == nil {
		t.Fatal("Build() returned nil")
	}
	if ae.Issue() == nil || ae.Issue().Id() != AppLoadFailedId {
		t.Errorf("Issue() = %v, want AppLoadFailedId", ae.Issue())
	}
	if len(ae.Suggestions) != 1 {
		t.Errorf("Suggestions = %v, want 1 entry", ae.Suggestions)
	}
}

func TestWrapWithContext(t *testing.T) {
	t.Parallel()

	if WrapWithContext(nil, "op", "res") != nil {
		t.Error("WrapWithContext(nil) should return nil")
	}

	cause := errors.New("boom")
	err := WrapWithContext(cause, "read manifest", "requirements.txt")
	if err.Error() != "failed to read manifest: requirements.txt: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to cause")
	}
}
