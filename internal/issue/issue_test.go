// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func allIds() []Id {
	return []Id{
		RecipeNotFoundId,
		RecipeParseErrorId,
		ManifestParseErrorId,
		ContainerEngineNotFoundId,
		DependencyResolutionFailedId,
		ImageBuildFailedId,
		EntryPointMissingId,
		PortMismatchId,
		BindFailedId,
		AppLoadFailedId,
		ConfigLoadFailedId,
	}
}

func TestId_Constants(t *testing.T) {
	seen := make(map[Id]bool)
	for _, id := range allIds() {
		if seen[id] {
			t.Errorf("duplicate ID: %d", id)
		}
		seen[id] = true
	}

	if RecipeNotFoundId != 1 {
		t.Errorf("RecipeNotFoundId = %d, want 1", RecipeNotFoundId)
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		id       Id
		contains string
	}{
		{RecipeNotFoundId, "No berth.cue found"},
		{DependencyResolutionFailedId, "No image was tagged"},
		{PortMismatchId, "$PORT"},
		{BindFailedId, "does not retry"},
		{AppLoadFailedId, "no socket was bound"},
	}

	for _, tt := range tests {
		got := Get(tt.id)
		if got == nil {
			t.Fatalf("Get(%d) returned nil", tt.id)
		}
		if !strings.Contains(string(got.MarkdownMsg()), tt.contains) {
			t.Errorf("Get(%d) message should contain %q", tt.id, tt.contains)
		}
	}

	if Get(Id(999)) != nil {
		t.Error("Get(999) should return nil")
	}
}

func TestValues(t *testing.T) {
	values := Values()
	if len(values) != len(allIds()) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), len(allIds()))
	}
	for i := 1; i < len(values); i++ {
		if values[i-1].Id() >= values[i].Id() {
			t.Errorf("Values() not ordered at %d", i)
		}
	}
}

func TestIssue_Render(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, stylePath string) (string, error) {
		return in, nil
	}

	for _, id := range allIds() {
		rendered, err := Get(id).Render("")
		if err != nil {
			t.Errorf("Issue %d failed to render: %v", id, err)
		}
		if rendered == "" {
			t.Errorf("Issue %d rendered to empty string", id)
		}
	}
}

func TestIssue_Render_WithLinks(t *testing.T) {
	originalRender := render
	defer func() { render = originalRender }()

	render = func(in string, stylePath string) (string, error) {
		return in, nil
	}

	i := &Issue{
		id:       PortMismatchId,
		mdMsg:    "# Port",
		docLinks: []HttpLink{"https://docs.example.com/ports"},
		extLinks: []HttpLink{"https://example.com/port"},
	}

	rendered, err := i.Render("")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(rendered, "See also") {
		t.Error("rendered output should contain the See also section")
	}
	if !strings.Contains(rendered, "https://docs.example.com/ports") {
		t.Error("rendered output should contain the doc link")
	}
}

func TestIssue_LinksAreCopies(t *testing.T) {
	i := &Issue{docLinks: []HttpLink{"a"}}
	links := i.DocLinks()
	links[0] = "b"
	if i.DocLinks()[0] != "a" {
		t.Error("DocLinks() should return a copy")
	}
}
