// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/berth-run/berth/internal/issue"
)

func TestBaseCLIEngine_BuildArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")
	ctxDir := filepath.Join("tmp", "ctx")

	tests := []struct {
		name     string
		opts     BuildOptions
		expected []string
	}{
		{
			name:     "context only",
			opts:     BuildOptions{ContextDir: ctxDir},
			expected: []string{"build", ctxDir},
		},
		{
			name: "relative dockerfile resolved against context",
			opts: BuildOptions{ContextDir: ctxDir, Dockerfile: "Dockerfile", Tags: []string{"a:1", "a:latest"}},
			expected: []string{
				"build", "-f", filepath.Join(ctxDir, "Dockerfile"), "-t", "a:1", "-t", "a:latest", ctxDir,
			},
		},
		{
			name: "flags and sorted maps",
			opts: BuildOptions{
				ContextDir: ctxDir,
				NoCache:    true,
				Pull:       true,
				Labels:     map[string]string{"z": "1", "a": "2"},
				BuildArgs:  map[string]string{"PORT": "8000"},
			},
			expected: []string{
				"build", "--no-cache", "--pull", "--label", "a=2", "--label", "z=1",
				"--build-arg", "PORT=8000", ctxDir,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := e.BuildArgs(tt.opts); !slices.Equal(got, tt.expected) {
				t.Errorf("BuildArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBaseCLIEngine_RunArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")
	got := e.RunArgs(RunOptions{
		Image:       "shop:abc",
		Remove:      true,
		Name:        "shop",
		Interactive: true,
		TTY:         true,
		Env:         map[string]string{"PORT": "8000", "A": "b"},
		Ports:       []string{"8000:8000"},
		Command:     []string{"serve", "--workers", "1"},
	})
	want := []string{
		"run", "--rm", "--name", "shop", "-i", "-t", "-e", "A=b", "-e", "PORT=8000",
		"-p", "8000:8000", "shop:abc", "serve", "--workers", "1",
	}
	if !slices.Equal(got, want) {
		t.Errorf("RunArgs() = %v, want %v", got, want)
	}
}

func TestBaseCLIEngine_Build(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	rec.Stdout = "Step 1/7 : FROM python:3.11-slim"
	e := newMockDocker(t, rec)

	var out bytes.Buffer
	err := e.Build(context.Background(), BuildOptions{ContextDir: t.TempDir(), Tags: []string{"shop:staging"}, Stdout: &out})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	rec.AssertFirstArg(t, "build")
	if !rec.HasArgPair("-t", "shop:staging") {
		t.Errorf("expected -t shop:staging, got %v", rec.LastArgs())
	}
	if !strings.Contains(out.String(), "Step 1/7") {
		t.Errorf("build output not streamed, got %q", out.String())
	}
}

func TestBaseCLIEngine_BuildFailure(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	rec.ExitCode = 1
	rec.Stderr = "ERROR: Could not find a version that satisfies the requirement numpy==99"
	e := newMockDocker(t, rec)

	var stderr bytes.Buffer
	err := e.Build(context.Background(), BuildOptions{ContextDir: t.TempDir(), Tags: []string{"shop:staging"}, Stderr: &stderr})
	if err == nil {
		t.Fatal("Build() should fail")
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("expected ActionableError, got %T", err)
	}
	if ae.Resource != "shop:staging" || ae.IssueId != issue.ImageBuildFailedId {
		t.Errorf("unexpected error context: %+v", ae)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Error("engine exit error should be reachable through the chain")
	}
	if !strings.Contains(stderr.String(), "numpy==99") {
		t.Errorf("diagnostics should be streamed verbatim, got %q", stderr.String())
	}
}

func TestBaseCLIEngine_BuildRequiresContext(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	e := newMockDocker(t, rec)
	if err := e.Build(context.Background(), BuildOptions{}); err == nil {
		t.Error("Build() without context should fail")
	}
	rec.AssertInvocationCount(t, 0)
}

func TestBaseCLIEngine_TagAndRemove(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	e := newMockPodman(t, rec)

	if err := e.Tag(context.Background(), "shop:staging", "shop:abc"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}
	if got := rec.LastArgs(); !slices.Equal(got, []string{"tag", "shop:staging", "shop:abc"}) {
		t.Errorf("Tag args = %v", got)
	}

	if err := e.RemoveImage(context.Background(), "shop:staging", true); err != nil {
		t.Fatalf("RemoveImage() error = %v", err)
	}
	if got := rec.LastArgs(); !slices.Equal(got, []string{"rmi", "-f", "shop:staging"}) {
		t.Errorf("RemoveImage args = %v", got)
	}
}

func TestBaseCLIEngine_RunExitCode(t *testing.T) {
	t.Parallel()

	rec := NewMockCommandRecorder()
	rec.ExitCode = 3
	e := newMockDocker(t, rec)

	res, err := e.Run(context.Background(), RunOptions{Image: "shop:abc", Remove: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 || res.Error != nil {
		t.Errorf("Run() = %+v, want exit code 3 and no infrastructure error", res)
	}
}

func TestBaseCLIEngine_RunRequiresImage(t *testing.T) {
	t.Parallel()

	e := newMockDocker(t, NewMockCommandRecorder())
	if _, err := e.Run(context.Background(), RunOptions{}); err == nil {
		t.Error("Run() without image should fail")
	}
}

func TestParsePortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PortMapping
		wantErr bool
	}{
		{in: "8000:8000", want: PortMapping{HostPort: 8000, ContainerPort: 8000}},
		{in: "9000:8000/udp", want: PortMapping{HostPort: 9000, ContainerPort: 8000, Protocol: "udp"}},
		{in: "8000", wantErr: true},
		{in: "0:8000", wantErr: true},
		{in: "8000:x", wantErr: true},
		{in: "8000:8000/sctp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePortMapping(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPortMapping) {
					t.Errorf("ParsePortMapping(%q) error = %v, want ErrInvalidPortMapping", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortMapping(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParsePortMapping(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}

	if s := (PortMapping{HostPort: 1, ContainerPort: 2, Protocol: "tcp"}).String(); s != "1:2" {
		t.Errorf("String() = %q, want tcp omitted", s)
	}
}
