// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"errors"
	"strings"
	"testing"

	"mvdan.cc/sh/v3/syntax"

	"github.com/berth-run/berth/internal/launch"
	"github.com/berth-run/berth/internal/manifest"
)

func TestDockerfile_Layout(t *testing.T) {
	t.Parallel()

	p := mustPlan(t, defaultProject(t))
	df := p.Dockerfile()

	order := []string{
		"FROM python:3.11-slim",
		"WORKDIR /app",
		"apt-get install -y --no-install-recommends",
		"rm -rf /var/lib/apt/lists/*",
		`COPY ["requirements.txt","requirements.txt"]`,
		"pip install --no-cache-dir -r",
		"COPY . .",
		"ls -la",
		"EXPOSE 8000",
		"ENV PORT=8000",
		"CMD exec ",
	}
	pos := 0
	for _, want := range order {
		i := strings.Index(df[pos:], want)
		if i < 0 {
			t.Fatalf("Dockerfile missing %q after offset %d:\n%s", want, pos, df)
		}
		pos += i + len(want)
	}
	if !strings.HasPrefix(df, "# Generated by berth. Plan "+p.ShortKey()) {
		t.Errorf("Dockerfile header = %q", strings.SplitN(df, "\n", 2)[0])
	}
}

func TestDockerfile_MarkersNotInCommandText(t *testing.T) {
	t.Parallel()

	df := mustPlan(t, defaultProject(t)).Dockerfile()
	for _, m := range []string{MarkerSystemPackages, MarkerDependencyResolution} {
		if strings.Contains(df, m) {
			t.Errorf("Dockerfile contains marker %q verbatim", m)
		}
	}
}

func TestFailWith_PrintsMarker(t *testing.T) {
	t.Parallel()

	// The shell joins the adjacent quoted words back into the marker.
	cmd := failWith(MarkerDependencyResolution)
	f, err := syntax.NewParser().Parse(strings.NewReader(cmd), "")
	if err != nil {
		t.Fatalf("failWith() produced invalid shell: %v", err)
	}
	var words []string
	syntax.Walk(f, func(n syntax.Node) bool {
		if call, ok := n.(*syntax.CallExpr); ok && len(call.Args) == 2 {
			if lit := call.Args[0].Lit(); lit == "echo" {
				var sb strings.Builder
				for _, part := range call.Args[1].Parts {
					if sq, ok := part.(*syntax.SglQuoted); ok {
						sb.WriteString(sq.Value)
					}
				}
				words = append(words, sb.String())
			}
		}
		return true
	})
	if len(words) != 1 || words[0] != MarkerDependencyResolution {
		t.Errorf("echoed %q, want %q", words, MarkerDependencyResolution)
	}
}

func TestSystemPackagesCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		want []string
	}{
		{"Debian", "python:3.11-slim", []string{"apt-get update", "apt-get install", "rm -rf /var/lib/apt/lists/*"}},
		{"Alpine", "python:3.11-alpine", []string{"apk add --no-cache", "rm -rf /var/cache/apk/*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cmd, err := systemPackagesCommand(tt.base, []string{"build-essential", "libpq-dev"})
			if err != nil {
				t.Fatalf("systemPackagesCommand() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(cmd, w) {
					t.Errorf("command %q missing %q", cmd, w)
				}
			}
			if !strings.Contains(cmd, "build-essential") || !strings.Contains(cmd, "libpq-dev") {
				t.Errorf("command %q missing packages", cmd)
			}
		})
	}
}

func TestInstallCommand_PyProject(t *testing.T) {
	t.Parallel()

	data := []byte(`[project]
name = "shop"
dependencies = ["flask==3.0.0", "gunicorn>=21"]
`)
	m, err := manifest.ParsePyProject(data, manifest.PyProjectFilename)
	if err != nil {
		t.Fatalf("ParsePyProject() error = %v", err)
	}
	cmd, err := installCommand(m, manifest.PyProjectFilename)
	if err != nil {
		t.Fatalf("installCommand() error = %v", err)
	}
	if strings.Contains(cmd, " -r ") {
		t.Errorf("pyproject install should not use -r: %q", cmd)
	}
	if !strings.Contains(cmd, "flask==3.0.0") || !strings.Contains(cmd, "gunicorn>=21") {
		t.Errorf("install command %q does not list quoted requirements", cmd)
	}
}

func TestRuntimeInstructions(t *testing.T) {
	t.Parallel()

	t.Run("EnvBind", func(t *testing.T) {
		t.Parallel()
		cfg := launch.Default()
		got, err := runtimeInstructions(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 || got[0] != "EXPOSE 8000" || got[1] != "ENV PORT=8000" {
			t.Fatalf("runtimeInstructions() = %v", got)
		}
		cmd := got[2]
		for _, want := range []string{"CMD exec ", "gunicorn", `"0.0.0.0:${PORT}"`, "--workers", "--threads", "--timeout", "app:app"} {
			if !strings.Contains(cmd, want) {
				t.Errorf("CMD %q missing %q", cmd, want)
			}
		}
	})

	t.Run("FixedBind", func(t *testing.T) {
		t.Parallel()
		cfg := launch.Default()
		cfg.Bind = launch.MustParseBind("0.0.0.0:8000")
		got, err := runtimeInstructions(cfg)
		if err != nil {
			t.Fatal(err)
		}
		want := `CMD ["gunicorn","--bind","0.0.0.0:8000","--workers","1","--threads","8","--timeout","0","app:app"]`
		if len(got) != 2 || got[1] != want {
			t.Errorf("runtimeInstructions() = %v, want [EXPOSE 8000 %s]", got, want)
		}
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	p := mustPlan(t, defaultProject(t))
	diag, _ := p.Step(StepDiagnostics)

	tests := []struct {
		name     string
		output   string
		wantKind error
		wantStep StepKind
	}{
		{
			name:     "DependencyMarker",
			output:   "ERROR: No matching distribution found for pandas==99\n" + MarkerDependencyResolution + "\n",
			wantKind: ErrDependencyResolution,
			wantStep: StepInstallDeps,
		},
		{
			name:     "SystemMarker",
			output:   "E: Unable to locate package nope\n" + MarkerSystemPackages + "\n",
			wantKind: ErrSystemPackages,
			wantStep: StepSystemPackages,
		},
		{
			name:     "BuildKitLine",
			output:   "ERROR: process \"/bin/sh -c " + strings.TrimPrefix(diag.Instructions[0], "RUN ") + "\" did not complete successfully: exit code: 2\n",
			wantKind: ErrBuildFailed,
			wantStep: StepDiagnostics,
		},
		{
			name:     "Unknown",
			output:   "Cannot connect to the Docker daemon\n",
			wantKind: ErrBuildFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cause := errors.New("exit status 1")
			be := p.classify(tt.output, cause)
			if !errors.Is(be, tt.wantKind) || !errors.Is(be, cause) {
				t.Errorf("classify() = %v, want wrapping %v and cause", be, tt.wantKind)
			}
			if be.Output != tt.output {
				t.Error("classify() did not keep the output verbatim")
			}
			switch {
			case tt.wantStep == "" && be.Step != nil:
				t.Errorf("Step = %s, want nil", be.Step.Kind)
			case tt.wantStep != "" && (be.Step == nil || be.Step.Kind != tt.wantStep):
				t.Errorf("Step = %v, want %s", be.Step, tt.wantStep)
			}
		})
	}
}

func TestTailWriter(t *testing.T) {
	t.Parallel()

	w := newTailWriter(8)
	_, _ = w.Write([]byte("0123456789"))
	_, _ = w.Write([]byte("ab"))
	if got := w.String(); got != "456789ab" {
		t.Errorf("tail = %q, want %q", got, "456789ab")
	}
}
