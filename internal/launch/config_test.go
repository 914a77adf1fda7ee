// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Workers != 1 || c.Threads != 8 || c.Timeout != NoDeadline || c.Expose != 8000 {
		t.Errorf("unexpected defaults %+v", c)
	}
	if c.Bind.Policy != PolicyEnv || !c.StrictPorts {
		t.Errorf("default bind should read $PORT strictly, got %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Default() should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Workers = 0
	c.Threads = -1
	c.App = " "
	c.LogLevel = "trace"
	c.Expose = 0

	err := c.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
	for _, sentinel := range []error{ErrInvalidLogLevel, ErrInvalidPort} {
		if !errors.Is(err, sentinel) {
			t.Errorf("Validate() should report %v, got %v", sentinel, err)
		}
	}
}

func TestConfig_Args(t *testing.T) {
	t.Parallel()

	c := Default()
	want := []string{"--bind", "0.0.0.0:$PORT", "--workers", "1", "--threads", "8", "--timeout", "0", "app:app"}
	if got := c.Args(); !slices.Equal(got, want) {
		t.Errorf("Args() = %v, want %v", got, want)
	}

	c.LogLevel = LogLevelDebug
	c.Program = "berth serve"
	got := c.Command()
	if got[0] != "berth" || got[1] != "serve" || !slices.Contains(got, "--log-level") {
		t.Errorf("Command() = %v", got)
	}
}

func TestConfig_Resolve(t *testing.T) {
	t.Parallel()

	c := Default()
	rt, err := c.Resolve(Env{"PORT": "8000"})
	if err != nil || rt.Listen.Address() != "0.0.0.0:8000" {
		t.Fatalf("Resolve() = %+v, %v", rt, err)
	}

	rt, err = c.Resolve(Env{"PORT": "9000"})
	var mismatch *PortMismatchError
	if !errors.As(err, &mismatch) || rt == nil || rt.Listen.Port != 9000 {
		t.Errorf("Resolve(PORT=9000) = %+v, %v, want runtime plus mismatch", rt, err)
	}

	bad := Default()
	bad.Threads = 0
	if rt, err := bad.Resolve(Env{}); rt != nil || !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Resolve(invalid) = %+v, %v", rt, err)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want log.Level
	}{
		{"DEBUG", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"critical", log.FatalLevel},
	}
	for _, tt := range tests {
		l, err := ParseLogLevel(tt.in)
		if err != nil || l.CharmLevel() != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v (%v), want %v", tt.in, l, err, tt.want)
		}
	}
	if _, err := ParseLogLevel("trace"); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("ParseLogLevel(trace) error = %v", err)
	}
	if LogLevel("").CharmLevel() != log.InfoLevel {
		t.Error("unset level should map to info")
	}
}

func TestFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")
	if err := os.WriteFile(first, []byte("PORT=9100\nAPP_MODE=first\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("APP_MODE=second\nEXTRA=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9200")

	env, err := FromEnvironment(first, second)
	if err != nil {
		t.Fatalf("FromEnvironment() error = %v", err)
	}
	if v, _ := env.Lookup("PORT"); v != "9200" {
		t.Errorf("process env must win, PORT = %q", v)
	}
	if v, _ := env.Lookup("APP_MODE"); v != "first" {
		t.Errorf("earlier file must win, APP_MODE = %q", v)
	}
	if _, ok := env.Lookup("EXTRA"); !ok {
		t.Error("later file variables should be merged")
	}

	t.Setenv("PORT", "")
	env, err = FromEnvironment(first)
	if err != nil {
		t.Fatalf("FromEnvironment() error = %v", err)
	}
	if v, _ := env.Lookup("PORT"); v != "9100" {
		t.Errorf("empty process variable must not shadow the file, PORT = %q", v)
	}

	if _, err := FromEnvironment(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("missing env file should fail")
	}
}
