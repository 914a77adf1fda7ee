// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"testing"
)

func TestParseBind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    BindSpec
		wantErr bool
	}{
		{in: "0.0.0.0:8000", want: BindSpec{Host: "0.0.0.0", Port: 8000, Policy: PolicyFixed}},
		{in: ":9000", want: BindSpec{Port: 9000, Policy: PolicyFixed}},
		{in: "0.0.0.0:$PORT", want: BindSpec{Host: "0.0.0.0", Policy: PolicyEnv}},
		{in: "127.0.0.1:${PORT}", want: BindSpec{Host: "127.0.0.1", Policy: PolicyEnv}},
		{in: "[::1]:8000", want: BindSpec{Host: "::1", Port: 8000, Policy: PolicyFixed}},
		{in: "8000", wantErr: true},
		{in: "0.0.0.0:0", wantErr: true},
		{in: "0.0.0.0:70000", wantErr: true},
		{in: "0.0.0.0:$HOST_PORT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseBind(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBind) {
					t.Errorf("ParseBind(%q) error = %v, want ErrInvalidBind", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBind(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseBind(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBindSpec_String(t *testing.T) {
	t.Parallel()

	if s := MustParseBind("0.0.0.0:${PORT}").String(); s != "0.0.0.0:$PORT" {
		t.Errorf("String() = %q", s)
	}
	if s := MustParseBind("[::1]:8000").String(); s != "[::1]:8000" {
		t.Errorf("String() = %q", s)
	}
}

func TestBindSpec_Set(t *testing.T) {
	t.Parallel()

	var b BindSpec
	if !b.IsZero() {
		t.Error("zero BindSpec should report IsZero")
	}
	if err := b.Set("0.0.0.0:$PORT"); err != nil || b.Policy != PolicyEnv {
		t.Errorf("Set() = %v, %+v", err, b)
	}
	if err := b.Set("nope"); err == nil {
		t.Error("Set() should reject invalid input")
	}
	if b.Policy != PolicyEnv {
		t.Error("failed Set() must leave the value unchanged")
	}
}

func TestBindSpec_Resolve(t *testing.T) {
	t.Parallel()

	envBind := MustParseBind("0.0.0.0:$PORT")

	r, err := envBind.Resolve(Env{"PORT": "9000"}, 8000)
	if err != nil || r.Port != 9000 || !r.FromEnv {
		t.Errorf("Resolve(PORT=9000) = %+v, %v", r, err)
	}
	if r.Address() != "0.0.0.0:9000" {
		t.Errorf("Address() = %q", r.Address())
	}

	r, err = envBind.Resolve(Env{}, 8000)
	if err != nil || r.Port != 8000 || r.FromEnv {
		t.Errorf("Resolve(unset) = %+v, %v, want fallback 8000", r, err)
	}

	if _, err := envBind.Resolve(Env{"PORT": "http"}, 8000); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Resolve(PORT=http) error = %v, want ErrInvalidPort", err)
	}
	if _, err := envBind.Resolve(Env{}, 0); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Resolve(unset, no fallback) error = %v", err)
	}

	r, err = MustParseBind(":8000").Resolve(Env{"PORT": "9000"}, 1234)
	if err != nil || r.Port != 8000 {
		t.Errorf("fixed Resolve() = %+v, %v, want 8000", r, err)
	}
}
