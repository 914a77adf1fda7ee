// SPDX-License-Identifier: MPL-2.0

package launch

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NoDeadline disables the per-request watchdog. Requests may run for as long
// as the application takes.
const NoDeadline Deadline = 0

// maxDeadlineSeconds is the largest whole-second count a time.Duration holds.
const maxDeadlineSeconds = math.MaxInt64 / int64(time.Second)

// ErrInvalidDeadline is returned for negative or unparseable timeouts.
var ErrInvalidDeadline = errors.New("invalid timeout")

// Deadline is a request timeout where zero explicitly means "disabled".
// It implements pflag.Value; plain integers are seconds, matching the
// launcher command surface, and Go durations are accepted too.
type Deadline time.Duration

// ParseDeadline parses "0", "disabled", "none", "30" (seconds) or "1m30s".
func ParseDeadline(s string) (Deadline, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "0", "disabled", "none", "off":
		return NoDeadline, nil
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w %q: must not be negative", ErrInvalidDeadline, s)
		}
		if n > maxDeadlineSeconds {
			return 0, fmt.Errorf("%w %q: exceeds %d seconds", ErrInvalidDeadline, s, maxDeadlineSeconds)
		}
		return Deadline(time.Duration(n) * time.Second), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidDeadline, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w %q: must not be negative", ErrInvalidDeadline, s)
	}
	return Deadline(d), nil
}

// Enabled reports whether a watchdog applies.
func (d Deadline) Enabled() bool { return d > 0 }

// Duration returns the deadline as a time.Duration (0 when disabled).
func (d Deadline) Duration() time.Duration { return time.Duration(d) }

// Seconds returns the value rendered on the launcher command line. Sub-second
// deadlines round up so they never turn into "disabled".
func (d Deadline) Seconds() int {
	if !d.Enabled() {
		return 0
	}
	return int((time.Duration(d) + time.Second - 1) / time.Second)
}

// String returns "disabled" or the duration.
func (d Deadline) String() string {
	if !d.Enabled() {
		return "disabled"
	}
	return time.Duration(d).String()
}

// Set implements pflag.Value.
func (d *Deadline) Set(s string) error {
	parsed, err := ParseDeadline(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Type implements pflag.Value.
func (d *Deadline) Type() string { return "timeout" }
