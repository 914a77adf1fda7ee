// SPDX-License-Identifier: MPL-2.0

//go:build windows

package container

import (
	"errors"
	"io"
	"os/exec"
)

func runWithPTY(_ *exec.Cmd, _ io.Reader, _ io.Writer) error {
	return errors.New("tty mode is not supported on windows")
}
