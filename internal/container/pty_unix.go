// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package container

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/creack/pty"
)

// runWithPTY starts cmd attached to a new pseudo-terminal and pumps stdin and
// stdout through it until the process exits.
func runWithPTY(cmd *exec.Cmd, stdin io.Reader, stdout io.Writer) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	if stdin != nil {
		go func() { _, _ = io.Copy(ptmx, stdin) }()
	}

	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		if stdout == nil {
			stdout = io.Discard
		}
		// Reading the master after the child exits yields EIO on Linux.
		_, _ = io.Copy(stdout, ptmx)
	}()

	waitErr := cmd.Wait()
	_ = ptmx.Close()
	<-copyDone
	return waitErr
}
