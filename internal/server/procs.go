// SPDX-License-Identifier: MPL-2.0

package server

import (
	"github.com/charmbracelet/log"
	"go.uber.org/automaxprocs/maxprocs"
)

// TuneProcs sets GOMAXPROCS from the container CPU quota. It returns the
// function restoring the previous value.
func TuneProcs(logger *log.Logger) func() {
	undo, err := maxprocs.Set(maxprocs.Logger(logger.Debugf))
	if err != nil {
		logger.Warn("GOMAXPROCS not tuned", "error", err)
	}
	return undo
}
