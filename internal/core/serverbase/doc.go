// SPDX-License-Identifier: MPL-2.0

// Package serverbase provides the lifecycle state machine shared by
// long-running servers: atomic state reads, mutex-guarded transitions, a
// ready signal, an async error channel and goroutine tracking.
//
// The lifecycle is linear:
//
//	Created → Starting → Binding → Serving → Draining → Stopped
//
// Failed is reachable from any non-terminal state. Terminal states are never
// left; a stopped server is replaced, not restarted.
package serverbase
