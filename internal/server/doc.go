// SPDX-License-Identifier: MPL-2.0

// Package server is the process launcher: it loads an application, binds the
// listen socket once, and dispatches requests to a fixed pool of handler
// threads until a termination signal drains it.
package server
