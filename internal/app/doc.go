// SPDX-License-Identifier: MPL-2.0

// Package app resolves "module:callable" references to HTTP applications.
//
// The launcher treats an application as opaque: it hands over one request and
// receives one response. A Registry maps references to factories; loading
// happens before the launcher binds its socket, so a bad reference never
// leaves a listening port behind.
package app
