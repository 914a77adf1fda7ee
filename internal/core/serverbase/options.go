// SPDX-License-Identifier: MPL-2.0

package serverbase

// Option configures a Base.
type Option func(*Base)

// WithErrorChannel sets the async error channel buffer size (default 1).
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, size)
	}
}

// WithObserver registers fn to be called after every successful transition.
// fn runs with the transition lock held and must not call back into Base.
func WithObserver(fn func(from, to State)) Option {
	return func(b *Base) {
		b.observers = append(b.observers, fn)
	}
}
