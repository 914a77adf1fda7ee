// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Base carries lifecycle state for a server that embeds it. Reads of the
// current state are lock-free; transitions are serialized by stateMu.
type Base struct {
	state     atomic.Int32
	stateMu   sync.Mutex
	observers []func(from, to State)

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	readyCh chan struct{}
	doneCh  chan struct{}
	errCh   chan error
	lastErr error
}

// NewBase creates a Base in StateCreated.
func NewBase(opts ...Option) *Base {
	b := &Base{
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		errCh:   make(chan error, 1),
	}
	b.state.Store(int32(StateCreated))
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsServing reports whether the server is accepting requests.
func (b *Base) IsServing() bool {
	return b.State() == StateServing
}

// Err returns the async error channel.
func (b *Base) Err() <-chan error {
	return b.errCh
}

// LastError returns the error that moved the server to Failed, or nil.
func (b *Base) LastError() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.lastErr
}

// move performs from → to under the lock. Callers hold no locks.
func (b *Base) move(from, to State) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.moveLocked(from, to)
}

func (b *Base) moveLocked(from, to State) error {
	if cur := b.State(); cur != from {
		return &TransitionError{From: cur, To: to}
	}
	b.state.Store(int32(to))
	for _, fn := range b.observers {
		fn(from, to)
	}
	return nil
}

// TransitionToStarting moves Created → Starting and creates the lifecycle
// context. An already-cancelled ctx fails the server instead.
func (b *Base) TransitionToStarting(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		err = fmt.Errorf("context cancelled before start: %w", err)
		b.TransitionToFailed(err)
		return err
	}
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if err := b.moveLocked(StateCreated, StateStarting); err != nil {
		return err
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return nil
}

// TransitionToBinding moves Starting → Binding.
func (b *Base) TransitionToBinding() error {
	return b.move(StateStarting, StateBinding)
}

// TransitionToServing moves Binding → Serving and releases WaitForReady.
func (b *Base) TransitionToServing() error {
	if err := b.move(StateBinding, StateServing); err != nil {
		return err
	}
	close(b.readyCh)
	return nil
}

// TransitionToDraining moves a live server to Draining and cancels the
// lifecycle context. It returns false when there is nothing to drain: the
// server already drains, has stopped, or never started (it is then marked
// Stopped directly).
func (b *Base) TransitionToDraining() bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	switch cur := b.State(); cur {
	case StateCreated:
		_ = b.moveLocked(cur, StateStopped)
		close(b.doneCh)
		return false
	case StateStarting, StateBinding, StateServing:
		_ = b.moveLocked(cur, StateDraining)
		if b.cancel != nil {
			b.cancel()
		}
		return true
	default:
		return false
	}
}

// TransitionToStopped moves Draining → Stopped once every tracked goroutine
// has exited.
func (b *Base) TransitionToStopped() {
	b.wg.Wait()
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.moveLocked(StateDraining, StateStopped) == nil {
		close(b.doneCh)
	}
}

// TransitionToFailed records err and moves any non-terminal state to Failed.
func (b *Base) TransitionToFailed(err error) {
	b.stateMu.Lock()
	cur := b.State()
	if cur.IsTerminal() {
		b.stateMu.Unlock()
		return
	}
	b.lastErr = err
	_ = b.moveLocked(cur, StateFailed)
	close(b.doneCh)
	if b.cancel != nil {
		b.cancel()
	}
	b.stateMu.Unlock()

	b.SendError(err)
}

// WaitForReady blocks until Serving or until ctx is done.
func (b *Base) WaitForReady(ctx context.Context) error {
	select {
	case <-b.readyCh:
		return nil
	case <-b.doneCh:
		if err := b.LastError(); err != nil {
			return err
		}
		return fmt.Errorf("server %s before becoming ready", b.State())
	case <-ctx.Done():
		return fmt.Errorf("waiting for server ready: %w", ctx.Err())
	}
}

// Done is closed when the server reaches a terminal state.
func (b *Base) Done() <-chan struct{} {
	return b.doneCh
}

// Ready is closed when the server starts serving.
func (b *Base) Ready() <-chan struct{} {
	return b.readyCh
}

// Context is cancelled when draining starts or the server fails. It is nil
// before Start.
func (b *Base) Context() context.Context {
	return b.ctx
}

// Go runs fn in a goroutine tracked for TransitionToStopped.
func (b *Base) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (b *Base) Wait() {
	b.wg.Wait()
}

// SendError delivers err without blocking; it is dropped when the channel is full.
func (b *Base) SendError(err error) {
	select {
	case b.errCh <- err:
	default:
	}
}
