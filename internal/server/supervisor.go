// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/charmbracelet/log"

	"github.com/berth-run/berth/internal/app"
	"github.com/berth-run/berth/internal/core/serverbase"
	"github.com/berth-run/berth/internal/launch"
)

// readHeaderTimeout bounds slow clients independently of the request watchdog.
const readHeaderTimeout = 30 * time.Second

type (
	// ListenFunc opens the listen socket. It is called exactly once per Start.
	ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)

	// Supervisor runs one application behind a workers × threads handler pool.
	// It is single-use.
	Supervisor struct {
		*serverbase.Base

		rt       *launch.Runtime
		registry *app.Registry
		dir      string
		logger   *log.Logger
		listen   ListenFunc
		metrics  metrics
		signals  []os.Signal

		app      app.Application
		poolSize int
		queue    chan *job
		quit     chan struct{}
		busy     atomic.Int64
		srv      *http.Server
		addr     net.Addr

		teardownOnce sync.Once
	}

	// Option configures a Supervisor.
	Option func(*Supervisor)
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithRegistry resolves the application against r instead of app.Default.
func WithRegistry(r *app.Registry) Option {
	return func(s *Supervisor) { s.registry = r }
}

// WithDir sets the working directory the application is loaded from.
func WithDir(dir string) Option {
	return func(s *Supervisor) { s.dir = dir }
}

// WithListen replaces net.Listen.
func WithListen(fn ListenFunc) Option {
	return func(s *Supervisor) { s.listen = fn }
}

// WithStatsd sends request metrics to c.
func WithStatsd(c statsd.ClientInterface) Option {
	return func(s *Supervisor) { s.metrics = metrics{client: c} }
}

// WithSignals replaces the signals that start draining in Run.
func WithSignals(sig ...os.Signal) Option {
	return func(s *Supervisor) { s.signals = sig }
}

// New creates a Supervisor for a resolved runtime configuration.
func New(rt *launch.Runtime, opts ...Option) *Supervisor {
	s := &Supervisor{
		rt:       rt,
		registry: app.Default(),
		dir:      ".",
		logger:   log.NewWithOptions(io.Discard, log.Options{}),
		listen: func(ctx context.Context, network, address string) (net.Listener, error) {
			var lc net.ListenConfig
			return lc.Listen(ctx, network, address)
		},
		metrics:  metrics{client: &statsd.NoOpClient{}},
		signals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
		poolSize: rt.Workers * rt.Threads,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Base = serverbase.NewBase(serverbase.WithObserver(func(from, to serverbase.State) {
		s.logger.Debug("state", "from", from, "to", to)
	}))
	return s
}

// Start loads the application, binds once and begins serving. It returns a
// *StartError when loading or binding fails; the supervisor is then Failed
// and no socket is left open.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.TransitionToStarting(ctx); err != nil {
		return err
	}

	a, err := s.registry.Load(ctx, s.rt.App, app.Options{Dir: s.dir, Logger: s.logger})
	if err != nil {
		return s.fail(&StartError{Phase: PhaseLoad, Err: err})
	}
	s.app = a

	if err := s.TransitionToBinding(); err != nil {
		return err
	}
	addr := s.rt.Listen.Address()
	ln, err := s.listen(ctx, "tcp", addr)
	if err != nil {
		return s.fail(&StartError{Phase: PhaseBind, Addr: addr, Err: err})
	}
	s.addr = ln.Addr()

	s.queue = make(chan *job)
	s.quit = make(chan struct{})
	for w := range s.rt.Workers {
		for t := range s.rt.Threads {
			s.Go(func() { s.thread(w+1, t+1) })
		}
	}

	// Only headers are bounded. Body reads, writes and keep-alive idling have
	// no server deadline; the request watchdog is the one configured limit.
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}),
	}
	if err := s.TransitionToServing(); err != nil {
		_ = ln.Close()
		return err
	}

	s.logger.Info("listening", "addr", s.addr.String(), "workers", s.rt.Workers, "threads", s.rt.Threads,
		"timeout", s.rt.Timeout)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.TransitionToFailed(fmt.Errorf("serve: %w", err))
			_ = s.srv.Close()
			s.teardown()
		}
	}()
	return nil
}

func (s *Supervisor) fail(err error) error {
	s.TransitionToFailed(err)
	s.logger.Error("startup failed", "error", err)
	return err
}

// Addr is the bound address, nil before binding.
func (s *Supervisor) Addr() net.Addr {
	return s.addr
}

// Shutdown stops accepting connections and waits for in-flight requests,
// bounded by ctx and the configured graceful timeout. Connections still open
// when the bound expires are closed.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if !s.TransitionToDraining() {
		return nil
	}
	s.logger.Info("draining", "in_flight", s.busy.Load())

	if s.rt.GracefulTimeout.Enabled() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rt.GracefulTimeout.Duration())
		defer cancel()
	}

	var err error
	if s.srv != nil {
		if err = s.srv.Shutdown(ctx); err != nil {
			s.logger.Warn("graceful shutdown cut short", "error", err)
			_ = s.srv.Close()
		}
	}
	s.teardown()
	s.TransitionToStopped()
	s.logger.Info("stopped")
	return err
}

// teardown releases the handler threads. Requests arriving afterwards are
// refused with 503.
func (s *Supervisor) teardown() {
	s.teardownOnce.Do(func() {
		if s.quit != nil {
			close(s.quit)
		}
	})
}

// Run starts the supervisor and serves until ctx is cancelled or one of the
// termination signals arrives, then drains. A clean drain returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	undo := TuneProcs(s.logger)
	defer undo()

	sigCtx, stop := signal.NotifyContext(ctx, s.signals...)
	defer stop()

	if err := s.Start(sigCtx); err != nil {
		return err
	}

	select {
	case <-sigCtx.Done():
		s.logger.Info("termination requested")
	case err := <-s.Err():
		s.Wait()
		return err
	}
	// Drain without the cancelled context; the graceful timeout bounds it.
	return s.Shutdown(context.WithoutCancel(ctx))
}
