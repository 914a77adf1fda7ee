// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// job is one request handed from the connection goroutine to a pool thread.
// The connection goroutine blocks on done; w and r are only touched by the
// thread until done is closed.
type job struct {
	w    http.ResponseWriter
	r    *http.Request
	done chan struct{}
	// abort is set when the response could not be completed and the
	// connection must be dropped.
	abort bool
}

// ServeHTTP queues the request for the next idle thread. A saturated pool
// makes the caller wait; no goroutine is spawned per request.
func (s *Supervisor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	j := &job{w: w, r: r, done: make(chan struct{})}
	select {
	case s.queue <- j:
	case <-s.quit:
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	case <-r.Context().Done():
		return
	}
	<-j.done
	if j.abort {
		panic(http.ErrAbortHandler)
	}
}

// thread is one handler slot. It runs until teardown.
func (s *Supervisor) thread(worker, slot int) {
	logger := s.logger.With("worker", worker, "thread", slot)
	for {
		select {
		case j := <-s.queue:
			busy := s.busy.Add(1)
			s.metrics.pool(busy, int64(s.poolSize))
			s.handle(j, logger)
			s.busy.Add(-1)
			close(j.done)
		case <-s.quit:
			return
		}
	}
}

func (s *Supervisor) handle(j *job, logger *log.Logger) {
	start := time.Now()
	rw := &statusWriter{ResponseWriter: j.w}

	var p *panicInfo
	if s.rt.Timeout.Enabled() {
		p = s.serveWithDeadline(rw, j.r)
	} else {
		p = s.serve(rw, j.r)
	}

	if p != nil {
		s.metrics.panic()
		if errors.Is(p.err(), http.ErrAbortHandler) {
			j.abort = true
		} else {
			logger.Error("application panicked", "path", j.r.URL.Path, "panic", p.value, "stack", string(p.stack))
			if rw.wroteHeader {
				j.abort = true
			} else {
				http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}
	}

	status := rw.code()
	s.metrics.request(status, time.Since(start))
	logger.Debug("request", "method", j.r.Method, "path", j.r.URL.Path, "status", status, "duration", time.Since(start))
}

type panicInfo struct {
	value any
	stack []byte
}

func (p *panicInfo) err() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

// serve calls the application, recovering a panic.
func (s *Supervisor) serve(w http.ResponseWriter, r *http.Request) (p *panicInfo) {
	defer func() {
		if v := recover(); v != nil {
			p = &panicInfo{value: v, stack: debug.Stack()}
		}
	}()
	s.app.ServeHTTP(w, r)
	return nil
}

// serveWithDeadline runs the application against a buffered response and
// answers 504 if it does not finish in time. The abandoned call keeps
// running with a cancelled context; its output is discarded.
func (s *Supervisor) serveWithDeadline(w *statusWriter, r *http.Request) *panicInfo {
	ctx, cancel := context.WithTimeout(r.Context(), s.rt.Timeout.Duration())
	defer cancel()

	tw := &bufferedWriter{header: make(http.Header)}
	done := make(chan *panicInfo, 1)
	go func() {
		done <- s.serve(tw, r.WithContext(ctx))
	}()

	select {
	case p := <-done:
		if p != nil {
			return p
		}
		tw.flushTo(w)
		return nil
	case <-ctx.Done():
		tw.expire()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.metrics.timeout()
			http.Error(w, http.StatusText(http.StatusGatewayTimeout), http.StatusGatewayTimeout)
		}
		return nil
	}
}

// statusWriter records the status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status, w.wroteHeader = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.WriteHeader(http.StatusOK)
		}
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) code() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.status
}

// errResponseExpired is returned to an application still writing after its
// deadline passed.
var errResponseExpired = errors.New("response abandoned after request timeout")

// bufferedWriter holds a response until the application returns.
type bufferedWriter struct {
	mu      sync.Mutex
	header  http.Header
	body    bytes.Buffer
	status  int
	expired bool
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == 0 && !w.expired {
		w.status = code
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.expired {
		return 0, errResponseExpired
	}
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *bufferedWriter) expire() {
	w.mu.Lock()
	w.expired = true
	w.mu.Unlock()
}

func (w *bufferedWriter) flushTo(dst http.ResponseWriter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	maps.Copy(dst.Header(), w.header)
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	dst.WriteHeader(status)
	_, _ = dst.Write(w.body.Bytes()) // client gone; nothing to report to
}
