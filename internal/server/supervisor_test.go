// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/berth-run/berth/internal/app"
	"github.com/berth-run/berth/internal/core/serverbase"
	"github.com/berth-run/berth/internal/launch"
)

func testRuntime(ref string, mutate ...func(*launch.Config)) *launch.Runtime {
	cfg := launch.Default()
	cfg.App = ref
	cfg.Bind = launch.MustParseBind("127.0.0.1:8000")
	for _, m := range mutate {
		m(&cfg)
	}
	return &launch.Runtime{
		Config: cfg,
		Listen: launch.ResolvedBind{Host: "127.0.0.1", Port: 8000, Policy: launch.PolicyFixed},
	}
}

// loopback binds an ephemeral port regardless of the requested address and
// counts how often it was asked to.
type loopback struct {
	calls atomic.Int32
}

func (l *loopback) listen(ctx context.Context, network, _ string) (net.Listener, error) {
	l.calls.Add(1)
	var lc net.ListenConfig
	return lc.Listen(ctx, network, "127.0.0.1:0")
}

func startSupervisor(t *testing.T, rt *launch.Runtime, opts ...Option) (*Supervisor, string) {
	t.Helper()
	lb := &loopback{}
	s := New(rt, append([]Option{WithListen(lb.listen)}, opts...)...)
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, "http://" + s.Addr().String()
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Errorf("GET %s: %v", url, err)
		return 0, ""
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestSupervisor_ServeAndDrain(t *testing.T) {
	t.Parallel()

	s, base := startSupervisor(t, testRuntime(app.StatusRef))
	if s.State() != serverbase.StateServing {
		t.Fatalf("state = %s, want serving", s.State())
	}

	code, body := get(t, base+"/health")
	if code != http.StatusOK || !strings.Contains(body, "healthy") {
		t.Errorf("GET /health = %d %s", code, body)
	}

	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if s.State() != serverbase.StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
	if _, err := http.Get(base + "/health"); err == nil {
		t.Error("socket still accepting after drain")
	}
}

func TestSupervisor_AppLoadFailureBindsNothing(t *testing.T) {
	t.Parallel()

	lb := &loopback{}
	s := New(testRuntime("missing:app"), WithListen(lb.listen))
	err := s.Start(t.Context())

	if !errors.Is(err, ErrAppLoad) || !errors.Is(err, app.ErrAppNotFound) {
		t.Fatalf("Start() error = %v, want ErrAppLoad wrapping ErrAppNotFound", err)
	}
	if n := lb.calls.Load(); n != 0 {
		t.Errorf("listen called %d times, want 0", n)
	}
	if s.State() != serverbase.StateFailed || s.Addr() != nil {
		t.Errorf("state = %s addr = %v, want failed with no address", s.State(), s.Addr())
	}
}

func TestSupervisor_BindFailureNoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	refused := errors.New("address already in use")
	s := New(testRuntime(app.StatusRef), WithListen(func(context.Context, string, string) (net.Listener, error) {
		calls.Add(1)
		return nil, refused
	}))

	err := s.Start(t.Context())
	if !errors.Is(err, ErrBind) || !errors.Is(err, refused) {
		t.Fatalf("Start() error = %v, want ErrBind", err)
	}
	var se *StartError
	if !errors.As(err, &se) || se.Addr != "127.0.0.1:8000" {
		t.Errorf("StartError = %+v", se)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("listen called %d times, want exactly 1", n)
	}
	if s.State() != serverbase.StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestSupervisor_BindFailureOnOccupiedPort(t *testing.T) {
	t.Parallel()

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = occupied.Close() }()
	port := occupied.Addr().(*net.TCPAddr).Port

	rt := testRuntime(app.StatusRef)
	rt.Listen.Port = port
	err = New(rt).Start(t.Context())
	if !errors.Is(err, ErrBind) {
		t.Fatalf("Start() error = %v, want ErrBind", err)
	}
}

func TestSupervisor_ConcurrentRequestsAreIsolated(t *testing.T) {
	t.Parallel()

	_, base := startSupervisor(t, testRuntime(app.EchoRef))

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Go(func() {
			id := fmt.Sprintf("req-%d", i)
			payload := strings.Repeat(id+";", 100)
			req, _ := http.NewRequest(http.MethodPost, base+"/echo/"+id, strings.NewReader(payload))
			req.Header.Set(app.RequestIDHeader, id)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				errs <- err
				return
			}
			defer func() { _ = resp.Body.Close() }()

			var doc struct{ ID, Path, Body string }
			if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
				errs <- err
				return
			}
			if doc.ID != id || doc.Path != "/echo/"+id || doc.Body != payload {
				errs <- fmt.Errorf("request %s got response for %s", id, doc.ID)
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestSupervisor_PanicBecomes500(t *testing.T) {
	t.Parallel()

	s, base := startSupervisor(t, testRuntime(app.PanicRef, func(c *launch.Config) { c.Threads = 1 }))

	for range 3 {
		if code, _ := get(t, base+"/panic"); code != http.StatusInternalServerError {
			t.Errorf("GET /panic = %d, want 500", code)
		}
	}
	// The single thread survived every panic.
	if code, body := get(t, base+"/"); code != http.StatusOK || body != "ok" {
		t.Errorf("GET / after panics = %d %q", code, body)
	}
	if s.State() != serverbase.StateServing {
		t.Errorf("state = %s after panics, want serving", s.State())
	}
}

func TestSupervisor_DisabledTimeoutLetsLongRequestsFinish(t *testing.T) {
	t.Parallel()

	rt := testRuntime(app.SleepRef)
	if rt.Timeout.Enabled() {
		t.Fatal("default timeout is enabled")
	}
	s, base := startSupervisor(t, rt)

	if s.srv.ReadTimeout != 0 || s.srv.WriteTimeout != 0 || s.srv.IdleTimeout != 0 {
		t.Errorf("http.Server deadlines read=%v write=%v idle=%v, want none",
			s.srv.ReadTimeout, s.srv.WriteTimeout, s.srv.IdleTimeout)
	}
	if code, body := get(t, base+"/?d=1500ms"); code != http.StatusOK || !strings.Contains(body, "1.5s") {
		t.Errorf("GET /?d=1500ms = %d %s", code, body)
	}
}

func TestSupervisor_EnabledTimeoutAnswers504(t *testing.T) {
	t.Parallel()

	rt := testRuntime(app.SleepRef, func(c *launch.Config) {
		c.Timeout = launch.Deadline(100 * time.Millisecond)
	})
	_, base := startSupervisor(t, rt)

	if code, _ := get(t, base+"/?d=5s"); code != http.StatusGatewayTimeout {
		t.Errorf("GET /?d=5s = %d, want 504", code)
	}
	if code, _ := get(t, base+"/?d=10ms"); code != http.StatusOK {
		t.Errorf("GET /?d=10ms = %d, want 200", code)
	}
}

func TestSupervisor_PoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var (
		inFlight, peak atomic.Int32
		release        = make(chan struct{})
	)
	reg := app.NewRegistry()
	reg.MustRegister("gate:app", func(context.Context, app.Options) (app.Application, error) {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			w.WriteHeader(http.StatusNoContent)
		}), nil
	})

	rt := testRuntime("gate:app", func(c *launch.Config) { c.Workers, c.Threads = 2, 2 })
	_, base := startSupervisor(t, rt, WithRegistry(reg))

	var wg sync.WaitGroup
	for range 7 {
		wg.Go(func() {
			if code, _ := get(t, base); code != http.StatusNoContent {
				t.Errorf("status = %d", code)
			}
		})
	}

	deadline := time.Now().Add(5 * time.Second)
	for inFlight.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := inFlight.Load(); got != 4 {
		t.Errorf("in flight = %d, want the pool size 4", got)
	}
	close(release)
	wg.Wait()

	if p := peak.Load(); p != 4 {
		t.Errorf("peak concurrency = %d, want 4", p)
	}
}

func TestSupervisor_DrainWaitsForInFlight(t *testing.T) {
	t.Parallel()

	s, base := startSupervisor(t, testRuntime(app.SleepRef))

	result := make(chan int, 1)
	go func() {
		code, _ := get(t, base+"/?d=400ms")
		result <- code
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.busy.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	start := time.Now()
	if err := s.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if time.Since(start) < 200*time.Millisecond {
		t.Error("Shutdown returned before the in-flight request finished")
	}
	if code := <-result; code != http.StatusOK {
		t.Errorf("in-flight request = %d, want 200", code)
	}
}

func TestSupervisor_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	lb := &loopback{}
	s := New(testRuntime(app.StatusRef), WithListen(lb.listen))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if err := s.WaitForReady(t.Context()); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if s.State() != serverbase.StateStopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
}

type recordingStatsd struct {
	statsd.NoOpClient
	mu    sync.Mutex
	incrs []string
}

func (r *recordingStatsd) Incr(name string, tags []string, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incrs = append(r.incrs, name+"|"+strings.Join(tags, ","))
	return nil
}

func TestSupervisor_Metrics(t *testing.T) {
	t.Parallel()

	rec := &recordingStatsd{}
	_, base := startSupervisor(t, testRuntime(app.PanicRef), WithStatsd(rec))

	get(t, base+"/")
	get(t, base+"/panic")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, want := range []string{"requests|status:200", "requests|status:500", "panics|"} {
		if !slices.Contains(rec.incrs, want) {
			t.Errorf("metrics %v missing %q", rec.incrs, want)
		}
	}
}
