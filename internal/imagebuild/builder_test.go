// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/berth-run/berth/internal/container"
)

// fakeEngine is an in-memory container.Engine. Build "succeeds" by recording
// the tags unless failOutput is set, in which case it prints failOutput and
// fails like a real engine would.
type fakeEngine struct {
	mu         sync.Mutex
	images     map[string]bool
	builds     []container.BuildOptions
	removed    []string
	failOutput string
	failTag    string
	dockerfile string
	context    []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{images: make(map[string]bool)}
}

func (f *fakeEngine) Name() string                            { return "fake" }
func (f *fakeEngine) Available() bool                         { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "0.0.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, opts)

	df, err := os.ReadFile(opts.Dockerfile)
	if err != nil {
		return err
	}
	f.dockerfile = string(df)
	f.context = nil
	_ = filepath.WalkDir(opts.ContextDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			rel, _ := filepath.Rel(opts.ContextDir, path)
			f.context = append(f.context, filepath.ToSlash(rel))
		}
		return nil
	})

	if f.failOutput != "" {
		_, _ = io.WriteString(opts.Stderr, f.failOutput)
		return errors.New("exit status 1")
	}
	for _, t := range opts.Tags {
		f.images[t] = true
	}
	return nil
}

func (f *fakeEngine) Tag(_ context.Context, source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[source] {
		return fmt.Errorf("no such image: %s", source)
	}
	if target == f.failTag {
		return fmt.Errorf("tag %s: permission denied", target)
	}
	f.images[target] = true
	return nil
}

func (f *fakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *fakeEngine) RemoveImage(_ context.Context, image string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, image)
	if !f.images[image] {
		return fmt.Errorf("no such image: %s", image)
	}
	delete(f.images, image)
	return nil
}

func (f *fakeEngine) Run(context.Context, container.RunOptions) (*container.RunResult, error) {
	return &container.RunResult{}, nil
}

func (f *fakeEngine) has(image string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image]
}

func newTestBuilder(t *testing.T, engine container.Engine) *Builder {
	t.Helper()
	return NewBuilder(engine,
		WithWorkRoot(t.TempDir()),
		WithOutput(io.Discard, io.Discard),
		WithLogger(log.NewWithOptions(io.Discard, log.Options{})),
	)
}

func TestBuilder_TagFailureRemovesAppliedTags(t *testing.T) {
	t.Parallel()

	r := defaultProject(t)
	engine := newFakeEngine()
	engine.failTag = "app:ci"
	b := newTestBuilder(t, engine)

	if _, err := b.Build(t.Context(), r, BuildOptions{ExtraTags: []string{"ci"}}); err == nil {
		t.Fatal("Build() succeeded although tagging failed")
	}
	plan := mustPlan(t, r)
	for _, tag := range []string{plan.ImageRef(), plan.StagingRef()} {
		if engine.has(tag) {
			t.Errorf("%s left behind after a failed tag", tag)
		}
	}

	cached, _, err := b.Cached(t.Context(), r)
	if err != nil {
		t.Fatal(err)
	}
	if cached {
		t.Error("Cached() = true after a failed build")
	}

	engine.failTag = ""
	res, err := b.Build(t.Context(), r, BuildOptions{ExtraTags: []string{"ci"}})
	if err != nil {
		t.Fatalf("Build() retry error = %v", err)
	}
	if res.Cached {
		t.Error("retry reported up to date instead of rebuilding")
	}
}

func TestBuilder_Success(t *testing.T) {
	t.Parallel()

	r := defaultProject(t)
	r.Tags = []string{"latest"}
	writeFile(t, r.SourceDir(), "__pycache__/app.cpython-311.pyc", "bytecode")

	engine := newFakeEngine()
	b := newTestBuilder(t, engine)

	res, err := b.Build(t.Context(), r, BuildOptions{ExtraTags: []string{"ci"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Cached {
		t.Error("first build reported as cached")
	}

	want := []string{res.Plan.ImageRef(), "app:latest", "app:ci"}
	if !slices.Equal(res.Tags, want) {
		t.Errorf("Tags = %v, want %v", res.Tags, want)
	}
	for _, tag := range want {
		if !engine.has(tag) {
			t.Errorf("tag %s not applied", tag)
		}
	}
	if engine.has(res.Plan.StagingRef()) {
		t.Error("staging tag left behind after a successful build")
	}

	if len(engine.builds) != 1 || !slices.Equal(engine.builds[0].Tags, []string{res.Plan.StagingRef()}) {
		t.Errorf("engine built %v, want only the staging tag", engine.builds)
	}
	if engine.dockerfile != res.Plan.Dockerfile() {
		t.Error("engine received a Dockerfile different from the plan")
	}
	if !slices.Equal(engine.context, res.Plan.Files()) {
		t.Errorf("context = %v, want %v", engine.context, res.Plan.Files())
	}
	if slices.Contains(engine.context, "Dockerfile") {
		t.Error("Dockerfile written inside the build context")
	}
}

func TestBuilder_DependencyResolutionFailure(t *testing.T) {
	t.Parallel()

	r := defaultProject(t)
	r.Tags = []string{"latest"}
	resolverOutput := "ERROR: Could not find a version that satisfies the requirement pandas>=2.0 (from versions: none)\n" +
		"ERROR: No matching distribution found for pandas>=2.0\n"

	engine := newFakeEngine()
	engine.failOutput = resolverOutput + MarkerDependencyResolution + "\n"
	b := newTestBuilder(t, engine)

	res, err := b.Build(t.Context(), r, BuildOptions{})
	if res != nil {
		t.Errorf("Build() result = %+v, want nil", res)
	}
	if !errors.Is(err, ErrDependencyResolution) {
		t.Fatalf("Build() error = %v, want ErrDependencyResolution", err)
	}

	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Build() error %T is not *BuildError", err)
	}
	if be.Step == nil || be.Step.Kind != StepInstallDeps {
		t.Errorf("failing step = %v, want install-dependencies", be.Step)
	}
	if !strings.Contains(be.Output, resolverOutput) {
		t.Errorf("Output does not contain the resolver diagnostics verbatim:\n%s", be.Output)
	}

	plan := mustPlan(t, r)
	for _, tag := range []string{plan.ImageRef(), "app:latest"} {
		if engine.has(tag) {
			t.Errorf("tag %s exists after a failed build", tag)
		}
	}
	if !slices.Contains(engine.removed, plan.StagingRef()) {
		t.Error("staging tag not removed after a failed build")
	}
}

func TestBuilder_CachedImageSkipsBuild(t *testing.T) {
	t.Parallel()

	r := defaultProject(t)
	engine := newFakeEngine()
	b := newTestBuilder(t, engine)

	first, err := b.Build(t.Context(), r, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}

	r.Tags = []string{"v2"}
	second, err := b.Build(t.Context(), r, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || second.Image != first.Image {
		t.Errorf("second build = %+v, want cached %s", second, first.Image)
	}
	if len(engine.builds) != 1 {
		t.Errorf("engine built %d times, want 1", len(engine.builds))
	}
	if !engine.has("app:v2") {
		t.Error("extra tag not applied to the cached image")
	}

	if _, err := b.Build(t.Context(), r, BuildOptions{Force: true}); err != nil {
		t.Fatal(err)
	}
	if len(engine.builds) != 2 {
		t.Errorf("forced build did not reach the engine")
	}

	cached, plan, err := b.Cached(t.Context(), r)
	if err != nil || !cached || plan.ImageRef() != first.Image {
		t.Errorf("Cached() = %v, %v, %v", cached, plan, err)
	}
}

func TestBuilder_SourceEditProducesNewImage(t *testing.T) {
	t.Parallel()

	r := defaultProject(t)
	engine := newFakeEngine()
	b := newTestBuilder(t, engine)

	first, err := b.Build(t.Context(), r, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, r.SourceDir(), "app.py", testApp+"# edit\n")
	second, err := b.Build(t.Context(), r, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second.Cached || second.Image == first.Image {
		t.Errorf("edited source reused image %s", first.Image)
	}
	if !engine.has(first.Image) {
		t.Error("previous image removed by a later build")
	}
}

func TestBuilder_WatchRebuildsOnChange(t *testing.T) {
	t.Parallel()

	r := defaultProject(t)
	engine := newFakeEngine()
	b := newTestBuilder(t, engine)

	results := make(chan *Result, 8)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, r, WatchOptions{
			Debounce: 50 * time.Millisecond,
			OnResult: func(res *Result, err error) {
				if err == nil {
					results <- res
				}
			},
		})
	}()

	next := func() *Result {
		t.Helper()
		select {
		case res := <-results:
			return res
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a build")
			return nil
		}
	}

	first := next()
	writeFile(t, r.SourceDir(), "app.py", testApp+"# watched edit\n")
	second := next()
	if second.Image == first.Image {
		t.Errorf("rebuild after edit produced the same image %s", first.Image)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
