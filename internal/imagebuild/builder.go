// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/berth-run/berth/internal/container"
	"github.com/berth-run/berth/internal/recipe"
)

type (
	// Builder runs plans through a container engine.
	Builder struct {
		engine   container.Engine
		logger   *log.Logger
		stdout   io.Writer
		stderr   io.Writer
		workRoot string
		tailSize int
	}

	// Option configures a Builder.
	Option func(*Builder)

	// BuildOptions control a single build.
	BuildOptions struct {
		// NoCache disables the engine's layer cache and always rebuilds.
		NoCache bool
		// Force rebuilds even when the final tag already exists.
		Force bool
		// Pull refreshes the base image.
		Pull bool
		// ExtraTags are added to the recipe's tags.
		ExtraTags []string
	}

	// Result describes a finished build.
	Result struct {
		Plan *Plan
		// Image is the final image reference.
		Image string
		// Tags are every name the image received, Image first.
		Tags []string
		// Cached is true when an existing image was reused without building.
		Cached   bool
		Duration time.Duration
	}
)

// WithLogger sets the logger. The default discards everything below warn.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithOutput sets where engine output is streamed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(b *Builder) { b.stdout, b.stderr = stdout, stderr }
}

// WithWorkRoot sets the parent directory of temporary build contexts.
func WithWorkRoot(dir string) Option {
	return func(b *Builder) { b.workRoot = dir }
}

// NewBuilder creates a Builder for engine.
func NewBuilder(engine container.Engine, opts ...Option) *Builder {
	b := &Builder{
		engine:   engine,
		logger:   log.NewWithOptions(os.Stderr, log.Options{Prefix: "build", Level: log.WarnLevel}),
		stdout:   os.Stderr,
		stderr:   os.Stderr,
		tailSize: defaultTailSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.workRoot == "" {
		b.workRoot = defaultWorkRoot()
	}
	return b
}

// Cached reports whether the final image for r's current plan already exists.
func (b *Builder) Cached(ctx context.Context, r *recipe.Recipe) (bool, *Plan, error) {
	plan, err := NewPlan(r)
	if err != nil {
		return false, nil, err
	}
	exists, err := b.engine.ImageExists(ctx, plan.ImageRef())
	if err != nil {
		return false, plan, err
	}
	return exists, plan, nil
}

// Build plans and builds r.
func (b *Builder) Build(ctx context.Context, r *recipe.Recipe, opts BuildOptions) (*Result, error) {
	plan, err := NewPlan(r)
	if err != nil {
		return nil, err
	}
	return b.BuildPlan(ctx, plan, opts)
}

// BuildPlan builds an existing plan. The engine builds into the staging tag;
// the final and extra tags are only applied after it succeeds. On failure the
// staging tag is removed best-effort and a *BuildError is returned.
func (b *Builder) BuildPlan(ctx context.Context, plan *Plan, opts BuildOptions) (*Result, error) {
	start := time.Now()
	final := plan.ImageRef()
	tags := append([]string{final}, plan.ExtraRefs()...)
	for _, t := range opts.ExtraTags {
		tags = append(tags, plan.Recipe.Image+":"+t)
	}

	for _, w := range plan.Warnings {
		b.logger.Warn(w)
	}

	if !opts.Force && !opts.NoCache {
		if exists, _ := b.engine.ImageExists(ctx, final); exists { //nolint:errcheck // Error treated as "not found"
			if applied, err := b.tagAll(ctx, final, tags[1:]); err != nil {
				b.removeTags(applied)
				return nil, err
			}
			b.logger.Info("image up to date", "image", final)
			return &Result{Plan: plan, Image: final, Tags: tags, Cached: true, Duration: time.Since(start)}, nil
		}
	}

	bc, err := plan.prepareContext(b.workRoot)
	if err != nil {
		return nil, err
	}
	defer bc.Cleanup()

	staging := plan.StagingRef()
	b.logger.Info("building image", "image", final, "steps", len(plan.Steps), "engine", b.engine.Name())

	tail := newTailWriter(b.tailSize)
	buildErr := b.engine.Build(ctx, container.BuildOptions{
		ContextDir: bc.Dir,
		Dockerfile: bc.Dockerfile,
		Tags:       []string{staging},
		Labels:     plan.Labels(),
		NoCache:    opts.NoCache,
		Pull:       opts.Pull,
		Stdout:     io.MultiWriter(b.stdout, tail),
		Stderr:     io.MultiWriter(b.stderr, tail),
	})
	if buildErr != nil {
		b.removeStaging(staging)
		be := plan.classify(tail.String(), buildErr)
		b.logger.Error("build failed", "image", final, "error", be)
		return nil, be
	}

	if applied, err := b.tagAll(ctx, staging, tags); err != nil {
		// A final tag left behind would make the next build report up to date.
		b.removeTags(append(applied, staging))
		return nil, err
	}
	b.removeStaging(staging)

	d := time.Since(start)
	b.logger.Info("image built", "image", final, "duration", d.Round(time.Millisecond))
	return &Result{Plan: plan, Image: final, Tags: tags, Duration: d}, nil
}

// tagAll applies targets in order and returns the ones applied before the
// first failure.
func (b *Builder) tagAll(ctx context.Context, source string, targets []string) ([]string, error) {
	var applied []string
	for _, t := range targets {
		if t == source {
			continue
		}
		if err := b.engine.Tag(ctx, source, t); err != nil {
			return applied, fmt.Errorf("tag %s as %s: %w", source, t, err)
		}
		applied = append(applied, t)
	}
	return applied, nil
}

// removeStaging drops the staging name. It runs detached from the build
// context so a cancelled build still cleans up.
func (b *Builder) removeStaging(staging string) {
	b.removeTags([]string{staging})
}

func (b *Builder) removeTags(tags []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, t := range tags {
		if err := b.engine.RemoveImage(ctx, t, false); err != nil {
			b.logger.Debug("tag not removed", "tag", t, "error", err)
		}
	}
}
