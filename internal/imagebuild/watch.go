// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"context"
	"errors"
	"time"

	"github.com/berth-run/berth/internal/recipe"
	"github.com/berth-run/berth/internal/watch"
)

// WatchOptions control Builder.Watch.
type WatchOptions struct {
	BuildOptions
	Debounce time.Duration
	// OnResult is called after every rebuild attempt, successful or not.
	OnResult func(*Result, error)
}

// Watch builds r once and then rebuilds whenever its source tree changes,
// until ctx is cancelled. Each rebuild re-plans from disk, so only the layers
// whose keys changed are rebuilt by the engine. Build failures are reported
// through OnResult and do not stop the loop.
func (b *Builder) Watch(ctx context.Context, r *recipe.Recipe, opts WatchOptions) error {
	var last *Plan
	rebuild := func(ctx context.Context, changed []string) error {
		if len(changed) > 0 {
			b.logger.Info("source changed", "files", len(changed), "first", changed[0])
		}
		plan, err := NewPlan(r)
		if err != nil {
			if opts.OnResult != nil {
				opts.OnResult(nil, err)
			}
			return err
		}
		if last != nil {
			if s := plan.Diff(last); s == nil {
				b.logger.Info("no layer changed", "image", plan.ImageRef())
			} else {
				b.logger.Info("rebuilding", "from_step", s.Index, "kind", s.Kind)
			}
		}
		res, err := b.BuildPlan(ctx, plan, opts.BuildOptions)
		if err == nil {
			last = plan
		}
		if opts.OnResult != nil {
			opts.OnResult(res, err)
		}
		return err
	}

	if err := rebuild(ctx, nil); err != nil && ctx.Err() != nil {
		return nil
	}

	w, err := watch.New(watch.Config{
		Dir:      r.SourceDir(),
		Ignore:   r.Ignore,
		Debounce: opts.Debounce,
		OnChange: rebuild,
		Logger:   b.logger.WithPrefix("watch"),
	})
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
