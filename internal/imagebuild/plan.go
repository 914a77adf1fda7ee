// SPDX-License-Identifier: MPL-2.0

package imagebuild

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/berth-run/berth/internal/launch"
	"github.com/berth-run/berth/internal/manifest"
	"github.com/berth-run/berth/internal/recipe"
)

const (
	StepBase           StepKind = "base"
	StepSystemPackages StepKind = "system-packages"
	StepCopyManifest   StepKind = "copy-manifest"
	StepInstallDeps    StepKind = "install-dependencies"
	StepCopySource     StepKind = "copy-source"
	StepDiagnostics    StepKind = "diagnostics"
	StepRuntime        StepKind = "runtime"

	shortKeyLen = 12
)

type (
	// StepKind names a build step independent of its position.
	StepKind string

	// Step is one build step. Key is the layer cache key:
	// sha256(parent key, instruction text, content hash).
	Step struct {
		Index        int
		Kind         StepKind
		Instructions []string
		// ContentHash covers the files this step copies; empty when it copies none.
		ContentHash string
		Key         string
	}

	// Plan is the complete, deterministic description of one image build.
	Plan struct {
		Recipe   *recipe.Recipe
		Manifest *manifest.Manifest
		Launch   launch.Config
		Steps    []Step
		// Warnings are non-fatal findings, such as a missing entry file.
		Warnings []string

		sourceDir string
		files     []string
	}
)

// NewPlan reads the manifest and source tree named by r and derives the step
// list and cache keys.
func NewPlan(r *recipe.Recipe) (*Plan, error) {
	cfg, err := r.LaunchConfig()
	if err != nil {
		return nil, err
	}
	return NewPlanWithLaunch(r, cfg)
}

// NewPlanWithLaunch is NewPlan with an explicit launch configuration, for
// callers that override the recipe's launch section.
func NewPlanWithLaunch(r *recipe.Recipe, cfg launch.Config) (*Plan, error) {
	if err := recipe.ValidateBaseImage(r.BaseImage); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sourceDir := r.SourceDir()
	if info, err := os.Stat(sourceDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source directory %s: %w", sourceDir, errors.Join(err, os.ErrNotExist))
	}

	m, err := manifest.Load(r.ManifestPath())
	if err != nil {
		return nil, err
	}

	ignore, err := newMatcher(r.Ignore)
	if err != nil {
		return nil, err
	}
	files, err := listTree(sourceDir, ignore)
	if err != nil {
		return nil, err
	}
	manifestRel := filepath.ToSlash(filepath.Clean(r.Manifest))
	if !slices.Contains(files, manifestRel) {
		return nil, fmt.Errorf("manifest %s is excluded by the ignore patterns", r.Manifest)
	}

	p := &Plan{
		Recipe:    r,
		Manifest:  m,
		Launch:    cfg,
		sourceDir: sourceDir,
		files:     files,
	}

	if _, err := os.Stat(filepath.Join(sourceDir, r.Entrypoint)); err != nil {
		p.Warnings = append(p.Warnings, fmt.Sprintf("entry file %s not found in %s", r.Entrypoint, sourceDir))
	}

	if err := p.buildSteps(manifestRel); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) buildSteps(manifestRel string) error {
	r := p.Recipe
	var steps []Step

	steps = append(steps, Step{Kind: StepBase, Instructions: []string{
		"FROM " + r.BaseImage,
		"WORKDIR " + r.Workdir,
	}})

	if len(r.SystemPackages) > 0 {
		run, err := systemPackagesCommand(r.BaseImage, r.SystemPackages)
		if err != nil {
			return err
		}
		steps = append(steps, Step{Kind: StepSystemPackages, Instructions: []string{"RUN " + run}})
	}

	manifestHash, err := HashFile(filepath.Join(p.sourceDir, filepath.FromSlash(manifestRel)))
	if err != nil {
		return fmt.Errorf("hash manifest: %w", err)
	}
	copyManifest, err := copyInstruction(manifestRel, manifestRel)
	if err != nil {
		return err
	}
	steps = append(steps, Step{Kind: StepCopyManifest, Instructions: []string{copyManifest}, ContentHash: manifestHash})

	install, err := installCommand(p.Manifest, manifestRel)
	if err != nil {
		return err
	}
	steps = append(steps, Step{Kind: StepInstallDeps, Instructions: []string{"RUN " + install}})

	sourceHash, err := hashTree(p.sourceDir, p.files)
	if err != nil {
		return fmt.Errorf("hash source tree: %w", err)
	}
	steps = append(steps, Step{Kind: StepCopySource, Instructions: []string{"COPY . ."}, ContentHash: sourceHash})

	if r.Diagnostics {
		diag, err := diagnosticsCommand(r.Workdir, r.Entrypoint)
		if err != nil {
			return err
		}
		steps = append(steps, Step{Kind: StepDiagnostics, Instructions: []string{"RUN " + diag}})
	}

	runtime, err := runtimeInstructions(p.Launch)
	if err != nil {
		return err
	}
	steps = append(steps, Step{Kind: StepRuntime, Instructions: runtime})

	parent := ""
	for i := range steps {
		steps[i].Index = i + 1
		steps[i].Key = layerKey(parent, steps[i].Instructions, steps[i].ContentHash)
		parent = steps[i].Key
	}
	p.Steps = steps
	return nil
}

func layerKey(parent string, instructions []string, contentHash string) string {
	h := sha256.New()
	h.Write([]byte(parent))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(instructions, "\n")))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Key is the key of the last step; it identifies the whole image.
func (p *Plan) Key() string {
	return p.Steps[len(p.Steps)-1].Key
}

// ShortKey is the key prefix used in image tags.
func (p *Plan) ShortKey() string {
	return p.Key()[:shortKeyLen]
}

// ImageRef is the final tag, "<image>:<short key>".
func (p *Plan) ImageRef() string {
	return p.Recipe.Image + ":" + p.ShortKey()
}

// StagingRef is the tag the engine builds into before the build is known
// to have succeeded.
func (p *Plan) StagingRef() string {
	return p.Recipe.Image + ":staging-" + p.ShortKey()
}

// ExtraRefs are the recipe's additional tags in image:tag form.
func (p *Plan) ExtraRefs() []string {
	refs := make([]string, 0, len(p.Recipe.Tags))
	for _, t := range p.Recipe.Tags {
		refs = append(refs, p.Recipe.Image+":"+t)
	}
	return refs
}

// Step returns the step of the given kind.
func (p *Plan) Step(kind StepKind) (Step, bool) {
	for _, s := range p.Steps {
		if s.Kind == kind {
			return s, true
		}
	}
	return Step{}, false
}

// Files returns the context-relative paths copied by the source step.
func (p *Plan) Files() []string {
	return slices.Clone(p.files)
}

// Diff returns the first step of p whose key differs from the step of the
// same kind in other, or nil when every layer would be reused.
func (p *Plan) Diff(other *Plan) *Step {
	for i := range p.Steps {
		s := &p.Steps[i]
		o, ok := other.Step(s.Kind)
		if !ok || o.Key != s.Key {
			return s
		}
	}
	return nil
}

// Labels are attached to the built image for later inspection.
func (p *Plan) Labels() map[string]string {
	return map[string]string{
		"run.berth.plan-key":        p.Key(),
		"run.berth.manifest-digest": p.Manifest.Digest(),
		"run.berth.base-image":      p.Recipe.BaseImage,
	}
}
