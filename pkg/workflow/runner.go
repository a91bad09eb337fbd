package workflow

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/Godsmith/hatch/pkg/builder"
	"github.com/Godsmith/hatch/pkg/ctxlog"
	"github.com/Godsmith/hatch/pkg/envs"
	"github.com/Godsmith/hatch/pkg/project"
	"github.com/Godsmith/hatch/pkg/publish"
	"github.com/Godsmith/hatch/pkg/run"
)

// RefEnvVar exposes the triggering ref to every run step.
const RefEnvVar = "HATCH_CI_REF"

// Runner executes a workflow definition against a project.
type Runner struct {
	cfg     *project.Config
	envMap  envs.Map
	version string

	// DryRun only prints run steps instead of executing them. Builtin
	// steps are skipped entirely.
	DryRun bool
}

// NewRunner creates a runner. The version is embedded into archives built
// by build steps.
func NewRunner(cfg *project.Config, envMap envs.Map, version string) *Runner {
	return &Runner{
		cfg:     cfg,
		envMap:  envMap,
		version: version,
	}
}

// Run executes all jobs of the definition in dependency order. The ref has
// to match one of the trigger patterns.
func (r *Runner) Run(ctx context.Context, def *Definition, ref string) error {
	if !def.Triggered(ref) {
		return eris.Errorf("ref %s does not match any trigger pattern", ref)
	}

	order, err := def.Order()
	if err != nil {
		return err
	}

	runID, err := nanoid.Generate(nanoid.DefaultAlphabet, 12)
	if err != nil {
		return eris.Wrap(err, "failed to generate run ID")
	}

	logger := ctxlog.From(ctx).With().Str("run", runID).Logger()
	ctx = ctxlog.WithLogger(ctx, &logger)

	if group := def.Group(ref); group != "" {
		lock, err := AcquireLock(r.cfg.Root, group, runID, def.Concurrency.CancelInProgress)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	state := &runState{
		stageDir: filepath.Join(r.cfg.Root, project.StateDir, "runs", runID, "artifacts"),
	}

	logger.Info().Str("ref", ref).Msgf("Starting workflow %s", def.Name)
	for _, id := range order {
		jobLogger := logger.With().Str("job", id).Logger()
		jobCtx := ctxlog.WithLogger(ctx, &jobLogger)
		jobLogger.Info().Msgf("Running job %s", id)

		err = r.runJob(jobCtx, def.Jobs[id], id, ref, state)
		if err != nil {
			return eris.Wrapf(err, "job %s failed", id)
		}
	}

	return nil
}

type runState struct {
	stageDir string
	built    []string
}

func (r *Runner) runJob(ctx context.Context, job Job, id, ref string, state *runState) error {
	overrides := map[string]string{RefEnvVar: ref}
	for name, value := range job.Env {
		overrides[name] = value
	}

	for idx, step := range job.Steps {
		if step.Name != "" {
			ctxlog.From(ctx).Info().Msgf("Step: %s", step.Name)
		}

		var err error
		if step.Run != "" {
			err = r.runShellStep(ctx, step, overrides)
		} else {
			err = r.runBuiltinStep(ctx, step, state)
		}

		if err != nil {
			return eris.Wrapf(err, "step #%d", idx+1)
		}
	}

	return nil
}

func (r *Runner) runShellStep(ctx context.Context, step Step, overrides map[string]string) error {
	env, ok := r.envMap["default"]
	if !ok {
		return eris.New("the default environment is not defined")
	}

	commands := []envs.Command{{Text: step.Run}}
	return run.Commands(ctx, env, commands, run.Options{
		Dir:       r.cfg.Root,
		DryRun:    r.DryRun,
		Overrides: overrides,
	})
}

func (r *Runner) runBuiltinStep(ctx context.Context, step Step, state *runState) error {
	if r.DryRun {
		ctxlog.From(ctx).Info().Msgf("Would run builtin %s", step.Uses)
		return nil
	}

	switch step.Uses {
	case "build":
		return r.buildStep(ctx, step, state)
	case "upload-artifact":
		return r.uploadArtifactStep(ctx, step, state)
	case "download-artifact":
		return r.downloadArtifactStep(ctx, step, state)
	case "publish":
		return r.publishStep(ctx, step, state)
	default:
		return eris.Errorf("unknown builtin %s", step.Uses)
	}
}

func (r *Runner) buildStep(ctx context.Context, step Step, state *runState) error {
	targets := builder.DefaultTargets
	if target := step.With["target"]; target != "" {
		targets = []string{target}
	}

	bld := builder.New(r.cfg, r.version)
	for _, target := range targets {
		artifact, err := bld.Build(ctx, target)
		if err != nil {
			return err
		}

		state.built = append(state.built, artifact.Path)
	}

	return nil
}

func (r *Runner) uploadArtifactStep(ctx context.Context, step Step, state *runState) error {
	name := step.With["name"]
	if name == "" {
		return eris.New("upload-artifact needs a name")
	}

	files, err := r.stepFiles(step, state)
	if err != nil {
		return err
	}

	dest := filepath.Join(state.stageDir, name)
	err = os.MkdirAll(dest, 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	for _, file := range files {
		err = copyFile(file, filepath.Join(dest, filepath.Base(file)))
		if err != nil {
			return err
		}
	}

	ctxlog.From(ctx).Info().Msgf("Staged %d file(s) as artifact %s", len(files), name)
	return nil
}

func (r *Runner) downloadArtifactStep(ctx context.Context, step Step, state *runState) error {
	name := step.With["name"]
	if name == "" {
		return eris.New("download-artifact needs a name")
	}

	source := filepath.Join(state.stageDir, name)
	items, err := os.ReadDir(source)
	if err != nil {
		return eris.Errorf("artifact %s was never uploaded", name)
	}

	dest := r.cfg.Root
	if sub := step.With["path"]; sub != "" {
		dest = filepath.Join(dest, sub)
	}
	err = os.MkdirAll(dest, 0770)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	restored := 0
	for _, item := range items {
		if item.IsDir() {
			continue
		}

		err = copyFile(filepath.Join(source, item.Name()), filepath.Join(dest, item.Name()))
		if err != nil {
			return err
		}
		restored++
	}

	ctxlog.From(ctx).Info().Msgf("Restored %d file(s) from artifact %s", restored, name)
	return nil
}

func (r *Runner) publishStep(ctx context.Context, step Step, state *runState) error {
	files, err := r.stepFiles(step, state)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return eris.New("no files to publish")
	}

	return publish.Artifacts(ctx, r.cfg, files, publish.SHA256, publish.Options{
		SkipExisting: step.With["skip-existing"] == "true",
	})
}

// stepFiles resolves the files a step operates on: the path glob if given,
// otherwise whatever build steps produced so far.
func (r *Runner) stepFiles(step Step, state *runState) ([]string, error) {
	pattern := step.With["path"]
	if pattern == "" {
		if len(state.built) == 0 {
			return nil, eris.New("no path given and nothing was built yet")
		}

		return state.built, nil
	}

	matches, err := filepath.Glob(filepath.Join(r.cfg.Root, pattern))
	if err != nil {
		return nil, eris.Wrapf(err, "invalid pattern %s", pattern)
	}

	files := []string{}
	for _, match := range matches {
		info, err := os.Stat(match)
		if err == nil && !info.IsDir() {
			files = append(files, match)
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, eris.Errorf("pattern %s did not match any files", pattern)
	}

	return files, nil
}

func copyFile(source, dest string) error {
	input, err := os.Open(source)
	if err != nil {
		return eris.Wrapf(err, "could not open %s", source)
	}
	defer input.Close()

	output, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "could not create %s", dest)
	}
	defer output.Close()

	_, err = io.Copy(output, input)
	if err != nil {
		return eris.Wrapf(err, "failed to copy %s to %s", source, dest)
	}

	return nil
}
