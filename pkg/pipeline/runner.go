package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratesig/pkg/archive"
	"github.com/matzehuels/cratesig/pkg/build"
	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/flair"
	"github.com/matzehuels/cratesig/pkg/httputil"
	"github.com/matzehuels/cratesig/pkg/integrations"
	"github.com/matzehuels/cratesig/pkg/integrations/crates"
	"github.com/matzehuels/cratesig/pkg/manifest"
	"github.com/matzehuels/cratesig/pkg/observability"
	"github.com/matzehuels/cratesig/pkg/toolexec"
)

// =============================================================================
// Stage Interfaces
// =============================================================================

// Registry lists and downloads crates. [*crates.Client] implements it.
type Registry interface {
	ListTopCrates(ctx context.Context, n int) ([]string, error)
	DownloadCrate(ctx context.Context, name, version, dir string) (*crates.Download, error)
}

// Builder compiles a source tree into static libraries. [*build.Driver]
// implements it.
type Builder interface {
	BuildStaticLib(ctx context.Context, srcDir, libName string) build.Result
}

// Signer turns static libraries into FLAIR patterns and signatures.
// [*flair.Generator] implements it.
type Signer interface {
	GeneratePatterns(ctx context.Context, libs []string, crate string) ([]flair.Pattern, error)
	GenerateSignature(ctx context.Context, patPath string) (*flair.Signature, error)
}

// =============================================================================
// Runner
// =============================================================================

// Runner executes the pipeline for a list of crates, one at a time.
type Runner struct {
	Options  Options
	Registry Registry
	Builder  Builder
	Signer   Signer
	Logger   *log.Logger
}

// NewRunner validates opts and wires the default stage implementations.
// All external processes (cargo and the FLAIR tools) go through exec.
func NewRunner(opts Options, exec toolexec.Executor, logger *log.Logger) (*Runner, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	registry := crates.NewClient(crates.Options{
		APIURL:    opts.RegistryURL,
		StaticURL: opts.StaticURL,
		Retry:     httputil.Policy{Attempts: opts.HTTPAttempts},
	})

	driver := build.NewDriver(exec, logger)
	driver.Cargo = opts.Cargo
	driver.CrossTarget = opts.CrossTarget

	return &Runner{
		Options:  opts,
		Registry: registry,
		Builder:  driver,
		Signer:   flair.NewGenerator(opts.FlairDir, opts.OutputDir, exec, logger),
		Logger:   logger,
	}, nil
}

// RunTop processes the n most downloaded crates. n <= 0 uses Options.Top.
// Failing to list the crates is the only error that aborts the run before
// any crate is processed.
func (r *Runner) RunTop(ctx context.Context, n int) (*Report, error) {
	if n <= 0 {
		n = r.Options.Top
	}
	r.Logger.Info("fetching top crates", "count", n)
	names, err := r.Registry.ListTopCrates(ctx, n)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "list top %d crates", n)
	}
	r.Logger.Info("found crates", "count", len(names))

	reqs := make([]Request, len(names))
	for i, name := range names {
		reqs[i] = Request{Name: name}
	}
	return r.Run(ctx, reqs)
}

// RunOne processes a single crate. An empty version selects the latest
// stable release.
func (r *Runner) RunOne(ctx context.Context, name, version string) (*Report, error) {
	if name == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "crate name is required")
	}
	return r.Run(ctx, []Request{{Name: name, Version: version}})
}

// Run processes reqs sequentially. Failures of a single crate are recorded
// in its [PackageResult] and never stop the run; only cancellation of ctx
// does, in which case the partial report is still written and ctx.Err() is
// returned alongside it.
func (r *Runner) Run(ctx context.Context, reqs []Request) (*Report, error) {
	if err := r.prepare(); err != nil {
		return nil, err
	}

	report := NewReport()
	for i, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		r.Logger.Info(fmt.Sprintf("[%d/%d] processing crate", i+1, len(reqs)), "crate", req.Name)
		res := r.process(ctx, req)
		r.logResult(res)
		report.Add(res)
	}
	report.Finish()

	if path, err := report.Write(r.Options.OutputDir); err != nil {
		r.Logger.Error("failed to write report", "err", err)
	} else {
		r.Logger.Info("report written", "path", path)
	}
	return report, ctx.Err()
}

func (r *Runner) prepare() error {
	for _, dir := range []string{r.Options.OutputDir, r.Options.CratesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "create %s", dir)
		}
	}
	return nil
}

// =============================================================================
// Per-Crate Processing
// =============================================================================

// process runs every stage for one crate and never returns an error: the
// outcome, including recovered panics, is in the result.
func (r *Runner) process(ctx context.Context, req Request) (res PackageResult) {
	res = PackageResult{Name: req.Name, Version: req.Version}
	hooks := observability.Pipeline()
	start := time.Now()
	hooks.OnPackageStart(ctx, req.Name)

	defer func() {
		if p := recover(); p != nil {
			res.fail(errors.New(errors.ErrCodeInternal, "panic in stage %s: %v", res.Stage, p))
		}
		res.Duration = time.Since(start)
		hooks.OnPackageComplete(ctx, req.Name, res.Duration, res.Err)
	}()

	if err := r.runStages(ctx, &res); err != nil {
		res.fail(err)
	}
	return res
}

func (r *Runner) runStages(ctx context.Context, res *PackageResult) error {
	var dl *crates.Download
	err := r.stage(ctx, res, StageDownload, func() error {
		var err error
		dl, err = r.Registry.DownloadCrate(ctx, res.Name, res.Version, r.Options.CratesDir)
		return registryError(err, res.Name)
	})
	if err != nil {
		return err
	}
	res.Version = dl.Version

	var tree *archive.SourceTree
	err = r.stage(ctx, res, StageExtract, func() error {
		var err error
		tree, err = archive.ExtractCrate(dl.ArchivePath, r.Options.CratesDir, dl.Name, dl.Version)
		return err
	})
	if err != nil {
		return err
	}

	var libName string
	err = r.stage(ctx, res, StagePatch, func() error {
		m, err := manifest.PatchFile(tree.ManifestPath)
		if err != nil {
			return err
		}
		libName = manifest.LibName(m)
		return nil
	})
	if err != nil {
		return err
	}

	var built build.Result
	err = r.stage(ctx, res, StageBuild, func() error {
		built = r.Builder.BuildStaticLib(ctx, tree.Dir, libName)
		for _, f := range built.Failures {
			res.warn(fmt.Sprintf("build %s: %v", f.Target, f.Err))
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	res.Artifacts = built.Artifacts
	if len(built.Artifacts) == 0 {
		r.Logger.Warn("no static libraries built", "crate", res.Name)
		res.Status = StatusNoArtifacts
		return nil
	}

	libs := make([]string, len(built.Artifacts))
	for i, a := range built.Artifacts {
		libs[i] = a.Path
	}
	err = r.stage(ctx, res, StagePatterns, func() error {
		var err error
		res.Patterns, err = r.Signer.GeneratePatterns(ctx, libs, res.Name)
		return err
	})
	if err != nil {
		return err
	}
	if len(res.Patterns) == 0 {
		r.Logger.Warn("no pattern files generated", "crate", res.Name)
		res.Status = StatusNoPatterns
		return nil
	}

	err = r.stage(ctx, res, StageSignatures, func() error {
		for _, pat := range res.Patterns {
			sig, err := r.Signer.GenerateSignature(ctx, pat.Path)
			if errors.IsFatal(err) {
				return err
			}
			if err != nil {
				r.Logger.Warn("signature not generated", "pattern", pat.Path, "err", err)
				res.warn(err.Error())
				continue
			}
			if sig != nil {
				res.Signatures = append(res.Signatures, *sig)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	res.Status = StatusNoSignatures
	if len(res.Signatures) > 0 {
		res.Status = StatusSigned
	}
	return nil
}

// stage records name as the current stage, runs fn and reports timing to
// the pipeline hooks.
func (r *Runner) stage(ctx context.Context, res *PackageResult, name string, fn func() error) error {
	res.Stage = name
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, res.Name, name)
	start := time.Now()
	err := fn()
	hooks.OnStageComplete(ctx, res.Name, name, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (r *Runner) logResult(res PackageResult) {
	l := r.Logger.With("crate", res.Name, "version", res.Version, "duration", res.Duration.Round(time.Millisecond))
	switch res.Status {
	case StatusSigned:
		l.Info("crate signed", "signatures", len(res.Signatures))
	case StatusFailed:
		l.Error("crate failed", "stage", res.Stage, "err", res.Err)
	default:
		l.Warn("crate produced no signatures", "status", res.Status)
	}
}

// registryError attaches a registry error code to a download failure.
func registryError(err error, name string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	case stderrors.Is(err, integrations.ErrNotFound):
		return errors.Wrap(errors.ErrCodePackageNotFound, err, "crate %s", name)
	default:
		return errors.Wrap(errors.ErrCodeNetwork, err, "crate %s", name)
	}
}
