// Package build drives cargo to produce static libraries for FLAIR.
//
// Each crate is built twice in release mode: once for the host target, which
// yields an ELF archive (lib<name>.a), and once for a cross target,
// x86_64-pc-windows-msvc by default, which yields a COFF archive
// (<name>.lib). A failure of one target never prevents the other from
// running; [Driver.BuildStaticLib] reports what succeeded and what failed
// in its [Result] instead of returning an error.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/toolexec"
)

const (
	// DefaultCargo is the cargo executable looked up on PATH.
	DefaultCargo = "cargo"

	// DefaultCrossTarget is the second target every crate is built for.
	DefaultCrossTarget = "x86_64-pc-windows-msvc"
)

// Platform identifies the object format family of an artifact.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// Target is one cargo build of a crate.
type Target struct {
	Triple   string   // empty for the host target
	Platform Platform // object format of the produced archive
	Ext      string   // ".a" or ".lib"
}

// Name returns the triple, or "host" for the default target.
func (t Target) Name() string {
	if t.Triple == "" {
		return "host"
	}
	return t.Triple
}

// OutputDir is where cargo places release artifacts for t under srcDir.
func (t Target) OutputDir(srcDir string) string {
	if t.Triple == "" {
		return filepath.Join(srcDir, "target", "release")
	}
	return filepath.Join(srcDir, "target", t.Triple, "release")
}

// FileName is the archive name cargo produces for libName on t.
func (t Target) FileName(libName string) string {
	if t.Ext == ".lib" {
		return libName + t.Ext
	}
	return "lib" + libName + t.Ext
}

// Artifact is a static library produced by one target build.
type Artifact struct {
	Path     string
	Platform Platform
	Target   string
}

// Failure records a target that produced no artifact.
type Failure struct {
	Target string
	Err    error
}

// Result is the outcome of building one crate.
// len(Artifacts) equals the number of targets that succeeded.
type Result struct {
	Artifacts []Artifact
	Failures  []Failure
}

// Driver builds crates with cargo.
type Driver struct {
	Cargo       string
	CrossTarget string
	Exec        toolexec.Executor
	Logger      *log.Logger
}

// NewDriver creates a driver with default cargo and cross target.
func NewDriver(exec toolexec.Executor, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		Cargo:       DefaultCargo,
		CrossTarget: DefaultCrossTarget,
		Exec:        exec,
		Logger:      logger,
	}
}

// Targets returns the builds performed for every crate, host first.
func (d *Driver) Targets() []Target {
	return []Target{
		{Platform: PlatformLinux, Ext: ".a"},
		{Triple: d.CrossTarget, Platform: PlatformWindows, Ext: ".lib"},
	}
}

// BuildStaticLib builds the crate in srcDir for every target and locates
// the resulting archives. libName is the crate's library target name (see
// manifest.LibName); it selects the expected archive among stale ones.
func (d *Driver) BuildStaticLib(ctx context.Context, srcDir, libName string) Result {
	var res Result
	for _, t := range d.Targets() {
		a, err := d.buildTarget(ctx, srcDir, libName, t)
		if err != nil {
			d.Logger.Warn("build failed", "target", t.Name(), "err", err)
			res.Failures = append(res.Failures, Failure{Target: t.Name(), Err: err})
			continue
		}
		d.Logger.Info("built static library", "target", t.Name(), "path", a.Path)
		res.Artifacts = append(res.Artifacts, *a)
	}
	return res
}

func (d *Driver) buildTarget(ctx context.Context, srcDir, libName string, t Target) (*Artifact, error) {
	args := []string{"build", "--release"}
	if t.Triple != "" {
		args = append(args, "--target", t.Triple)
	}
	cmd := toolexec.Command{Path: d.cargo(), Args: args, Dir: srcDir}

	d.Logger.Info("building", "target", t.Name(), "platform", t.Platform)
	if err := d.Exec.Run(ctx, cmd); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "%s", cmd)
	}

	path, err := d.findArtifact(t.OutputDir(srcDir), libName, t)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: path, Platform: t.Platform, Target: t.Name()}, nil
}

// findArtifact returns the archive cargo produced for libName. When the
// expected file is missing, the lexically first file with the right
// extension is used and a warning logged.
func (d *Driver) findArtifact(dir, libName string, t Target) (string, error) {
	if libName != "" {
		want := filepath.Join(dir, t.FileName(libName))
		if info, err := os.Stat(want); err == nil && info.Mode().IsRegular() {
			return want, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeBuild, err, "no %s output directory", t.Name())
	}
	var candidates []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), t.Ext) {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", errors.New(errors.ErrCodeBuild, "no %s archive in %s", t.Ext, dir)
	}
	sort.Strings(candidates)
	d.Logger.Warn("expected archive not found, using first match",
		"want", t.FileName(libName), "using", candidates[0], "candidates", len(candidates))
	return filepath.Join(dir, candidates[0]), nil
}

func (d *Driver) cargo() string {
	if d.Cargo == "" {
		return DefaultCargo
	}
	return d.Cargo
}

// String summarizes a result for logs, e.g. "1 built, 1 failed".
func (r Result) String() string {
	return fmt.Sprintf("%d built, %d failed", len(r.Artifacts), len(r.Failures))
}
