package flair

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratesig/pkg/build"
	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/toolexec"
)

// Tool names inside the FLAIR bin directory.
const (
	ToolPELF    = "pelf"
	ToolPCF     = "pcf"
	ToolSigmake = "sigmake"
)

// File extensions produced in the output directory.
const (
	ExtPattern   = ".pat"
	ExtSignature = ".sig"
	ExtExclusion = ".exc"
)

// parser maps a static library extension to the FLAIR tool that reads it.
type parser struct {
	ext      string
	tool     string
	suffix   string
	platform build.Platform
}

var parsers = []parser{
	{ext: ".a", tool: ToolPELF, suffix: "_linux", platform: build.PlatformLinux},
	{ext: ".lib", tool: ToolPCF, suffix: "_win", platform: build.PlatformWindows},
}

// Pattern is a generated .pat file.
type Pattern struct {
	Path     string
	Platform build.Platform
}

// Signature is a compiled .sig file.
type Signature struct {
	Path    string
	Pattern string
	Retried bool // produced on the retry after exclusion cleanup
}

// Generator runs FLAIR tools from Dir and writes into OutputDir.
type Generator struct {
	Dir       string
	OutputDir string
	Exec      toolexec.Executor
	Logger    *log.Logger
}

// NewGenerator creates a generator for the FLAIR bin directory dir.
func NewGenerator(dir, outputDir string, exec toolexec.Executor, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{Dir: dir, OutputDir: outputDir, Exec: exec, Logger: logger}
}

// GeneratePatterns creates one pattern file per static library in libs.
//
// Libraries that don't exist or have an unrecognized extension are skipped
// with a warning, as are tool runs that fail or leave no output. A missing
// tool binary aborts immediately with a TOOL_MISSING error.
func (g *Generator) GeneratePatterns(ctx context.Context, libs []string, crate string) ([]Pattern, error) {
	var pats []Pattern
	for _, lib := range libs {
		if _, err := os.Stat(lib); err != nil {
			g.Logger.Warn("static library not found, skipping", "path", lib)
			continue
		}

		p, ok := parserFor(lib)
		if !ok {
			g.Logger.Warn("unknown static library format, skipping", "path", lib)
			continue
		}

		tool, err := g.toolPath(p.tool)
		if err != nil {
			return nil, err
		}

		out := filepath.Join(g.OutputDir, crate+p.suffix+ExtPattern)
		g.Logger.Info("generating pattern", "tool", p.tool, "platform", p.platform, "out", filepath.Base(out))
		if err := g.Exec.Run(ctx, toolexec.Command{Path: tool, Args: []string{lib, out}}); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.Logger.Error("pattern generation failed", "tool", p.tool, "err", err)
			continue
		}
		if !exists(out) {
			g.Logger.Error("pattern file was not created", "tool", p.tool, "out", out)
			continue
		}
		pats = append(pats, Pattern{Path: out, Platform: p.platform})
	}
	return pats, nil
}

// GenerateSignature compiles patPath into {base}.sig in the output
// directory.
//
// It returns (nil, nil) when no signature was produced without a hard
// failure: sigmake failed and left no exclusion file, or it reported
// success without writing the file. A failure on the single retry after
// exclusion cleanup returns a SIGNATURE_COLLISION error.
func (g *Generator) GenerateSignature(ctx context.Context, patPath string) (*Signature, error) {
	base := strings.TrimSuffix(filepath.Base(patPath), ExtPattern)
	sigPath := filepath.Join(g.OutputDir, base+ExtSignature)
	excPath := filepath.Join(g.OutputDir, base+ExtExclusion)

	tool, err := g.toolPath(ToolSigmake)
	if err != nil {
		return nil, err
	}
	cmd := toolexec.Command{Path: tool, Args: []string{patPath, sigPath}}

	g.Logger.Info("generating signature", "out", base+ExtSignature)
	retried := false
	if err := g.Exec.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.Logger.Warn("collisions detected, attempting to resolve", "pattern", base)

		if !exists(excPath) {
			g.Logger.Warn("no exclusion file generated, signature may have too many collisions", "pattern", base)
			return nil, nil
		}
		if err := CleanExclusions(excPath); err != nil {
			return nil, errors.Wrap(errors.ErrCodeToolFailed, err, "clean %s", filepath.Base(excPath))
		}

		retried = true
		if err := g.Exec.Run(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(errors.ErrCodeCollision, err, "sigmake %s after exclusion cleanup", base)
		}
	}

	if !exists(sigPath) {
		g.Logger.Error("failed to create signature", "out", sigPath)
		return nil, nil
	}
	g.Logger.Info("signature created", "path", filepath.Base(sigPath), "retried", retried)
	return &Signature{Path: sigPath, Pattern: patPath, Retried: retried}, nil
}

// toolPath returns the path of a FLAIR binary, or TOOL_MISSING.
func (g *Generator) toolPath(name string) (string, error) {
	candidates := []string{filepath.Join(g.Dir, name)}
	if runtime.GOOS == "windows" {
		candidates = append(candidates, filepath.Join(g.Dir, name+".exe"))
	}
	for _, p := range candidates {
		if exists(p) {
			return p, nil
		}
	}
	return "", errors.New(errors.ErrCodeToolMissing, "required FLAIR tool not found: %s", candidates[0])
}

func parserFor(lib string) (parser, bool) {
	for _, p := range parsers {
		if strings.HasSuffix(lib, p.ext) {
			return p, true
		}
	}
	return parser{}, false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
