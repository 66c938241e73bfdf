package pipeline

import (
	"time"

	"github.com/matzehuels/cratesig/pkg/build"
	"github.com/matzehuels/cratesig/pkg/flair"
)

// Stage names, in execution order.
const (
	StageDownload   = "download"
	StageExtract    = "extract"
	StagePatch      = "patch"
	StageBuild      = "build"
	StagePatterns   = "patterns"
	StageSignatures = "signatures"
)

// Status is the final outcome of one crate.
type Status string

const (
	// StatusSigned means at least one signature file was produced.
	StatusSigned Status = "signed"

	// StatusNoArtifacts means neither cargo target produced a static library.
	StatusNoArtifacts Status = "no-artifacts"

	// StatusNoPatterns means no pattern file could be generated.
	StatusNoPatterns Status = "no-patterns"

	// StatusNoSignatures means patterns exist but sigmake produced nothing.
	StatusNoSignatures Status = "no-signatures"

	// StatusFailed means a stage aborted the crate; see Error.
	StatusFailed Status = "failed"
)

// Request names a crate to process. An empty Version selects the latest
// stable release.
type Request struct {
	Name    string
	Version string
}

// PackageResult records what happened to one crate.
type PackageResult struct {
	Name       string            `json:"name"`
	Version    string            `json:"version,omitempty"`
	Status     Status            `json:"status"`
	Stage      string            `json:"stage"` // last stage entered
	Artifacts  []build.Artifact  `json:"artifacts,omitempty"`
	Patterns   []flair.Pattern   `json:"patterns,omitempty"`
	Signatures []flair.Signature `json:"signatures,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   time.Duration     `json:"duration"`

	Err error `json:"-"`
}

func (r *PackageResult) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.Error = err.Error()
}

func (r *PackageResult) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
