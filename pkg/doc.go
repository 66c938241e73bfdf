// Package pkg provides the libraries behind cratesig, which turns the most
// popular crates on crates.io into IDA FLAIR signature files.
//
// # Overview
//
// The pkg directory is organized by pipeline stage:
//
//  1. [integrations/crates] - crates.io client (top crates, metadata, archives)
//  2. [archive] - .crate (gzip tarball) extraction
//  3. [manifest] - Cargo.toml patching for staticlib + panic=abort builds
//  4. [build] - cargo driver for the host and cross targets
//  5. [flair] - pelf/pcf pattern generation and sigmake with exclusion retry
//  6. [pipeline] - sequential orchestration with per-crate fault isolation
//
// Supporting packages:
//
//   - [errors] - coded errors shared by every stage
//   - [httputil] - retry policy for registry requests
//   - [toolexec] - external process execution with captured output
//   - [observability] - stage and HTTP hooks
//   - [buildinfo] - version information
//
// # Data Flow
//
//	crates.io ranking
//	         ↓
//	    {crates}/{name}-{version}.crate
//	         ↓
//	    {crates}/{name}-{version}/Cargo.toml (patched)
//	         ↓
//	    lib{name}.a, {name}.lib
//	         ↓
//	    {output}/{name}_linux.pat, {output}/{name}_win.pat
//	         ↓
//	    {output}/{name}_linux.sig, {output}/{name}_win.sig
//
// # Quick Start
//
//	import (
//	    "github.com/matzehuels/cratesig/pkg/pipeline"
//	    "github.com/matzehuels/cratesig/pkg/toolexec"
//	)
//
//	runner, err := pipeline.NewRunner(pipeline.Options{Top: 10}, &toolexec.OSExecutor{}, logger)
//	if err != nil {
//	    return err
//	}
//	report, err := runner.RunTop(ctx, 10)
//
// [integrations/crates]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/integrations/crates
// [archive]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/archive
// [manifest]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/manifest
// [build]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/build
// [flair]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/flair
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/pipeline
// [errors]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/errors
// [httputil]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/httputil
// [toolexec]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/toolexec
// [observability]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/cratesig/pkg/buildinfo
package pkg
