// Package pipeline turns the top crates on crates.io into FLAIR signatures.
//
// # Architecture
//
// Every crate goes through the same sequence of stages:
//
//  1. download: resolve the latest stable version and fetch the .crate archive
//  2. extract: unpack it into the crates working directory
//  3. patch: force crate-type = ["staticlib"] and panic = "abort"
//  4. build: cargo build --release for the host and the cross target
//  5. patterns: pelf / pcf over each static library
//  6. signatures: sigmake over each pattern file
//
// Crates are processed one at a time. The crate is the only fault isolation
// boundary: whatever goes wrong while processing one crate is recorded in
// its [PackageResult] and the run moves on to the next crate.
//
// # Usage
//
//	runner, err := pipeline.NewRunner(pipeline.Options{Top: 100}, &toolexec.OSExecutor{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := runner.RunTop(ctx, 100)
//
// After each run a JSON [Report] is written to the output directory.
package pipeline
