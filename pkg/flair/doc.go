// Package flair runs the IDA FLAIR tools over static libraries.
//
// Pattern generation picks the parser by archive extension:
//
//	.a   -> pelf  -> {crate}_linux.pat
//	.lib -> pcf   -> {crate}_win.pat
//
// Signature generation compiles each pattern file with sigmake. When sigmake
// reports collisions it leaves a {base}.exc file listing the conflicting
// functions with every line commented out; stripping the comment lines
// tells sigmake to pick the first candidate of each group. The generator
// retries exactly once after that cleanup:
//
//	ATTEMPT -> DONE
//	ATTEMPT -> (collision, .exc present) CLEAN_RETRY -> DONE | FAIL
//	ATTEMPT -> (collision, no .exc) FAIL
//
// A missing tool binary is reported as TOOL_MISSING and is meant to stop
// the caller from processing the current crate any further.
package flair
