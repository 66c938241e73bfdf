// Package errors provides structured error types for cratesig.
//
// Every pipeline stage reports failures as an [*Error] carrying a [Code], so
// the orchestrator can decide whether a failure aborts the current crate,
// skips one artifact, or only gets logged:
//
//   - NETWORK_ERROR, PACKAGE_NOT_FOUND: registry failures, abort the crate
//   - EXTRACT_FAILED, INVALID_MANIFEST: source tree unusable, abort the crate
//   - BUILD_FAILED: one cargo target failed, recorded and skipped
//   - TOOL_MISSING: a FLAIR binary is absent, aborts pattern/signature stages
//   - TOOL_FAILED: a FLAIR invocation exited non-zero for one input
//   - SIGNATURE_COLLISION: sigmake failed again after the exclusion cleanup
//
// # Usage
//
//	err := errors.New(errors.ErrCodeToolMissing, "pelf not found in %s", dir)
//	if errors.Is(err, errors.ErrCodeToolMissing) {
//	    // stop processing this crate
//	}
//
//	err := errors.Wrap(errors.ErrCodeExtract, origErr, "unpack %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	// Input and configuration errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"

	// Registry errors
	ErrCodeNetwork         Code = "NETWORK_ERROR"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"

	// Source tree errors
	ErrCodeExtract Code = "EXTRACT_FAILED"

	// Build errors
	ErrCodeBuild Code = "BUILD_FAILED"

	// FLAIR tool errors
	ErrCodeToolMissing Code = "TOOL_MISSING"
	ErrCodeToolFailed  Code = "TOOL_FAILED"
	ErrCodeCollision   Code = "SIGNATURE_COLLISION"

	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given code.
// It checks every *Error in the chain, so a TOOL_MISSING wrapped inside a
// stage error is still found.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err must stop processing of the current crate.
// Build failures and single-pattern collisions are recoverable; everything
// else, including uncoded errors, is not.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetCode(err) {
	case ErrCodeBuild, ErrCodeCollision, ErrCodeToolFailed:
		return false
	}
	return true
}
