package integrations

import (
	"errors"
	"net/http"
	"net/url"
)

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (connection errors, non-200 responses).
	ErrNetwork = errors.New("network error")
)

// NewHTTPClient creates the HTTP client used for registry requests.
// It has no overall timeout: crate archives can be large and the pipeline
// relies on context cancellation instead.
func NewHTTPClient() *http.Client {
	return &http.Client{}
}

// URLEncode percent-encodes a string for use in URL paths and queries.
// This is a convenience wrapper around [url.PathEscape].
func URLEncode(s string) string { return url.PathEscape(s) }
