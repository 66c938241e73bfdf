// Package integrations provides the shared HTTP client for package registry
// APIs.
//
// Registry-specific clients live in subpackages and embed [Client]:
//
//   - [crates]: Rust crates.io (top crates listing, metadata, archives)
//
// [Client] does JSON GETs and streamed file downloads, maps HTTP status codes
// to [ErrNotFound] and [ErrNetwork], reports every request to the
// observability HTTP hooks and retries transient failures according to its
// [httputil.Policy]. The zero policy makes exactly one attempt.
//
// [crates]: github.com/matzehuels/cratesig/pkg/integrations/crates
// [httputil.Policy]: github.com/matzehuels/cratesig/pkg/httputil.Policy
package integrations
