// Package buildinfo provides build-time version information.
//
// Variables are set via ldflags during build:
//
//	go build -ldflags "-X github.com/matzehuels/cratesig/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/cratesig/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/cratesig/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

// Homepage is reported to crates.io as the contact URL.
const Homepage = "https://github.com/matzehuels/cratesig"

var (
	// Version is the semantic version (e.g., "v1.2.3").
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// UserAgent identifies cratesig to registries, as the crates.io crawler
// policy requires: "cratesig/<version> (<homepage>)".
func UserAgent() string {
	return fmt.Sprintf("cratesig/%s (%s)", Version, Homepage)
}
