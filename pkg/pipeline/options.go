package pipeline

import (
	"github.com/matzehuels/cratesig/pkg/build"
	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/integrations/crates"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultFlairDir holds the pelf, pcf and sigmake binaries.
	DefaultFlairDir = "flair"

	// DefaultOutputDir receives .pat, .sig, .exc files and run reports.
	DefaultOutputDir = "output"

	// DefaultCratesDir receives downloaded archives and extracted sources.
	DefaultCratesDir = "crates"

	// DefaultTop is how many crates a run processes.
	DefaultTop = 100

	// DefaultHTTPAttempts makes every registry request exactly once.
	DefaultHTTPAttempts = 1
)

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for a pipeline run. It is decoded from
// the optional TOML config file and then overridden by environment and flags.
type Options struct {
	FlairDir  string `toml:"flair_dir"`
	OutputDir string `toml:"output_dir"`
	CratesDir string `toml:"crates_dir"`
	Top       int    `toml:"top"`

	Cargo       string `toml:"cargo"`
	CrossTarget string `toml:"cross_target"`

	RegistryURL  string `toml:"registry_url"`
	StaticURL    string `toml:"static_url"`
	HTTPAttempts int    `toml:"http_attempts"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	o := Options{}
	_ = o.ValidateAndSetDefaults()
	return o
}

// ValidateAndSetDefaults fills empty fields with defaults and rejects
// negative counts. Calling it more than once has no further effect.
func (o *Options) ValidateAndSetDefaults() error {
	if o.Top < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "top must not be negative, got %d", o.Top)
	}
	if o.HTTPAttempts < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "http_attempts must not be negative, got %d", o.HTTPAttempts)
	}

	setDefault(&o.FlairDir, DefaultFlairDir)
	setDefault(&o.OutputDir, DefaultOutputDir)
	setDefault(&o.CratesDir, DefaultCratesDir)
	setDefault(&o.Cargo, build.DefaultCargo)
	setDefault(&o.CrossTarget, build.DefaultCrossTarget)
	setDefault(&o.RegistryURL, crates.DefaultAPIURL)
	setDefault(&o.StaticURL, crates.DefaultStaticURL)
	if o.Top == 0 {
		o.Top = DefaultTop
	}
	if o.HTTPAttempts == 0 {
		o.HTTPAttempts = DefaultHTTPAttempts
	}
	return nil
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
