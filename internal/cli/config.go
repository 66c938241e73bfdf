package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/pipeline"
)

const (
	// envPrefix is prepended to every environment variable cratesig reads.
	envPrefix = "CRATESIG_"

	// defaultEnvFile is loaded when present; a missing file is not an error.
	defaultEnvFile = ".env"
)

// configFlags holds the flags shared by every command that runs the pipeline.
type configFlags struct {
	configPath string
	envFile    string
	opts       pipeline.Options // values of the option flags
}

// optionFlag binds one pipeline option to its flag and environment variable.
type optionFlag struct {
	flag  string
	env   string
	usage string
	set   func(o *pipeline.Options, v string) error
	copy  func(dst, src *pipeline.Options)
}

var optionFlags = []optionFlag{
	{
		flag: "flair-dir", env: "FLAIR_DIR", usage: "directory containing pelf, pcf and sigmake",
		set:  func(o *pipeline.Options, v string) error { o.FlairDir = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.FlairDir = src.FlairDir },
	},
	{
		flag: "output-dir", env: "OUTPUT_DIR", usage: "directory for .pat, .sig, .exc files and reports",
		set:  func(o *pipeline.Options, v string) error { o.OutputDir = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.OutputDir = src.OutputDir },
	},
	{
		flag: "crates-dir", env: "CRATES_DIR", usage: "directory for downloaded and extracted crates",
		set:  func(o *pipeline.Options, v string) error { o.CratesDir = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.CratesDir = src.CratesDir },
	},
	{
		flag: "cargo", env: "CARGO", usage: "cargo executable",
		set:  func(o *pipeline.Options, v string) error { o.Cargo = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.Cargo = src.Cargo },
	},
	{
		flag: "cross-target", env: "CROSS_TARGET", usage: "target triple of the second build",
		set:  func(o *pipeline.Options, v string) error { o.CrossTarget = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.CrossTarget = src.CrossTarget },
	},
	{
		flag: "registry-url", env: "REGISTRY_URL", usage: "crates.io API root",
		set:  func(o *pipeline.Options, v string) error { o.RegistryURL = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.RegistryURL = src.RegistryURL },
	},
	{
		flag: "static-url", env: "STATIC_URL", usage: "crate archive download root",
		set:  func(o *pipeline.Options, v string) error { o.StaticURL = v; return nil },
		copy: func(dst, src *pipeline.Options) { dst.StaticURL = src.StaticURL },
	},
	{
		flag: "http-attempts", env: "HTTP_ATTEMPTS", usage: "attempts per registry request (1 disables retries)",
		set:  func(o *pipeline.Options, v string) error { return setInt(&o.HTTPAttempts, v) },
		copy: func(dst, src *pipeline.Options) { dst.HTTPAttempts = src.HTTPAttempts },
	},
	{
		flag: "top", env: "TOP", usage: "number of top crates to process",
		set:  func(o *pipeline.Options, v string) error { return setInt(&o.Top, v) },
		copy: func(dst, src *pipeline.Options) { dst.Top = src.Top },
	},
}

// register adds the config flags to cmd as persistent flags.
func (f *configFlags) register(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	fs.StringVar(&f.envFile, "env-file", defaultEnvFile, "dotenv file with "+envPrefix+"* variables")

	d := pipeline.DefaultOptions()
	fs.StringVar(&f.opts.FlairDir, "flair-dir", d.FlairDir, flagUsage("flair-dir"))
	fs.StringVar(&f.opts.OutputDir, "output-dir", d.OutputDir, flagUsage("output-dir"))
	fs.StringVar(&f.opts.CratesDir, "crates-dir", d.CratesDir, flagUsage("crates-dir"))
	fs.StringVar(&f.opts.Cargo, "cargo", d.Cargo, flagUsage("cargo"))
	fs.StringVar(&f.opts.CrossTarget, "cross-target", d.CrossTarget, flagUsage("cross-target"))
	fs.StringVar(&f.opts.RegistryURL, "registry-url", d.RegistryURL, flagUsage("registry-url"))
	fs.StringVar(&f.opts.StaticURL, "static-url", d.StaticURL, flagUsage("static-url"))
	fs.IntVar(&f.opts.HTTPAttempts, "http-attempts", d.HTTPAttempts, flagUsage("http-attempts"))
	fs.IntVarP(&f.opts.Top, "top", "n", d.Top, flagUsage("top"))
}

// options resolves the effective pipeline options for cmd. Sources are
// applied from lowest to highest precedence: defaults, config file,
// environment (the process environment wins over the dotenv file), and
// flags given explicitly on the command line.
func (f *configFlags) options(cmd *cobra.Command) (pipeline.Options, error) {
	var opts pipeline.Options

	if f.configPath != "" {
		if err := loadConfigFile(f.configPath, &opts); err != nil {
			return opts, err
		}
	}

	dotenv, err := readEnvFile(f.envFile, cmd.Flags().Changed("env-file"))
	if err != nil {
		return opts, err
	}
	if err := applyEnv(&opts, envLookup(dotenv)); err != nil {
		return opts, err
	}

	for _, of := range optionFlags {
		if cmd.Flags().Changed(of.flag) {
			of.copy(&opts, &f.opts)
		}
	}

	if err := opts.ValidateAndSetDefaults(); err != nil {
		return opts, err
	}
	return opts, nil
}

// loadConfigFile decodes a TOML config into opts. Unknown keys are rejected.
func loadConfigFile(path string, opts *pipeline.Options) error {
	md, err := toml.DecodeFile(path, opts)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New(errors.ErrCodeInvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// readEnvFile parses a dotenv file. A missing file is only an error when
// it was named explicitly.
func readEnvFile(path string, required bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !required {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read env file %s", path)
	}
	return vars, nil
}

// envLookup returns a lookup that prefers the process environment over
// values read from a dotenv file.
func envLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// applyEnv sets every option whose CRATESIG_* variable is non-empty.
func applyEnv(opts *pipeline.Options, lookup func(string) (string, bool)) error {
	for _, of := range optionFlags {
		v, ok := lookup(envPrefix + of.env)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := of.set(opts, strings.TrimSpace(v)); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s%s", envPrefix, of.env)
		}
	}
	return nil
}

func flagUsage(name string) string {
	for _, of := range optionFlags {
		if of.flag == name {
			return fmt.Sprintf("%s (env %s%s)", of.usage, envPrefix, of.env)
		}
	}
	return ""
}

func setInt(field *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("not an integer: %q", v)
	}
	*field = n
	return nil
}
