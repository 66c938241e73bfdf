// Package cli implements the cratesig command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cratesig/pkg/buildinfo"
	"github.com/matzehuels/cratesig/pkg/observability"
	"github.com/matzehuels/cratesig/pkg/pipeline"
	"github.com/matzehuels/cratesig/pkg/toolexec"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "cratesig"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	out    io.Writer // tool output and console summaries
	config configFlags
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), out: w}
}

// SetLogLevel updates the logger's level. At debug level, stage and HTTP
// timings are logged through the observability hooks.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		hooks := &logHooks{logger: c.Logger}
		observability.SetPipelineHooks(hooks)
		observability.SetHTTPHooks(hooks)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "cratesig builds IDA FLAIR signatures for popular Rust crates",
		Long: `cratesig downloads the most popular crates from crates.io, builds each one
as a static library for the host and for x86_64-pc-windows-msvc, and turns
the resulting archives into FLAIR pattern and signature files.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	c.config.register(root)

	root.AddCommand(c.runCommand())
	root.AddCommand(c.crateCommand())
	root.AddCommand(c.topCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner resolves the options for cmd and creates a pipeline runner.
// Output of cargo and the FLAIR tools is streamed at debug level only.
func (c *CLI) newRunner(cmd *cobra.Command) (*pipeline.Runner, error) {
	opts, err := c.config.options(cmd)
	if err != nil {
		return nil, err
	}
	exec := &toolexec.OSExecutor{}
	if c.Logger.GetLevel() <= log.DebugLevel {
		exec.Output = c.out
	}
	return pipeline.NewRunner(opts, exec, c.Logger)
}
