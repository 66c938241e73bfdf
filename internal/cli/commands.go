package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cratesig/pkg/errors"
	"github.com/matzehuels/cratesig/pkg/pipeline"
)

// runCommand processes the top N crates.
func (c *CLI) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate signatures for the most downloaded crates",
		Long: `Generate signatures for the most downloaded crates.

Crates are processed one at a time. A crate that fails to download, build or
sign is reported and skipped; the run continues with the next crate.

Examples:
  cratesig run                      # top 100 crates
  cratesig run --top 10 -v          # top 10, with tool output
  cratesig run --config cratesig.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := c.newRunner(cmd)
			if err != nil {
				return err
			}
			prog := newProgress(c.Logger)
			report, err := runner.RunTop(cmd.Context(), runner.Options.Top)
			if report != nil {
				prog.done(fmt.Sprintf("Processed %d crates", len(report.Packages)))
				printSummary(c.out, report, runner.Options.OutputDir)
			}
			return err
		},
	}
}

// crateCommand processes explicitly named crates.
func (c *CLI) crateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crate <name>[@version]...",
		Short: "Generate signatures for specific crates",
		Long: `Generate signatures for specific crates.

Without a version the latest stable release is used.

Examples:
  cratesig crate serde
  cratesig crate serde@1.0.193 itoa`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := make([]pipeline.Request, len(args))
			for i, arg := range args {
				req, err := parseCrateArg(arg)
				if err != nil {
					return err
				}
				reqs[i] = req
			}

			runner, err := c.newRunner(cmd)
			if err != nil {
				return err
			}

			var report *pipeline.Report
			if len(reqs) == 1 {
				report, err = runner.RunOne(cmd.Context(), reqs[0].Name, reqs[0].Version)
			} else {
				report, err = runner.Run(cmd.Context(), reqs)
			}
			if report != nil {
				printSummary(c.out, report, runner.Options.OutputDir)
			}
			return err
		},
	}
}

// topCommand lists the top crates without processing them.
func (c *CLI) topCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "List the most downloaded crates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := c.newRunner(cmd)
			if err != nil {
				return err
			}
			prog := newProgress(c.Logger)
			names, err := runner.Registry.ListTopCrates(cmd.Context(), runner.Options.Top)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Fetched %d crates", len(names)))
			printRanking(c.out, names)
			return nil
		},
	}
}

// parseCrateArg splits "name@version" into a request.
func parseCrateArg(arg string) (pipeline.Request, error) {
	name, version, found := strings.Cut(arg, "@")
	if name == "" || (found && version == "") {
		return pipeline.Request{}, errors.New(errors.ErrCodeInvalidInput, "invalid crate %q, want name or name@version", arg)
	}
	return pipeline.Request{Name: name, Version: version}, nil
}
