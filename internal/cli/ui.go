package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/cratesig/pkg/pipeline"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - headings
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - labels
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(14)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconArrow   = "→"
)

// statusOrder is the display order of crate outcomes in summaries.
var statusOrder = []pipeline.Status{
	pipeline.StatusSigned,
	pipeline.StatusNoSignatures,
	pipeline.StatusNoPatterns,
	pipeline.StatusNoArtifacts,
	pipeline.StatusFailed,
}

// =============================================================================
// Summaries
// =============================================================================

// printSummary prints per-status counts, every signature written and every
// crate that failed.
func printSummary(w io.Writer, r *pipeline.Report, outDir string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleTitle.Render("Run "+r.RunID.String()))

	counts := r.Counts()
	for _, s := range statusOrder {
		if counts[s] > 0 {
			printKeyValue(w, string(s), styleNumber.Render(fmt.Sprint(counts[s])))
		}
	}
	printKeyValue(w, "report", filepath.Join(outDir, r.FileName()))

	if sigs := r.Signatures(); len(sigs) > 0 {
		fmt.Fprintln(w)
		printLine(w, styleIconSuccess.Render(iconSuccess), "%d signature files", len(sigs))
		for _, s := range sigs {
			fmt.Fprintln(w, "  "+styleDim.Render(iconArrow)+" "+styleValue.Render(s))
		}
	}

	for _, p := range r.Packages {
		switch {
		case p.Status == pipeline.StatusFailed:
			printLine(w, styleIconError.Render(iconError), "%s failed at %s: %s", crateLabel(p), p.Stage, p.Error)
		case p.Status != pipeline.StatusSigned:
			printLine(w, styleIconWarning.Render(iconWarning), "%s", styleWarning.Render(crateLabel(p)+": "+string(p.Status)))
		}
	}
}

// printRanking prints crate names as a numbered list.
func printRanking(w io.Writer, names []string) {
	width := len(fmt.Sprint(len(names)))
	for i, name := range names {
		num := fmt.Sprintf("%*d.", width, i+1)
		fmt.Fprintln(w, styleDim.Render(num)+" "+styleValue.Render(name))
	}
}

// =============================================================================
// Helpers
// =============================================================================

func printLine(w io.Writer, icon, format string, args ...any) {
	fmt.Fprintln(w, icon+" "+fmt.Sprintf(format, args...))
}

func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintln(w, styleKey.Render(key)+" "+styleValue.Render(value))
}

func crateLabel(p pipeline.PackageResult) string {
	if p.Version == "" {
		return p.Name
	}
	return strings.Join([]string{p.Name, p.Version}, "@")
}
