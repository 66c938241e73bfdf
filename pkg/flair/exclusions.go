package flair

import (
	"os"
	"strings"
)

// CleanExclusions rewrites an exclusion file in place, dropping blank lines
// and lines starting with ';'. The remaining lines keep their original
// order and line endings.
func CleanExclusions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(StripExclusionComments(string(data))), 0o644)
}

// StripExclusionComments returns s without blank lines and ';' comment lines.
func StripExclusionComments(s string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ";") {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}
