package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Report summarizes one pipeline run.
type Report struct {
	RunID      uuid.UUID       `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Packages   []PackageResult `json:"packages"`
}

// NewReport starts a report with a fresh run id.
func NewReport() *Report {
	return &Report{RunID: uuid.New(), StartedAt: time.Now()}
}

// Add appends the result of one crate.
func (r *Report) Add(res PackageResult) {
	r.Packages = append(r.Packages, res)
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
}

// Counts returns the number of crates per status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, p := range r.Packages {
		counts[p.Status]++
	}
	return counts
}

// Signatures returns every signature produced during the run.
func (r *Report) Signatures() []string {
	var paths []string
	for _, p := range r.Packages {
		for _, s := range p.Signatures {
			paths = append(paths, s.Path)
		}
	}
	return paths
}

// FileName is the report's file name: report-<runid>.json.
func (r *Report) FileName() string {
	return fmt.Sprintf("report-%s.json", r.RunID)
}

// Write stores the report as indented JSON in dir and returns its path.
func (r *Report) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
