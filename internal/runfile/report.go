package runfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CodexForgeBR/cull-engine/internal/fastmode"
	"github.com/CodexForgeBR/cull-engine/internal/orchestrator"
)

// Report is the persisted outcome of one CLI job. Run is set for
// orchestrated jobs, Items for fast-mode jobs.
type Report struct {
	JobID      string                 `json:"jobId"`
	UserID     string                 `json:"userId"`
	ShootID    string                 `json:"shootId,omitempty"`
	Mode       string                 `json:"mode"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
	Run        *orchestrator.Result   `json:"run,omitempty"`
	Attempts   []orchestrator.Attempt `json:"attempts,omitempty"`
	Items      []fastmode.Result      `json:"items,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// Succeeded counts successful fast-mode items.
func (r *Report) Succeeded() int {
	n := 0
	for _, item := range r.Items {
		if item.Success {
			n++
		}
	}
	return n
}

// SaveReport writes r as indented JSON, creating parent directories.
func SaveReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by SaveReport.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}
