package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record is the JSON line appended to the audit log for each run.
type Record struct {
	RunID          string         `json:"run_id"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Totals         Totals         `json:"totals"`
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`
	Books          []BookResult   `json:"books"`
	Error          string         `json:"error,omitempty"`
}

// Record snapshots the report for serialization.
func (r *Report) Record() Record {
	rec := Record{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Totals:     r.Totals(),
		Books:      r.Books(),
	}
	if reasons := r.FailureReasons(); len(reasons) > 0 {
		rec.FailureReasons = reasons
	}
	if err := r.Err(); err != nil {
		rec.Error = err.Error()
	}
	return rec
}

// AppendJSONL appends the report as one line to path, creating the file
// and its directory when needed.
func AppendJSONL(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	data, err := json.Marshal(r.Record())
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report log: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("append report: %w", err)
	}
	return file.Close()
}
