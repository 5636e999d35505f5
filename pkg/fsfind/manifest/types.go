// Package manifest keeps a history of snapshot ingest runs on disk, one
// JSON document per run.
package manifest

import "time"

// Status is the outcome of an ingest run.
type Status string

const (
	// StatusCompleted marks a run that rebuilt the index.
	StatusCompleted Status = "completed"
	// StatusFailed marks a run that stopped with an error.
	StatusFailed Status = "failed"
)

// Run records one ingest.
type Run struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Database  string            `json:"database"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Summary   Summary           `json:"summary"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Summary contains the counts of an ingest run.
type Summary struct {
	Entries    int64 `json:"entries"`
	Skipped    int64 `json:"skipped"`
	Batches    int   `json:"batches"`
	Dirs       int64 `json:"dirs"`
	Files      int64 `json:"files"`
	TotalBytes int64 `json:"total_bytes"`
}
