package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/fsfind/pkg/daemon/updater"
)

// Daemon states recorded in the status file.
const (
	StateReady = "ready"
	StateError = "error"
)

// StatusFile represents the daemon status written next to its PID file.
type StatusFile struct {
	Status     string          `json:"status"`                // "ready" or "error"
	PID        int             `json:"pid,omitempty"`         // Process ID (only for ready status)
	Error      string          `json:"error,omitempty"`       // Error message (only for error status)
	StartedAt  time.Time       `json:"started_at,omitzero"`   // Daemon start time
	UpdatedAt  time.Time       `json:"updated_at,omitzero"`   // Last write of this file
	WatchRoots []string        `json:"watch_roots,omitempty"` // Roots being watched
	Watches    int             `json:"watches,omitempty"`     // Watched directories
	Database   string          `json:"database,omitempty"`    // Store path
	Counts     *updater.Counts `json:"counts,omitempty"`      // Updater counters
}

// WriteStatusReady writes a ready status file. details may be nil.
func WriteStatusReady(path string, details *StatusFile) error {
	status := StatusFile{}
	if details != nil {
		status = *details
	}
	status.Status = StateReady
	status.PID = os.Getpid()
	status.Error = ""
	status.UpdatedAt = time.Now()
	return writeStatus(path, &status)
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	status := StatusFile{
		Status:    StateError,
		Error:     err.Error(),
		UpdatedAt: time.Now(),
	}
	return writeStatus(path, &status)
}

// writeStatus replaces the file atomically so readers never see a partial write.
func writeStatus(path string, status *StatusFile) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file path that accompanies a PID file.
func StatusPath(pidPath string) string {
	return strings.TrimSuffix(pidPath, filepath.Ext(pidPath)) + ".status"
}
