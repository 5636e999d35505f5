package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no run matches.
var ErrNotFound = errors.New("ingest run not found")

// ErrAmbiguous is returned by Get when an ID prefix matches several runs.
var ErrAmbiguous = errors.New("ingest run id is ambiguous")

const filePrefix = "ingest-"

// Manifest manages the run history directory.
type Manifest struct {
	dir string
	mu  sync.Mutex
}

// New creates a new Manifest with the given directory.
// The directory is not created until EnsureDir is called.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("manifest directory cannot be empty")
	}
	return &Manifest{dir: dir}, nil
}

// Dir returns the history directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// EnsureDir creates the manifest directory if it does not exist.
func (m *Manifest) EnsureDir() error {
	return os.MkdirAll(m.dir, 0o755)
}

// Record persists run. A missing ID or timestamp is filled in.
func (m *Manifest) Record(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = StatusCompleted
	}

	if err := m.writeRun(run); err != nil {
		return fmt.Errorf("failed to write manifest entry: %w", err)
	}
	return nil
}

// writeRun writes a run to a JSON file in the manifest directory.
func (m *Manifest) writeRun(run *Run) error {
	filePath := filepath.Join(m.dir, runFilename(run))

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	// Write atomically using a temp file and rename
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// runFilename names a run file like
// "ingest-2024-06-15T10-30-00-<uuid>.json" so names sort by time.
func runFilename(run *Run) string {
	return fmt.Sprintf("%s%s-%s.json", filePrefix, run.Timestamp.UTC().Format("2006-01-02T15-04-05"), run.ID)
}

// List returns recorded runs, newest first. If limit is 0 or negative, all
// runs are returned. Unreadable files are skipped.
func (m *Manifest) List(limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs, err := m.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Get returns the run whose ID is id or, failing that, the single run
// whose ID starts with id.
func (m *Manifest) Get(id string) (*Run, error) {
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	runs, err := m.readAll()
	if err != nil {
		return nil, err
	}

	var match *Run
	for i := range runs {
		switch {
		case runs[i].ID == id:
			return &runs[i], nil
		case strings.HasPrefix(runs[i].ID, id):
			if match != nil {
				return nil, fmt.Errorf("%w: %s", ErrAmbiguous, id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

func (m *Manifest) readAll() ([]Run, error) {
	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Run{}, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	runs := []Run{}
	for _, f := range files {
		if !isRunFile(f) {
			continue
		}
		run, err := m.readRunFile(f.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func isRunFile(f os.DirEntry) bool {
	return !f.IsDir() && strings.HasPrefix(f.Name(), filePrefix) && strings.HasSuffix(f.Name(), ".json")
}

// readRunFile reads and parses a run from a JSON file.
func (m *Manifest) readRunFile(filename string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &run, nil
}

// Cleanup removes runs recorded more than retentionDays ago and returns
// how many were removed. A retentionDays of zero or less keeps everything.
func (m *Manifest) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	files, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read manifest directory: %w", err)
	}

	removed := 0
	for _, f := range files {
		if !isRunFile(f) {
			continue
		}
		run, err := m.readRunFile(f.Name())
		if err != nil || !run.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, f.Name())); err != nil {
			continue
		}
		removed++
	}

	return removed, nil
}
