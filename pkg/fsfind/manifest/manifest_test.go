package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates manifest with valid directory", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		m, err := New(dir)
		if err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
		if m.Dir() != dir {
			t.Errorf("Dir() = %q, want %q", m.Dir(), dir)
		}
	})

	t.Run("returns error for empty directory", func(t *testing.T) {
		t.Parallel()

		_, err := New("")
		if err == nil {
			t.Fatal("New() error = nil, want error for empty directory")
		}
	})
}

func TestManifest_EnsureDir(t *testing.T) {
	t.Parallel()

	manifestDir := filepath.Join(t.TempDir(), "history")
	m, err := New(manifestDir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := m.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(manifestDir)
	if err != nil {
		t.Fatalf("directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("path is not a directory")
	}

	if err := m.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() second call error = %v", err)
	}
}

func TestManifest_Record(t *testing.T) {
	t.Parallel()

	t.Run("fills id timestamp and status", func(t *testing.T) {
		t.Parallel()
		m := newManifest(t)

		run := &Run{
			Source:   "/snapshots/home.json.gz",
			Database: "/data/index.db",
			Summary:  Summary{Entries: 3, Dirs: 1, Files: 2, TotalBytes: 300},
			Duration: 1500 * time.Millisecond,
		}
		if err := m.Record(run); err != nil {
			t.Fatalf("Record() error = %v", err)
		}

		if run.ID == "" {
			t.Error("Record() did not set ID")
		}
		if run.Timestamp.IsZero() {
			t.Error("Record() did not set Timestamp")
		}
		if run.Status != StatusCompleted {
			t.Errorf("Status = %q, want %q", run.Status, StatusCompleted)
		}
	})

	t.Run("writes a json file per run", func(t *testing.T) {
		t.Parallel()
		m := newManifest(t)

		run := &Run{ID: "run-1", Source: "-", Status: StatusFailed, Error: "format error: missing files array"}
		if err := m.Record(run); err != nil {
			t.Fatalf("Record() error = %v", err)
		}

		files, err := os.ReadDir(m.Dir())
		if err != nil {
			t.Fatalf("ReadDir() error = %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("got %d files, want 1", len(files))
		}
		name := files[0].Name()
		if !strings.HasPrefix(name, "ingest-") || !strings.HasSuffix(name, "-run-1.json") {
			t.Errorf("file name = %q", name)
		}

		data, err := os.ReadFile(filepath.Join(m.Dir(), name))
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		var got Run
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if got.Status != StatusFailed || got.Error != run.Error {
			t.Errorf("got status %q error %q", got.Status, got.Error)
		}
	})

	t.Run("fails when directory is missing", func(t *testing.T) {
		t.Parallel()
		m, err := New(filepath.Join(t.TempDir(), "absent"))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if err := m.Record(&Run{Source: "x"}); err == nil {
			t.Fatal("Record() error = nil, want error")
		}
	})
}

func TestManifest_List(t *testing.T) {
	t.Parallel()

	t.Run("missing directory is empty", func(t *testing.T) {
		t.Parallel()
		m, err := New(filepath.Join(t.TempDir(), "absent"))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		runs, err := m.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if runs == nil || len(runs) != 0 {
			t.Errorf("List() = %v, want empty slice", runs)
		}
	})

	t.Run("newest first with limit", func(t *testing.T) {
		t.Parallel()
		m := newManifest(t)
		base := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

		for i, id := range []string{"a", "b", "c"} {
			run := &Run{ID: id, Timestamp: base.Add(time.Duration(i) * time.Hour)}
			if err := m.Record(run); err != nil {
				t.Fatalf("Record(%s) error = %v", id, err)
			}
		}

		runs, err := m.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		var ids []string
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
		if strings.Join(ids, ",") != "c,b,a" {
			t.Errorf("List() ids = %v, want [c b a]", ids)
		}

		runs, err = m.List(2)
		if err != nil {
			t.Fatalf("List(2) error = %v", err)
		}
		if len(runs) != 2 || runs[0].ID != "c" {
			t.Errorf("List(2) = %v", runs)
		}
	})

	t.Run("skips unrelated and corrupt files", func(t *testing.T) {
		t.Parallel()
		m := newManifest(t)
		if err := m.Record(&Run{ID: "good"}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if err := os.WriteFile(filepath.Join(m.Dir(), "ingest-broken.json"), []byte("{"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(m.Dir(), "notes.json"), []byte(`{"id":"other"}`), 0o644); err != nil {
			t.Fatal(err)
		}

		runs, err := m.List(0)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(runs) != 1 || runs[0].ID != "good" {
			t.Errorf("List() = %v, want only good", runs)
		}
	})
}

func TestManifest_Get(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	for _, id := range []string{"3f2a9c10-0000", "3f2b0000-0000", "9e00aa11-0000"} {
		if err := m.Record(&Run{ID: id, Source: "src-" + id}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr error
	}{
		{name: "exact", id: "3f2a9c10-0000", want: "3f2a9c10-0000"},
		{name: "unique prefix", id: "9e", want: "9e00aa11-0000"},
		{name: "ambiguous prefix", id: "3f2", wantErr: ErrAmbiguous},
		{name: "unknown", id: "ffff", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := m.Get(tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Get(%q) error = %v, want %v", tt.id, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.id, err)
			}
			if run.ID != tt.want {
				t.Errorf("Get(%q).ID = %q, want %q", tt.id, run.ID, tt.want)
			}
		})
	}

	if _, err := m.Get(""); err == nil {
		t.Error("Get(\"\") error = nil, want error")
	}
}

func TestManifest_Cleanup(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	old := &Run{ID: "old", Timestamp: time.Now().AddDate(0, 0, -45)}
	recent := &Run{ID: "recent", Timestamp: time.Now().AddDate(0, 0, -2)}
	for _, r := range []*Run{old, recent} {
		if err := m.Record(r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	removed, err := m.Cleanup(0)
	if err != nil || removed != 0 {
		t.Fatalf("Cleanup(0) = %d, %v; want 0, nil", removed, err)
	}

	removed, err = m.Cleanup(30)
	if err != nil {
		t.Fatalf("Cleanup(30) error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup(30) removed %d, want 1", removed)
	}

	runs, err := m.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "recent" {
		t.Errorf("after cleanup List() = %v", runs)
	}
}

func TestManifest_ConcurrentRecord(t *testing.T) {
	t.Parallel()
	m := newManifest(t)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Record(&Run{Source: "concurrent"}); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}()
	}
	wg.Wait()

	runs, err := m.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 10 {
		t.Errorf("List() returned %d runs, want 10", len(runs))
	}
}
