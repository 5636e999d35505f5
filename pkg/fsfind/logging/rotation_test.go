package logging_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

func countFiles(t *testing.T, dir, prefix string) int {
	t.Helper()
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	n := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), prefix) {
			n++
		}
	}
	return n
}

func TestRotationBySize(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "size_rotate.log")

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    512,
		MaxBackups: 3,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("x", 50) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if n := countFiles(t, tempDir, "size_rotate"); n < 2 {
		t.Errorf("expected at least 2 log files after rotation, got %d", n)
	}
}

func TestRotationMaxBackups(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "backup_limit.log")

	// Pre-existing rotated files, the oldest of which must be pruned on open.
	for i, stamp := range []string{"2020-01-01-000000", "2020-01-02-000000", "2020-01-03-000000"} {
		p := filepath.Join(tempDir, "backup_limit."+stamp+".log")
		if err := os.WriteFile(p, []byte("old\n"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		mtime := time.Now().Add(-time.Duration(3-i) * time.Hour)
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatalf("Chtimes() error = %v", err)
		}
	}

	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{
		MaxSize:    1024,
		MaxBackups: 2,
	})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer writer.Close()

	if n := countFiles(t, tempDir, "backup_limit."); n != 3 {
		t.Errorf("expected current file plus 2 backups, got %d files", n)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "backup_limit.2020-01-01-000000.log")); !os.IsNotExist(err) {
		t.Errorf("oldest backup should have been removed, stat err = %v", err)
	}
}

func TestRotationMaxAge(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	stale := filepath.Join(tempDir, "aged.2020-01-01-000000.log")
	if err := os.WriteFile(stale, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	old := time.Now().Add(-10 * 24 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	writer, err := logging.NewRotatingWriter(filepath.Join(tempDir, "aged.log"), logging.RotationConfig{MaxAge: 7})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer writer.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("file older than MaxAge should have been removed, stat err = %v", err)
	}
}

func TestRotationDirCreation(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "a", "b", "c", "nested.log")
	writer, err := logging.NewRotatingWriter(logPath, logging.DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if _, err := writer.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("file content = %q, want %q", data, "hello\n")
	}
}

func TestRotationConcurrentWrites(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{MaxSize: 1 << 20})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = writer.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.Count(string(data), "line\n"); got != 400 {
		t.Errorf("line count = %d, want 400", got)
	}
}

func TestRotationCompress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "packed.log")
	writer, err := logging.NewRotatingWriter(logPath, logging.RotationConfig{MaxSize: 256, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := writer.Write([]byte(strings.Repeat("y", 60) + "\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	gz, _ := filepath.Glob(filepath.Join(dir, "packed.*.log.gz"))
	if len(gz) == 0 {
		t.Fatal("no compressed backup written")
	}
	if plain, _ := filepath.Glob(filepath.Join(dir, "packed.*.log")); len(plain) != 0 {
		t.Errorf("uncompressed backups left behind: %v", plain)
	}

	f, err := os.Open(gz[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("backup is not gzip: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "yyyy") {
		t.Errorf("backup content = %q", data)
	}
}

func TestWriteAfterClose(t *testing.T) {
	t.Parallel()

	writer, err := logging.NewRotatingWriter(filepath.Join(t.TempDir(), "closed.log"), logging.RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := writer.Write([]byte("late\n")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Write() after Close error = %v, want os.ErrClosed", err)
	}
}
