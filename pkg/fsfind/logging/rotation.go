package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"
)

// RotationConfig controls when the log file is rotated and how many
// rotated copies survive.
type RotationConfig struct {
	// MaxSize in bytes; zero means 10 MiB.
	MaxSize int64

	// MaxAge in days; zero keeps backups regardless of age.
	MaxAge int

	// MaxBackups; zero keeps every backup younger than MaxAge.
	MaxBackups int

	// Daily also rotates when the local date changes.
	Daily bool

	// Compress gzips each backup as it is rotated out.
	Compress bool
}

// DefaultRotationConfig returns 10 MiB files, daily rotation, five backups
// and a thirty day age limit.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSize: 10 << 20, MaxAge: 30, MaxBackups: 5, Daily: true}
}

// backupStamp is inserted before the extension of a rotated file:
// fsfind.log becomes fsfind.2024-01-20-150405.log (.gz when compressed).
const backupStamp = "2006-01-02-150405"

// RotatingWriter appends to a log file and rotates it by size and date.
// The CLI and fsfindd may share one file, so each write holds an flock.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time
}

// NewRotatingWriter opens path for appending, creating its directory, and
// prunes backups that exceed the limits.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	w.prune(time.Now())
	return w, nil
}

// Write appends p, rotating first if p would overflow MaxSize or the day
// has changed.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if now := time.Now(); w.needsRotation(len(p), now) {
		if err := w.rotate(now); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	fd := int(w.file.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("acquiring file lock: %w", err)
	}
	n, err := w.file.Write(p)
	_ = unix.Flock(fd, unix.LOCK_UN)

	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the current file. Further writes fail.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing log file: %w", err)
	}
	return f.Close()
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file, w.size, w.opened = f, info.Size(), info.ModTime()
	return nil
}

func (w *RotatingWriter) needsRotation(n int, now time.Time) bool {
	if w.size+int64(n) > w.cfg.MaxSize {
		return true
	}
	return w.cfg.Daily && now.Format(time.DateOnly) != w.opened.Format(time.DateOnly)
}

func (w *RotatingWriter) rotate(now time.Time) error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	ext := filepath.Ext(w.path)
	backup := strings.TrimSuffix(w.path, ext) + "." + now.Format(backupStamp) + ext
	if err := os.Rename(w.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}
	if err := w.openFile(); err != nil {
		return err
	}
	w.opened = now

	if w.cfg.Compress {
		// A failed compression leaves the plain backup in place.
		_ = gzipFile(backup)
	}
	w.prune(now)
	return nil
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) (err error) {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path + ".gz")
		}
	}()

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	if _, err = io.Copy(zw, src); err == nil {
		err = zw.Close()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Remove(path)
}

type backupFile struct {
	path    string
	modTime time.Time
}

// backups lists rotated copies of the log file, newest first.
func (w *RotatingWriter) backups() []backupFile {
	dir, base := filepath.Split(w.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil
	}
	var out []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, prefix) {
			continue
		}
		if !strings.HasSuffix(name, ext) && !strings.HasSuffix(name, ext+".gz") {
			continue
		}
		if info, err := e.Info(); err == nil {
			out = append(out, backupFile{filepath.Join(dir, name), info.ModTime()})
		}
	}
	slices.SortFunc(out, func(a, b backupFile) int { return b.modTime.Compare(a.modTime) })
	return out
}

// prune deletes backups past MaxBackups or older than MaxAge, ignoring
// errors.
func (w *RotatingWriter) prune(now time.Time) {
	cutoff := now.AddDate(0, 0, -w.cfg.MaxAge)
	for i, b := range w.backups() {
		if (w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups) || (w.cfg.MaxAge > 0 && b.modTime.Before(cutoff)) {
			_ = os.Remove(b.path)
		}
	}
}
