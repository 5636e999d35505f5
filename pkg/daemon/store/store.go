// Package store provides SQLite-backed storage for the file index.
//
// The index keeps one row per path in the entries table, a full-text
// projection of name and path in entries_fts, and a key/value metadata
// table. The database runs in WAL mode so one writer (the ingestor or the
// updater) and any number of readers (search, warm) can use it at once.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// ErrNotFound is returned when a path or the store itself does not exist.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned when a write is attempted on a read-only store.
var ErrReadOnly = errors.New("store is read-only")

// DefaultBusyTimeout is how long a connection waits for the write lock.
const DefaultBusyTimeout = 5 * time.Second

// Entry represents a file or directory in the index.
type Entry struct {
	ID        int64     `json:"-" yaml:"-"`
	Path      string    `json:"path" yaml:"path"`
	Name      string    `json:"name" yaml:"name"`
	Inode     uint64    `json:"inode" yaml:"inode"`
	Size      int64     `json:"size" yaml:"size"`
	ModTime   time.Time `json:"mtime" yaml:"mtime"`
	Mode      uint32    `json:"mode" yaml:"mode"`
	IsDir     bool      `json:"is_dir" yaml:"is_dir"`
	IndexedAt time.Time `json:"indexed_at" yaml:"indexed_at"`
}

// Options configures how a store is opened.
type Options struct {
	// ReadOnly opens the store with query_only set. The database file must
	// already exist.
	ReadOnly bool

	// BusyTimeout bounds how long a statement waits on a locked database.
	// Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration
}

// Store is the index storage backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Open opens or creates a read-write store at path and brings its schema
// up to date.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{})
}

// OpenReadOnly opens an existing store for queries only. A missing
// database file yields an error wrapping ErrNotFound and types.ErrUsage.
func OpenReadOnly(path string) (*Store, error) {
	return OpenWithOptions(path, Options{ReadOnly: true})
}

// OpenWithOptions opens a store at path.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: store path is empty", types.ErrUsage)
	}

	if opts.ReadOnly {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: store %s: %w", types.ErrUsage, path, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stat store: %w", types.ErrIO, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: store %s is a directory", types.ErrUsage, path)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating store directory: %w", types.ErrIO, err)
	}

	db, err := sql.Open("sqlite", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", types.ErrEngine, err)
	}

	if opts.ReadOnly {
		db.SetMaxOpenConns(4)
	} else {
		// One connection serializes writers inside the process.
		db.SetMaxOpenConns(1)
	}
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path, readOnly: opts.ReadOnly}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to open database: %w", types.ErrEngine, err)
	}

	if !opts.ReadOnly {
		if _, err := s.Migrate(ctx, nil); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return s, nil
}

// dsn builds the modernc.org/sqlite connection string. Pragmas are applied
// to every pooled connection.
func dsn(path string, opts Options) string {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "temp_store(MEMORY)")
	q.Add("_pragma", "cache_size(-64000)")
	if opts.ReadOnly {
		q.Add("_pragma", "query_only(1)")
	} else {
		q.Set("_txlock", "immediate")
	}
	return path + "?" + q.Encode()
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened for queries only.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Files returns the database file and its WAL companions that exist on disk.
func (s *Store) Files() []string {
	var files []string
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if _, err := os.Stat(s.path + suffix); err == nil {
			files = append(files, s.path+suffix)
		}
	}
	return files
}

func (s *Store) checkWritable() error {
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

// entryColumns is the column list scanned by scanEntry.
var entryColumns = []string{"id", "path", "name", "inode", "size", "mtime", "mode", "is_dir", "indexed_at"}

// EntryColumns returns the entry column list, optionally qualified with a
// table alias, for use in SELECT statements whose rows are read by
// QueryEntries.
func EntryColumns(alias string) string {
	if alias == "" {
		return strings.Join(entryColumns, ", ")
	}
	cols := make([]string, len(entryColumns))
	for i, c := range entryColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e         Entry
		inode     int64
		mtime     int64
		mode      int64
		isDir     int64
		indexedAt int64
	)
	if err := row.Scan(&e.ID, &e.Path, &e.Name, &inode, &e.Size, &mtime, &mode, &isDir, &indexedAt); err != nil {
		return nil, err
	}
	e.Inode = uint64(inode)
	e.ModTime = fromUnix(mtime)
	e.Mode = uint32(mode)
	e.IsDir = isDir != 0
	e.IndexedAt = fromUnix(indexedAt)
	return &e, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// IsPathUnderRoot checks if path equals root or is a descendant of root.
// It handles edge cases like trailing slashes and ensures /foo/bar does not
// match /foo/b.
func IsPathUnderRoot(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	if path == root {
		return true
	}
	if root == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, root+"/")
}

// descendantRange returns the half-open key range [lo, hi) holding every
// path strictly below dir. '0' is the byte after '/'.
func descendantRange(dir string) (string, string) {
	dir = strings.TrimSuffix(dir, "/")
	return dir + "/", dir + "0"
}
