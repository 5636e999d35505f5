// Package output provides formatters for displaying search results and
// index statistics in various output formats (pretty, plain, json, yaml,
// etc.).
//
// The package uses a registry pattern to allow registration of multiple
// formatter implementations that can be selected at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
)

// FileInfo describes one index entry for output formatting. It extends
// the stored metadata with computed fields like human-readable size and
// age.
type FileInfo struct {
	// Path is the absolute path to the entry.
	Path string `json:"path" yaml:"path"`

	// Name is the base name of the entry.
	Name string `json:"name" yaml:"name"`

	// Dir is the directory containing the entry.
	Dir string `json:"dir" yaml:"dir"`

	// Ext is the file extension including the dot (e.g., ".zip").
	Ext string `json:"ext" yaml:"ext"`

	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir" yaml:"is_dir"`

	// Inode is the entry's inode number.
	Inode uint64 `json:"inode" yaml:"inode"`

	// Size is the size in bytes. Directories report 0.
	Size int64 `json:"size" yaml:"size"`

	// SizeHuman is the human-readable size (e.g., "1.5 GiB"), or "DIR".
	SizeHuman string `json:"size_human" yaml:"size_human"`

	// ModTime is the last modification time.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`

	// Age is the time since the entry was last modified.
	Age time.Duration `json:"age" yaml:"age"`

	// Perms is the human-readable permission string (e.g., "-rw-r--r--").
	Perms string `json:"perms" yaml:"perms"`

	// Mode is the entry's permission and mode bits.
	Mode os.FileMode `json:"mode" yaml:"mode"`
}

// SearchInfo describes how a search was answered.
type SearchInfo struct {
	Query    string        `json:"query" yaml:"query"`
	Strategy string        `json:"strategy" yaml:"strategy"`
	FellBack bool          `json:"fell_back" yaml:"fell_back"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
}

// IndexStats holds corpus-level statistics for display.
type IndexStats struct {
	Total       int64     `json:"total" yaml:"total"`
	Dirs        int64     `json:"dirs" yaml:"dirs"`
	Files       int64     `json:"files" yaml:"files"`
	TotalSize   int64     `json:"total_size" yaml:"total_size"`
	LatestMTime time.Time `json:"latest_mtime" yaml:"latest_mtime"`
}

// MemoryInfo reports the page cache against the database size.
type MemoryInfo struct {
	CacheBytes int64 `json:"cache_bytes" yaml:"cache_bytes"`
	DBBytes    int64 `json:"db_bytes" yaml:"db_bytes"`
	// CacheRatio is the cache size as a percentage of the database size.
	CacheRatio float64 `json:"cache_ratio" yaml:"cache_ratio"`
}

// Result contains the complete output data for formatting. A result
// carries search rows, statistics, memory information or any mix of them.
type Result struct {
	// Files contains the matching entries in rank order.
	Files []FileInfo `json:"files" yaml:"files"`

	// Search describes the query that produced Files.
	Search SearchInfo `json:"search" yaml:"search"`

	// Stats is set when index statistics were requested.
	Stats *IndexStats `json:"stats,omitempty" yaml:"stats,omitempty"`

	// Memory is set when memory statistics were requested.
	Memory *MemoryInfo `json:"memory,omitempty" yaml:"memory,omitempty"`

	// Details asks human-oriented formatters for size and time columns.
	Details bool `json:"-" yaml:"-"`

	// Warnings contains any warning messages generated during the search.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TotalSize returns the sum of all file sizes in the result.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// NewFileInfo converts an index entry, computing its age against now.
func NewFileInfo(e *store.Entry, now time.Time) FileInfo {
	mode := os.FileMode(e.Mode & 0o777)
	if e.IsDir {
		mode |= os.ModeDir
	}
	fi := FileInfo{
		Path:    e.Path,
		Name:    e.Name,
		Dir:     filepath.Dir(e.Path),
		IsDir:   e.IsDir,
		Inode:   e.Inode,
		Size:    e.Size,
		ModTime: e.ModTime,
		Perms:   mode.String(),
		Mode:    mode,
	}
	if fi.Name == "" {
		fi.Name = filepath.Base(e.Path)
	}
	if e.IsDir {
		fi.Size = 0
		fi.SizeHuman = "DIR"
	} else {
		fi.Ext = filepath.Ext(fi.Name)
		fi.SizeHuman = humanize.IBytes(uint64(max(e.Size, 0)))
	}
	if !e.ModTime.IsZero() {
		fi.Age = now.Sub(e.ModTime)
	}
	return fi
}

// FromEntries converts index entries in order.
func FromEntries(entries []*store.Entry, now time.Time) []FileInfo {
	files := make([]FileInfo, len(entries))
	for i, e := range entries {
		files[i] = NewFileInfo(e, now)
	}
	return files
}

// FromStats converts store statistics.
func FromStats(st *store.Stats) *IndexStats {
	if st == nil {
		return nil
	}
	return &IndexStats{
		Total:       st.Total,
		Dirs:        st.Dirs,
		Files:       st.Files,
		TotalSize:   st.TotalSize,
		LatestMTime: st.LatestMTime,
	}
}

// FromMemory converts store memory statistics.
func FromMemory(ms *store.MemoryStats) *MemoryInfo {
	if ms == nil {
		return nil
	}
	return &MemoryInfo{
		CacheBytes: ms.CacheBytes,
		DBBytes:    ms.DBBytes,
		CacheRatio: ms.CacheRatio * 100,
	}
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	// It returns an error if formatting fails.
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
// It returns an error if the formatter is not found.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
