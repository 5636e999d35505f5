// Package warm pulls the index into memory before the first query.
//
// The warmer runs a fixed set of read queries that touch the name, text
// and directory pages of the store, and can optionally read the database
// files end to end so the OS page cache holds them. A failing step is
// recorded in the report; warming never fails the caller.
package warm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

// DefaultChunkSize is the read size used when preloading database files.
const DefaultChunkSize = 1 << 20

// Step names, in the order they run.
const (
	StepCount       = "count"
	StepNames       = "names"
	StepTextIndex   = "text index"
	StepDirectories = "directories"
	StepNameIndex   = "name index"
)

type step struct {
	name  string
	query string
}

var steps = []step{
	{StepNames, `SELECT name FROM entries LIMIT 10000`},
	{StepTextIndex, `SELECT rowid FROM entries_fts LIMIT 5000`},
	{StepDirectories, `SELECT path FROM entries WHERE is_dir = 1 LIMIT 1000`},
	{StepNameIndex, `SELECT name FROM entries ORDER BY name LIMIT 1000`},
}

// StepResult is the outcome of one warming query.
type StepResult struct {
	Name    string        `json:"name" yaml:"name"`
	Rows    int64         `json:"rows" yaml:"rows"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Err     error         `json:"-" yaml:"-"`
}

// PreloadResult is the outcome of reading the database files.
type PreloadResult struct {
	Files   int           `json:"files" yaml:"files"`
	Bytes   int64         `json:"bytes" yaml:"bytes"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Err     error         `json:"-" yaml:"-"`
}

// Rate returns the preload throughput in bytes per second.
func (p *PreloadResult) Rate() float64 {
	if p.Elapsed <= 0 {
		return 0
	}
	return float64(p.Bytes) / p.Elapsed.Seconds()
}

// Report describes a warming run.
type Report struct {
	Entries int64          `json:"entries" yaml:"entries"`
	Steps   []StepResult   `json:"steps" yaml:"steps"`
	Preload *PreloadResult `json:"preload,omitempty" yaml:"preload,omitempty"`
	Memory  *SystemMemory  `json:"memory,omitempty" yaml:"memory,omitempty"`
	Elapsed time.Duration  `json:"elapsed" yaml:"elapsed"`
}

// OK reports whether every step, and the preload if it ran, succeeded.
func (r *Report) OK() bool {
	return r.Err() == nil
}

// Err joins the errors of all failed steps.
func (r *Report) Err() error {
	var errs []error
	if r.Preload != nil && r.Preload.Err != nil {
		errs = append(errs, fmt.Errorf("preload: %w", r.Preload.Err))
	}
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return errors.Join(errs...)
}

// Options configures a Warmer.
type Options struct {
	// Preload reads the database files sequentially before the queries run.
	Preload bool

	// ChunkSize is the preload read size. Zero means DefaultChunkSize.
	ChunkSize int

	// OnPreload, if set, is called after each chunk with the bytes read so
	// far across all files.
	OnPreload func(bytes int64)

	// DetectMemory adds a system memory report.
	DetectMemory bool
}

// Warmer warms one store.
type Warmer struct {
	store *store.Store
	opts  Options
	log   *logging.Logger

	detect func() (*SystemMemory, error)
}

// New creates a warmer for s.
func New(s *store.Store, opts Options) *Warmer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Warmer{
		store:  s,
		opts:   opts,
		log:    logging.Get("warm"),
		detect: DetectMemory,
	}
}

// Run warms the store. It never returns an error: failures are recorded
// in the report and logged.
func (w *Warmer) Run(ctx context.Context) *Report {
	start := time.Now()
	r := &Report{}

	if w.opts.DetectMemory {
		mem, err := w.detect()
		if err != nil {
			w.log.Debug("memory detection unavailable", "error", err)
		} else {
			r.Memory = mem
		}
	}

	if w.opts.Preload {
		r.Preload = w.preload(ctx)
	}

	countStart := time.Now()
	n, err := w.store.Count(ctx)
	r.Entries = n
	r.Steps = append(r.Steps, w.record(StepResult{Name: StepCount, Rows: 1, Elapsed: time.Since(countStart), Err: err}))

	for _, s := range steps {
		stepStart := time.Now()
		rows, err := w.store.Touch(ctx, s.query)
		r.Steps = append(r.Steps, w.record(StepResult{
			Name:    s.name,
			Rows:    int64(rows),
			Elapsed: time.Since(stepStart),
			Err:     err,
		}))
	}

	r.Elapsed = time.Since(start)
	w.log.Info("cache warmed", "entries", r.Entries, "ok", r.OK(), "elapsed", r.Elapsed)
	return r
}

func (w *Warmer) record(s StepResult) StepResult {
	if s.Err != nil {
		w.log.Warn("warm step failed", "step", s.Name, "error", s.Err)
		s.Rows = 0
	} else {
		w.log.Debug("warm step", "step", s.Name, "rows", s.Rows, "elapsed", s.Elapsed)
	}
	return s
}

// preload reads every database file in ChunkSize reads.
func (w *Warmer) preload(ctx context.Context) *PreloadResult {
	start := time.Now()
	res := &PreloadResult{}
	buf := make([]byte, w.opts.ChunkSize)

	for _, path := range w.store.Files() {
		n, err := w.readFile(ctx, path, buf, res.Bytes)
		res.Bytes += n
		if err != nil {
			res.Err = err
			w.log.Warn("preload failed", "file", path, "error", err)
			break
		}
		res.Files++
	}

	res.Elapsed = time.Since(start)
	w.log.Debug("preload complete", "files", res.Files, "bytes", res.Bytes, "elapsed", res.Elapsed)
	return res
}

func (w *Warmer) readFile(ctx context.Context, path string, buf []byte, base int64) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	adviseSequential(f)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := f.Read(buf)
		total += int64(n)
		if n > 0 && w.opts.OnPreload != nil {
			w.opts.OnPreload(base + total)
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
