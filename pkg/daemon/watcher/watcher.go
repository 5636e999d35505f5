// Package watcher turns filesystem notifications into index mutation events.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/fsfind/pkg/fsfind/filter"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

// DefaultPairWindow is how long a move-from waits for its matching create.
const DefaultPairWindow = 100 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// MaxDepth is the number of directory levels watched below each root.
	// Zero or less means unlimited.
	MaxDepth int

	// BufferSize is the fsnotify event buffer length.
	BufferSize int

	// Exclude lists directories that are never watched or walked.
	Exclude *filter.Matcher

	// PairWindow bounds how long a move-from is held for pairing
	// (default DefaultPairWindow).
	PairWindow time.Duration

	// StoredInode returns the indexed inode for a path. A move-from is
	// coalesced with the next create into a Rename when the created path
	// has that inode. Nil disables pairing.
	StoredInode func(path string) (uint64, bool)
}

// Watcher watches directory trees and reports mutations as Events.
type Watcher struct {
	fsw  *fsnotify.Watcher
	opts Options

	mu     sync.RWMutex
	roots  []string
	paths  map[string]bool
	closed bool

	// Owned by the Run goroutine.
	pending   *Event
	pairTimer *time.Timer
}

// New creates a new Watcher.
func New(opts Options) (*Watcher, error) {
	if opts.PairWindow <= 0 {
		opts.PairWindow = DefaultPairWindow
	}
	size := opts.BufferSize
	if size < 0 {
		size = 0
	}
	fsw, err := fsnotify.NewBufferedWatcher(uint(size))
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	return &Watcher{
		fsw:   fsw,
		opts:  opts,
		paths: make(map[string]bool),
	}, nil
}

// Watch starts watching root and the directories below it, down to
// MaxDepth levels. Symlinks are not followed.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", absRoot)
	}

	w.mu.Lock()
	if !slices.Contains(w.roots, absRoot) {
		w.roots = append(w.roots, absRoot)
	}
	w.mu.Unlock()

	if err := w.addWatch(absRoot); err != nil {
		return err
	}
	_, err = w.walk(absRoot, false)
	return err
}

// Unwatch stops watching a path and all its subdirectories.
func (w *Watcher) Unwatch(root string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}

	w.mu.Lock()
	w.roots = slices.DeleteFunc(w.roots, func(r string) bool { return r == absRoot })
	w.mu.Unlock()

	w.dropWatches(absRoot)
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.roots)
}

// WatchCount returns the number of watched directories.
func (w *Watcher) WatchCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// IsWatched reports whether dir has a watch.
func (w *Watcher) IsWatched(dir string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paths[dir]
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		logging.Get("watcher").Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

// dropWatches removes the watches on path and every directory below it.
func (w *Watcher) dropWatches(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.fsw.Remove(p)
			delete(w.paths, p)
		}
	}
}

// rootOf returns the watch root containing path.
func (w *Watcher) rootOf(path string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	best := ""
	for _, r := range w.roots {
		if (path == r || isSubPath(path, r)) && len(r) > len(best) {
			best = r
		}
	}
	return best, best != ""
}

// withinDepth reports whether a directory at path may be watched.
func (w *Watcher) withinDepth(root, path string) bool {
	return w.opts.MaxDepth <= 0 || depth(root, path) <= w.opts.MaxDepth
}

// walk adds watches for the directories below dir. When collect is set it
// also returns a Create event for every entry found, parents first.
func (w *Watcher) walk(dir string, collect bool) ([]Event, error) {
	root, ok := w.rootOf(dir)
	if !ok {
		return nil, nil
	}
	if !w.withinDepth(root, dir) {
		return nil, nil
	}

	var (
		mu     sync.Mutex
		events []Event
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip entries that vanish or cannot be read
		}
		if path == dir {
			return nil
		}
		if d.IsDir() && w.opts.Exclude.Match(path) {
			return fastwalk.SkipDir
		}

		if collect {
			mu.Lock()
			events = append(events, Event{Op: Create, Path: path, Synthetic: true})
			mu.Unlock()
		}

		if d.IsDir() {
			if !w.withinDepth(root, path) {
				return fastwalk.SkipDir
			}
			_ = w.addWatch(path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fastwalk.ErrSkipFiles) {
		return events, err
	}

	slices.SortFunc(events, func(a, b Event) int { return strings.Compare(a.Path, b.Path) })
	return events, nil
}

// Run delivers events to handle until ctx is cancelled or the watcher is
// closed. handle is called from this goroutine only, in arrival order. A
// move-from still held for pairing is delivered before Run returns.
func (w *Watcher) Run(ctx context.Context, handle func(Event)) {
	log := logging.Get("watcher")
	defer w.flushPending(handle)

	for {
		var pairC <-chan time.Time
		if w.pairTimer != nil {
			pairC = w.pairTimer.C
		}

		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.process(ev, handle)

		case <-pairC:
			w.pairTimer = nil
			w.flushPending(handle)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn("event queue overflowed; some changes were missed", "error", err)
				continue
			}
			log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) process(ev fsnotify.Event, handle func(Event)) {
	op, ok := translate(ev)
	if !ok {
		return
	}
	path := filepath.Clean(ev.Name)

	if w.pending != nil {
		pend := *w.pending
		w.clearPending()
		if op == Create && w.pairs(pend.Path, path) {
			w.dropWatches(pend.Path)
			handle(Event{Op: Rename, OldPath: pend.Path, Path: path})
			w.watchCreated(path, false, handle)
			return
		}
		w.dropWatches(pend.Path)
		handle(pend)
	}

	switch op {
	case MoveFrom:
		w.pending = &Event{Op: MoveFrom, Path: path}
		w.pairTimer = time.NewTimer(w.opts.PairWindow)
	case Create:
		handle(Event{Op: Create, Path: path})
		w.watchCreated(path, true, handle)
	case Delete:
		w.dropWatches(path)
		handle(Event{Op: Delete, Path: path})
	default:
		handle(Event{Op: op, Path: path})
	}
}

// pairs reports whether newPath is oldPath moved, judged by inode.
func (w *Watcher) pairs(oldPath, newPath string) bool {
	if w.opts.StoredInode == nil {
		return false
	}
	ino, ok := w.opts.StoredInode(oldPath)
	if !ok || ino == 0 {
		return false
	}
	e, err := Stat(newPath)
	if err != nil {
		return false
	}
	return e.Inode == ino
}

// watchCreated adds watches below a newly appeared directory. With
// emitChildren set, its existing contents are reported as creates.
func (w *Watcher) watchCreated(path string, emitChildren bool, handle func(Event)) {
	info, err := os.Lstat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if w.opts.Exclude.Match(path) {
		return
	}
	root, ok := w.rootOf(path)
	if !ok || !w.withinDepth(root, path) {
		return
	}
	if err := w.addWatch(path); err != nil {
		return
	}

	events, err := w.walk(path, emitChildren)
	if err != nil {
		logging.Get("watcher").Warn("walking new directory", "path", path, "error", err)
	}
	for _, ev := range events {
		handle(ev)
	}
}

func (w *Watcher) clearPending() {
	w.pending = nil
	if w.pairTimer != nil {
		w.pairTimer.Stop()
		w.pairTimer = nil
	}
}

func (w *Watcher) flushPending(handle func(Event)) {
	if w.pending == nil {
		return
	}
	pend := *w.pending
	w.clearPending()
	w.dropWatches(pend.Path)
	handle(pend)
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.paths = make(map[string]bool)
	return w.fsw.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	if parent == "/" {
		return len(path) > 1 && path[0] == '/'
	}
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}

// depth returns how many levels path lies below root.
func depth(root, path string) int {
	if path == root {
		return 0
	}
	rel := strings.TrimPrefix(path, root)
	rel = strings.Trim(rel, string(filepath.Separator))
	return strings.Count(rel, string(filepath.Separator)) + 1
}
