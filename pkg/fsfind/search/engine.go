// Package search answers name, path, size and recency queries against a
// read-only view of the index.
//
// A query runs under a Scope. The smart scope picks a strategy from the
// shape of the query: very short queries use a prefix scan, wildcard
// queries use a pattern match, and everything else tries the full-text
// index first and falls back to a substring scan.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// DefaultLimit caps results when a query does not set a limit.
const DefaultLimit = 100

// DefaultRecentDays is the recency window used when none is given.
const DefaultRecentDays = 7

// Scope selects how a query string is interpreted.
type Scope string

const (
	// ScopeSmart chooses a strategy from the query's shape.
	ScopeSmart Scope = "smart"
	// ScopeDefault tries a prefix scan, then a substring scan.
	ScopeDefault Scope = "default"
	// ScopePath matches anywhere in the full path.
	ScopePath Scope = "path"
	// ScopeSubstring matches anywhere in the name.
	ScopeSubstring Scope = "substring"
)

// ParseScope parses a scope name. The empty string is ScopeSmart.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSmart:
		return ScopeSmart, nil
	case ScopeDefault:
		return ScopeDefault, nil
	case ScopePath:
		return ScopePath, nil
	case ScopeSubstring:
		return ScopeSubstring, nil
	}
	return "", fmt.Errorf("%w: unknown search scope %q", types.ErrValidation, s)
}

// Query describes one search.
type Query struct {
	Text    string
	Scope   Scope
	Filters Filters
	Limit   int
}

// Result holds the rows of one search and how they were produced.
type Result struct {
	Query    string         `json:"query,omitempty" yaml:"query,omitempty"`
	Entries  []*store.Entry `json:"entries" yaml:"entries"`
	Strategy string         `json:"strategy" yaml:"strategy"`
	Elapsed  time.Duration  `json:"elapsed_ns" yaml:"elapsed"`
	// FellBack is set when the first strategy tried produced nothing and
	// Strategy names the one that did.
	FellBack bool `json:"fell_back,omitempty" yaml:"fell_back,omitempty"`
}

// Engine runs queries against a store.
type Engine struct {
	store *store.Store
	owned bool
	now   func() time.Time
	log   *logging.Logger

	prefix, substring, pattern, fullText, path Strategy
}

// Open opens the store at path read-only. A missing store is a usage
// error.
func Open(path string) (*Engine, error) {
	s, err := store.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	e := New(s)
	e.owned = true
	return e, nil
}

// New creates an engine over an open store. Closing the engine does not
// close s.
func New(s *store.Store) *Engine {
	return &Engine{
		store:     s,
		now:       time.Now,
		log:       logging.Get("search"),
		prefix:    prefixStrategy{store: s},
		substring: substringStrategy{store: s},
		pattern:   patternStrategy{store: s},
		fullText:  fullTextStrategy{store: s},
		path:      pathStrategy{store: s},
	}
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store { return e.store }

// Close closes the store when the engine opened it.
func (e *Engine) Close() error {
	if e.owned {
		return e.store.Close()
	}
	return nil
}

// Search runs q and reports the strategy that produced the rows.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrUsage)
	}
	if q.Filters.DirsOnly && q.Filters.FilesOnly {
		return nil, fmt.Errorf("%w: dirs-only and files-only are mutually exclusive", types.ErrValidation)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()
	var (
		res *Result
		err error
	)
	switch q.Scope {
	case "", ScopeSmart:
		res, err = e.smart(ctx, text, q.Filters, limit)
	case ScopeDefault:
		res, err = e.chain(ctx, text, q.Filters, limit, e.prefix, e.substring)
	case ScopePath:
		res, err = e.chain(ctx, text, q.Filters, limit, e.path)
	case ScopeSubstring:
		res, err = e.chain(ctx, text, q.Filters, limit, e.substring)
	default:
		return nil, fmt.Errorf("%w: unknown search scope %q", types.ErrValidation, q.Scope)
	}
	if err != nil {
		return nil, err
	}
	res.Query = text
	res.Elapsed = time.Since(start)
	e.log.Debug("search complete", "query", text, "strategy", res.Strategy,
		"results", len(res.Entries), "fell_back", res.FellBack, "elapsed", res.Elapsed)
	return res, nil
}

// smart picks a strategy from the shape of q.
func (e *Engine) smart(ctx context.Context, q string, f Filters, limit int) (*Result, error) {
	switch {
	case utf8.RuneCountInString(q) <= 2:
		return e.chain(ctx, q, f, limit, e.prefix)
	case strings.HasPrefix(q, "*") || strings.HasSuffix(q, "*"):
		return e.chain(ctx, q, f, limit, e.pattern)
	}

	entries, err := e.fullText.Execute(ctx, q, f, limit)
	if err != nil {
		e.log.Debug("full-text search failed, using substring", "query", q, "error", err)
	} else if len(entries) > 0 {
		return &Result{Entries: entries, Strategy: e.fullText.Name()}, nil
	}

	entries, err = e.substring.Execute(ctx, q, f, limit)
	if err != nil {
		return nil, err
	}
	return &Result{Entries: entries, Strategy: e.substring.Name(), FellBack: true}, nil
}

// chain runs the strategies in order and returns the first non-empty
// result. When all are empty the last strategy is reported.
func (e *Engine) chain(ctx context.Context, q string, f Filters, limit int, strategies ...Strategy) (*Result, error) {
	res := &Result{}
	for i, s := range strategies {
		entries, err := s.Execute(ctx, q, f, limit)
		if err != nil {
			return nil, err
		}
		res.Entries = entries
		res.Strategy = s.Name()
		res.FellBack = i > 0
		if len(entries) > 0 {
			break
		}
	}
	return res, nil
}

// BySize lists files between minSize and maxSize, largest first. An empty
// bound is open; with both empty nothing matches. Bounds use the syntax of
// types.ParseSize.
func (e *Engine) BySize(ctx context.Context, minSize, maxSize string, limit int) (*Result, error) {
	lo, hi := int64(-1), int64(-1)
	var err error
	if strings.TrimSpace(minSize) != "" {
		if lo, err = types.ParseSize(minSize); err != nil {
			return nil, fmt.Errorf("minimum size: %w", err)
		}
	}
	if strings.TrimSpace(maxSize) != "" {
		if hi, err = types.ParseSize(maxSize); err != nil {
			return nil, fmt.Errorf("maximum size: %w", err)
		}
	}
	return e.run(ctx, sizeStrategy{store: e.store, min: lo, max: hi}, limit)
}

// Recent lists files modified within the last age, newest first.
func (e *Engine) Recent(ctx context.Context, age time.Duration, limit int) (*Result, error) {
	if age < 0 {
		return nil, fmt.Errorf("%w: recency window must not be negative", types.ErrValidation)
	}
	return e.run(ctx, recentStrategy{store: e.store, cutoff: e.now().Add(-age)}, limit)
}

// RecentDays is Recent with a window of whole days.
func (e *Engine) RecentDays(ctx context.Context, days, limit int) (*Result, error) {
	return e.Recent(ctx, time.Duration(days)*24*time.Hour, limit)
}

func (e *Engine) run(ctx context.Context, s Strategy, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	start := time.Now()
	entries, err := s.Execute(ctx, "", Filters{}, limit)
	if err != nil {
		return nil, err
	}
	return &Result{Entries: entries, Strategy: s.Name(), Elapsed: time.Since(start)}, nil
}

// Stats aggregates the entries currently in the index.
func (e *Engine) Stats(ctx context.Context) (*store.Stats, error) {
	return e.store.ComputeStats(ctx)
}

// Memory reports the page cache configuration against the database size.
func (e *Engine) Memory(ctx context.Context) (*store.MemoryStats, error) {
	return e.store.MemoryStats(ctx)
}
