// Package filter decides which filesystem paths the index ignores and
// parses the human-readable age values used by recency queries.
package filter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ErrInvalidPattern indicates that an exclude pattern could not be compiled.
var ErrInvalidPattern = errors.New("invalid exclude pattern")

type pattern struct {
	raw string
	g   glob.Glob
	// nested patterns contain a separator and are also tried against
	// trailing path fragments, so ".git/*" excludes /src/repo/.git/config.
	nested bool
}

// Matcher matches paths against exclude glob patterns. Each pattern is
// tried against the full path and the base name; '*' crosses separators.
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	patterns []pattern
}

// New compiles the given exclude patterns. Blank patterns are ignored.
func New(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		g, err := glob.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, raw, err)
		}
		m.patterns = append(m.patterns, pattern{
			raw:    raw,
			g:      g,
			nested: strings.Contains(raw, "/"),
		})
	}
	return m, nil
}

// MustNew is like New but panics on an invalid pattern.
func MustNew(patterns ...string) *Matcher {
	m, err := New(patterns...)
	if err != nil {
		panic(err)
	}
	return m
}

// Patterns returns the compiled patterns in their original form.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.raw
	}
	return out
}

// Match reports whether path is excluded. A nil Matcher matches nothing.
func (m *Matcher) Match(path string) bool {
	_, ok := m.MatchPattern(path)
	return ok
}

// MatchPattern is like Match but also returns the pattern that matched.
func (m *Matcher) MatchPattern(path string) (string, bool) {
	if m == nil || len(m.patterns) == 0 || path == "" {
		return "", false
	}
	base := filepath.Base(path)
	for _, p := range m.patterns {
		if p.g.Match(path) || p.g.Match(base) {
			return p.raw, true
		}
		if p.nested && matchFragments(p.g, path) {
			return p.raw, true
		}
	}
	return "", false
}

// matchFragments tries g against every trailing fragment of path that
// starts at a path component.
func matchFragments(g glob.Glob, path string) bool {
	rest := strings.TrimPrefix(path, "/")
	for {
		if g.Match(rest) {
			return true
		}
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return false
		}
		rest = rest[i+1:]
	}
}
