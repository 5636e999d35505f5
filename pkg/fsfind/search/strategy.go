package search

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
)

// Strategy names reported in Result.Strategy.
const (
	StrategyPrefix    = "prefix"
	StrategySubstring = "substring"
	StrategyPattern   = "pattern"
	StrategyFullText  = "fulltext"
	StrategyPath      = "path"
	StrategySize      = "size"
	StrategyRecent    = "recent"
)

// Filters restricts results by entry kind. At most one field may be set.
type Filters struct {
	DirsOnly  bool
	FilesOnly bool
}

// clause returns the SQL condition for the filters on the given column
// prefix, or "" when no filter applies.
func (f Filters) clause(alias string) string {
	switch {
	case f.DirsOnly:
		return alias + "is_dir = 1"
	case f.FilesOnly:
		return alias + "is_dir = 0"
	}
	return ""
}

// Strategy is one way of turning a query string into an ordered set of
// entries.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, q string, f Filters, limit int) ([]*store.Entry, error)
}

// where joins the non-empty conditions with AND.
func where(conds ...string) string {
	var parts []string
	for _, c := range conds {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike quotes the LIKE metacharacters of s for use with ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// prefixUpperBound returns the smallest string greater than every string
// starting with prefix, or "" when no such bound exists.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

type prefixStrategy struct{ store *store.Store }

func (prefixStrategy) Name() string { return StrategyPrefix }

// Execute matches names starting with q using a range scan on the name
// index. Matching is case-sensitive.
func (p prefixStrategy) Execute(ctx context.Context, q string, f Filters, limit int) ([]*store.Entry, error) {
	conds := []string{"name >= ?", f.clause("")}
	args := []any{q}
	if hi := prefixUpperBound(q); hi != "" {
		conds = append(conds, "name < ?")
		args = append(args, hi)
	}
	query := `SELECT ` + store.EntryColumns("") + ` FROM entries` + where(conds...) + `
		ORDER BY CASE WHEN name = ? THEN 0 ELSE 1 END, length(name), name
		LIMIT ?`
	args = append(args, q, limit)
	return p.store.QueryEntries(ctx, query, args...)
}

type substringStrategy struct{ store *store.Store }

func (substringStrategy) Name() string { return StrategySubstring }

// Execute matches names containing q, ranking exact names first and then
// names that start with q.
func (s substringStrategy) Execute(ctx context.Context, q string, f Filters, limit int) ([]*store.Entry, error) {
	esc := escapeLike(q)
	query := `SELECT ` + store.EntryColumns("") + ` FROM entries` +
		where(`name LIKE '%' || ? || '%' ESCAPE '\'`, f.clause("")) + `
		ORDER BY
			CASE
				WHEN name = ? THEN 0
				WHEN name LIKE ? || '%' ESCAPE '\' THEN 1
				ELSE 2
			END,
			length(name),
			name
		LIMIT ?`
	return s.store.QueryEntries(ctx, query, esc, q, esc, limit)
}

type patternStrategy struct{ store *store.Store }

func (patternStrategy) Name() string { return StrategyPattern }

// Execute treats q as a shell wildcard over names.
func (p patternStrategy) Execute(ctx context.Context, q string, f Filters, limit int) ([]*store.Entry, error) {
	query := `SELECT ` + store.EntryColumns("") + ` FROM entries` +
		where(`name LIKE ? ESCAPE '\'`, f.clause("")) + `
		ORDER BY length(name), name
		LIMIT ?`
	return p.store.QueryEntries(ctx, query, WildcardToLike(q), limit)
}

// WildcardToLike converts a shell wildcard to a LIKE pattern: * becomes %
// and ? becomes _. Literal % and _ are escaped with a backslash.
func WildcardToLike(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 4)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type fullTextStrategy struct{ store *store.Store }

func (fullTextStrategy) Name() string { return StrategyFullText }

// Execute runs a bm25-ranked text match. A query without any word
// characters matches nothing.
func (t fullTextStrategy) Execute(ctx context.Context, q string, f Filters, limit int) ([]*store.Entry, error) {
	match := TextQuery(q)
	if match == "" {
		return nil, nil
	}
	query := `SELECT ` + store.EntryColumns("e") + `
		FROM entries_fts
		JOIN entries e ON e.id = entries_fts.rowid` +
		where("entries_fts MATCH ?", f.clause("e.")) + `
		ORDER BY bm25(entries_fts), e.id
		LIMIT ?`
	return t.store.QueryEntries(ctx, query, match, limit)
}

// TextQuery turns free text into an FTS5 expression: every run of letters
// and digits becomes a quoted term and the terms are ANDed.
func TextQuery(q string) string {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

type pathStrategy struct{ store *store.Store }

func (pathStrategy) Name() string { return StrategyPath }

// Execute matches q anywhere in the full path. Paths that start with q
// rank first.
func (p pathStrategy) Execute(ctx context.Context, q string, f Filters, limit int) ([]*store.Entry, error) {
	esc := escapeLike(q)
	query := `SELECT ` + store.EntryColumns("") + ` FROM entries` +
		where(`path LIKE '%' || ? || '%' ESCAPE '\'`, f.clause("")) + `
		ORDER BY
			CASE WHEN path LIKE ? || '%' ESCAPE '\' THEN 0 ELSE 1 END,
			length(path),
			path
		LIMIT ?`
	return p.store.QueryEntries(ctx, query, esc, esc, limit)
}

// sizeStrategy lists files whose size lies in [min, max], largest first.
// A negative bound is absent.
type sizeStrategy struct {
	store    *store.Store
	min, max int64
}

func (sizeStrategy) Name() string { return StrategySize }

func (s sizeStrategy) Execute(ctx context.Context, _ string, _ Filters, limit int) ([]*store.Entry, error) {
	if s.min < 0 && s.max < 0 {
		return nil, nil
	}
	conds := []string{"is_dir = 0"}
	var args []any
	if s.min >= 0 {
		conds = append(conds, "size >= ?")
		args = append(args, s.min)
	}
	if s.max >= 0 {
		conds = append(conds, "size <= ?")
		args = append(args, s.max)
	}
	query := `SELECT ` + store.EntryColumns("") + ` FROM entries` + where(conds...) + `
		ORDER BY size DESC, name
		LIMIT ?`
	return s.store.QueryEntries(ctx, query, append(args, limit)...)
}

// recentStrategy lists files modified at or after cutoff, newest first.
type recentStrategy struct {
	store  *store.Store
	cutoff time.Time
}

func (recentStrategy) Name() string { return StrategyRecent }

func (r recentStrategy) Execute(ctx context.Context, _ string, _ Filters, limit int) ([]*store.Entry, error) {
	query := `SELECT ` + store.EntryColumns("") + ` FROM entries
		WHERE is_dir = 0 AND mtime >= ?
		ORDER BY mtime DESC, name
		LIMIT ?`
	return r.store.QueryEntries(ctx, query, r.cutoff.Unix(), limit)
}
