package store

import (
	"context"
)

// QueryEntries runs a read query whose select list is EntryColumns and
// returns the resulting entries.
func (s *Store) QueryEntries(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineErr("query", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, engineErr("scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, engineErr("query", err)
	}
	return entries, nil
}

// Touch runs a read query and discards its rows, returning how many were
// read. It exists to pull pages into the engine and OS caches.
func (s *Store) Touch(ctx context.Context, query string, args ...any) (int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, engineErr("query", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, engineErr("query", rows.Err())
}

// Count returns the number of entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, engineErr("count", err)
}

// CountTextMatches returns how many text index rows match a full-text
// expression.
func (s *Store) CountTextMatches(ctx context.Context, match string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries_fts WHERE entries_fts MATCH ?`, match).Scan(&n)
	return n, engineErr("count text matches", err)
}

// MemoryStats describes the page cache configuration and database size.
type MemoryStats struct {
	PageSize   int64   `json:"page_size" yaml:"page_size"`
	PageCount  int64   `json:"page_count" yaml:"page_count"`
	CacheBytes int64   `json:"cache_bytes" yaml:"cache_bytes"`
	DBBytes    int64   `json:"db_bytes" yaml:"db_bytes"`
	CacheRatio float64 `json:"cache_ratio" yaml:"cache_ratio"`
}

// MemoryStats reports the connection cache size against the database size.
// A negative cache_size pragma is a size in KiB, a positive one a page count.
func (s *Store) MemoryStats(ctx context.Context) (*MemoryStats, error) {
	var cacheSize int64
	var ms MemoryStats
	if err := s.db.QueryRowContext(ctx, `PRAGMA cache_size`).Scan(&cacheSize); err != nil {
		return nil, engineErr("pragma cache_size", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&ms.PageSize); err != nil {
		return nil, engineErr("pragma page_size", err)
	}
	if err := s.db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&ms.PageCount); err != nil {
		return nil, engineErr("pragma page_count", err)
	}

	if cacheSize < 0 {
		ms.CacheBytes = -cacheSize * 1024
	} else {
		ms.CacheBytes = cacheSize * ms.PageSize
	}
	ms.DBBytes = ms.PageCount * ms.PageSize
	if ms.DBBytes > 0 {
		ms.CacheRatio = float64(ms.CacheBytes) / float64(ms.DBBytes)
	}
	return &ms, nil
}
