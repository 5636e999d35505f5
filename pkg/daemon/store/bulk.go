package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

func dropTextTriggers(ctx context.Context, x execer) error {
	for _, t := range textTriggers {
		if _, err := x.ExecContext(ctx, `DROP TRIGGER IF EXISTS `+t.name); err != nil {
			return engineErr("drop trigger "+t.name, err)
		}
	}
	return nil
}

func createTextTriggers(ctx context.Context, x execer) error {
	for _, t := range textTriggers {
		if _, err := x.ExecContext(ctx, t.ddl); err != nil {
			return engineErr("create trigger "+t.name, err)
		}
	}
	return nil
}

// SuspendTextSync drops the text-sync triggers so bulk inserts skip the
// per-row text index maintenance. RebuildTextIndex and ResumeTextSync
// must follow.
func (s *Store) SuspendTextSync(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return dropTextTriggers(ctx, tx)
	})
}

// ResumeTextSync reinstalls the text-sync triggers.
func (s *Store) ResumeTextSync(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return createTextTriggers(ctx, tx)
	})
}

// RebuildTextIndex regenerates entries_fts from the entries table.
func (s *Store) RebuildTextIndex(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO entries_fts(entries_fts) VALUES ('rebuild')`)
		return engineErr("rebuild text index", err)
	})
}

// CheckTextIndex runs the FTS5 integrity check, which fails when
// entries_fts disagrees with the entries table.
func (s *Store) CheckTextIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO entries_fts(entries_fts, rank) VALUES ('integrity-check', 1)`)
	return engineErr("text index integrity", err)
}

// CreateSecondaryIndexes builds the composite (is_dir, name) and
// (size, name) indexes.
func (s *Store) CreateSecondaryIndexes(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return engineErr("create indexes", execAll(ctx, tx, secondaryIndexes))
	})
}

// Stats holds corpus-level aggregates.
type Stats struct {
	Total       int64     `json:"total" yaml:"total"`
	Dirs        int64     `json:"dirs" yaml:"dirs"`
	Files       int64     `json:"files" yaml:"files"`
	TotalSize   int64     `json:"total_size" yaml:"total_size"`
	LatestMTime time.Time `json:"latest_mtime" yaml:"latest_mtime"`
}

// Metadata keys written by ComputeStats callers.
const (
	MetaTotal         = "total_files"
	MetaDirs          = "directories"
	MetaFiles         = "files"
	MetaTotalSize     = "total_size"
	MetaLatestMTime   = "latest_mtime"
	MetaLastIndexTime = "last_index_time"
	MetaIngestID      = "ingest_id"
	MetaIngestSource  = "ingest_source"
	MetaIngestRunning = "ingest_running"
)

// Meta renders the statistics as metadata values.
func (st *Stats) Meta() map[string]string {
	return map[string]string{
		MetaTotal:       strconv.FormatInt(st.Total, 10),
		MetaDirs:        strconv.FormatInt(st.Dirs, 10),
		MetaFiles:       strconv.FormatInt(st.Files, 10),
		MetaTotalSize:   strconv.FormatInt(st.TotalSize, 10),
		MetaLatestMTime: strconv.FormatInt(toUnix(st.LatestMTime), 10),
	}
}

// ComputeStats aggregates entry counts, total file size and the newest
// mtime.
func (s *Store) ComputeStats(ctx context.Context) (*Stats, error) {
	var (
		st     Stats
		dirs   sql.NullInt64
		size   sql.NullInt64
		latest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		SUM(is_dir),
		SUM(CASE WHEN is_dir = 0 THEN size ELSE 0 END),
		MAX(mtime)
		FROM entries`).Scan(&st.Total, &dirs, &size, &latest)
	if err != nil {
		return nil, engineErr("compute stats", err)
	}
	st.Dirs = dirs.Int64
	st.Files = st.Total - st.Dirs
	st.TotalSize = size.Int64
	st.LatestMTime = fromUnix(latest.Int64)
	return &st, nil
}

// Optimize refreshes planner statistics, merges the text index segments
// and compacts the database file.
func (s *Store) Optimize(ctx context.Context) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	for _, stmt := range []string{
		`ANALYZE`,
		`INSERT INTO entries_fts(entries_fts) VALUES ('optimize')`,
		`VACUUM`,
		`PRAGMA wal_checkpoint(TRUNCATE)`,
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return engineErr(fmt.Sprintf("optimize (%s)", stmt), err)
		}
	}
	return nil
}
