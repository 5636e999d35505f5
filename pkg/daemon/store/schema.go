package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Schema versions:
// 1 - entries, entries_fts, metadata(key, value)
// 2 - entries.indexed_at and metadata.updated_at
const CurrentSchemaVersion = 2

const schemaKey = "schema_version"

// Schema holds database schema information.
type Schema struct {
	Version   int
	UpdatedAt time.Time
}

// baseSchema creates the version 1 tables. Later versions are applied
// by Migrate.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		id     INTEGER PRIMARY KEY,
		path   TEXT NOT NULL UNIQUE,
		name   TEXT NOT NULL,
		inode  INTEGER NOT NULL DEFAULT 0,
		size   INTEGER NOT NULL DEFAULT 0,
		mtime  INTEGER NOT NULL DEFAULT 0, -- unix seconds
		mode   INTEGER NOT NULL DEFAULT 0,
		is_dir INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_size ON entries(size)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_mtime ON entries(mtime)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_is_dir ON entries(is_dir)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		name,
		path,
		content='entries',
		content_rowid='id',
		tokenize='unicode61 remove_diacritics 2'
	)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	) WITHOUT ROWID`,
}

// Text-sync triggers keep entries_fts in step with entries. External
// content tables need the 'delete' command with the old values; a plain
// DELETE on entries_fts would read the already-removed content row.
const (
	triggerInsert = `CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
		INSERT INTO entries_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
	END`
	triggerDelete = `CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, name, path) VALUES ('delete', old.id, old.name, old.path);
	END`
	triggerUpdate = `CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE OF name, path ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, name, path) VALUES ('delete', old.id, old.name, old.path);
		INSERT INTO entries_fts(rowid, name, path) VALUES (new.id, new.name, new.path);
	END`
)

var textTriggers = []struct {
	name string
	ddl  string
}{
	{name: "entries_ai", ddl: triggerInsert},
	{name: "entries_ad", ddl: triggerDelete},
	{name: "entries_au", ddl: triggerUpdate},
}

// secondaryIndexes serve the (is_dir, name) and (size, name) access paths.
var secondaryIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_entries_dir_name ON entries(is_dir, name)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_size_name ON entries(size, name)`,
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execAll(ctx context.Context, x execer, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := x.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetSchema returns the current schema version, or nil if not set.
func (s *Store) GetSchema(ctx context.Context) *Schema {
	var (
		value   string
		updated sql.NullInt64
	)

	// updated_at only exists from version 2 on.
	err := s.db.QueryRowContext(ctx, `SELECT value, updated_at FROM metadata WHERE key = ?`, schemaKey).Scan(&value, &updated)
	if err != nil {
		if err = s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, schemaKey).Scan(&value); err != nil {
			return nil
		}
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	schema := &Schema{Version: version}
	if updated.Valid {
		schema.UpdatedAt = fromUnix(updated.Int64)
	}
	return schema
}

// setSchema records the schema version inside tx.
func setSchema(ctx context.Context, x execer, version int) error {
	_, err := x.ExecContext(ctx,
		`INSERT INTO metadata(key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaKey, strconv.Itoa(version))
	if err != nil {
		return err
	}
	if version >= 2 {
		_, err = x.ExecContext(ctx, `UPDATE metadata SET updated_at = ? WHERE key = ?`, time.Now().Unix(), schemaKey)
	}
	return err
}

// NeedsMigration returns true if the database needs migration.
func (s *Store) NeedsMigration(ctx context.Context) bool {
	schema := s.GetSchema(ctx)
	return schema == nil || schema.Version < CurrentSchemaVersion
}

// TextSyncEnabled reports whether the text-sync triggers are installed.
func (s *Store) TextSyncEnabled(ctx context.Context) (bool, error) {
	return textSyncEnabled(ctx, s.db)
}

func textSyncEnabled(ctx context.Context, q queryRower) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name IN ('entries_ai', 'entries_ad', 'entries_au')`,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == len(textTriggers), nil
}

func hasTable(ctx context.Context, q queryRower, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}
