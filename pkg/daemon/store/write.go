package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// upsertSQL keeps the row id stable on conflict so the update trigger can
// resync the text projection. INSERT OR REPLACE would delete the row
// without firing the delete trigger.
const upsertSQL = `INSERT INTO entries (path, name, inode, size, mtime, mode, is_dir, indexed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		inode = excluded.inode,
		size = excluded.size,
		mtime = excluded.mtime,
		mode = excluded.mode,
		is_dir = excluded.is_dir,
		indexed_at = excluded.indexed_at`

func upsertArgs(e *Entry, now time.Time) []any {
	name := e.Name
	if name == "" {
		name = filepath.Base(e.Path)
	}
	indexedAt := e.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = now
	}
	return []any{e.Path, name, int64(e.Inode), e.Size, toUnix(e.ModTime), int64(e.Mode), boolInt(e.IsDir), toUnix(indexedAt)}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", types.ErrEngine, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", types.ErrEngine, err)
	}
	return nil
}

func engineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReadOnly) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", types.ErrEngine, op, err)
}

// PutBatch stores entries in a single transaction. Later entries with the
// same path overwrite earlier ones.
func (s *Store) PutBatch(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return engineErr("prepare insert", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, upsertArgs(e, now)...); err != nil {
				return engineErr("insert "+e.Path, err)
			}
		}
		return nil
	})
}

// Upsert inserts or updates the entry keyed by e.Path. It reports whether
// a new row was created.
func (s *Store) Upsert(ctx context.Context, e *Entry) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM entries WHERE path = ?`, e.Path).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return engineErr("lookup "+e.Path, err)
		}

		_, err = tx.ExecContext(ctx, upsertSQL, upsertArgs(e, time.Now())...)
		return engineErr("upsert "+e.Path, err)
	})
	return created, err
}

// Get retrieves an entry by path. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+EntryColumns("")+` FROM entries WHERE path = ?`, path)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, engineErr("get "+path, err)
	}
	return e, nil
}

// Delete removes the entry at path. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, path string) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, path)
		if err != nil {
			return engineErr("delete "+path, err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// DeleteTree removes the entry at path and every entry below it.
// Returns the number of rows removed.
func (s *Store) DeleteTree(ctx context.Context, path string) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		n, err := deleteTree(ctx, tx, path)
		removed = n
		return err
	})
	return removed, err
}

func deleteTree(ctx context.Context, tx *sql.Tx, path string) (int64, error) {
	lo, hi := descendantRange(path)
	res, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE path = ? OR (path >= ? AND path < ?)`, path, lo, hi)
	if err != nil {
		return 0, engineErr("delete tree "+path, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdateAttrs refreshes the mutable fields (inode, size, mtime, mode,
// is_dir, indexed_at) of an existing entry. It reports false when no row
// exists for e.Path.
func (s *Store) UpdateAttrs(ctx context.Context, e *Entry) (bool, error) {
	var updated bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		indexedAt := e.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now()
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE entries SET inode = ?, size = ?, mtime = ?, mode = ?, is_dir = ?, indexed_at = ? WHERE path = ?`,
			int64(e.Inode), e.Size, toUnix(e.ModTime), int64(e.Mode), boolInt(e.IsDir), toUnix(indexedAt), e.Path)
		if err != nil {
			return engineErr("update "+e.Path, err)
		}
		n, _ := res.RowsAffected()
		updated = n > 0
		return nil
	})
	return updated, err
}

// Rename rekeys the entry at oldPath, and every entry below it, to newPath.
// Anything previously stored at or below newPath is replaced. When attrs
// is non-nil its mutable fields are applied to the renamed entry.
// It reports false, changing nothing, when oldPath is not stored.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string, attrs *Entry) (bool, error) {
	if oldPath == newPath {
		if attrs == nil {
			_, err := s.Get(ctx, oldPath)
			if errors.Is(err, ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		}
		return s.UpdateAttrs(ctx, attrs)
	}

	var found bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM entries WHERE path = ?`, oldPath).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return engineErr("lookup "+oldPath, err)
		}
		found = true

		if _, err := deleteTree(ctx, tx, newPath); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE entries SET path = ?, name = ? WHERE id = ?`,
			newPath, filepath.Base(newPath), id); err != nil {
			return engineErr("rename "+oldPath, err)
		}

		lo, hi := descendantRange(oldPath)
		newPrefix := newPath + "/"
		if _, err := tx.ExecContext(ctx,
			`UPDATE entries SET path = ? || substr(path, length(?) + 1) WHERE path >= ? AND path < ?`,
			newPrefix, lo, lo, hi); err != nil {
			return engineErr("rename children of "+oldPath, err)
		}

		if attrs != nil {
			indexedAt := attrs.IndexedAt
			if indexedAt.IsZero() {
				indexedAt = time.Now()
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE entries SET inode = ?, size = ?, mtime = ?, mode = ?, is_dir = ?, indexed_at = ? WHERE id = ?`,
				int64(attrs.Inode), attrs.Size, toUnix(attrs.ModTime), int64(attrs.Mode), boolInt(attrs.IsDir),
				toUnix(indexedAt), id); err != nil {
				return engineErr("update "+newPath, err)
			}
		}
		return nil
	})
	return found, err
}

// Reset removes every entry and all metadata except the schema version.
// The text-sync trigger state is preserved.
func (s *Store) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		enabled, err := textSyncEnabled(ctx, tx)
		if err != nil {
			return engineErr("reset", err)
		}
		if err := dropTextTriggers(ctx, tx); err != nil {
			return err
		}

		if err := execAll(ctx, tx, []string{
			`DELETE FROM entries`,
			`INSERT INTO entries_fts(entries_fts) VALUES ('delete-all')`,
		}); err != nil {
			return engineErr("reset", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE key <> ?`, schemaKey); err != nil {
			return engineErr("reset metadata", err)
		}

		if enabled {
			return createTextTriggers(ctx, tx)
		}
		return nil
	})
}
