package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const setMetaSQL = `INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// SetMeta stores a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.SetMetaMap(ctx, map[string]string{key: value})
}

// SetMetaMap stores several metadata values in one transaction.
func (s *Store) SetMetaMap(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().Unix()
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, setMetaSQL, k, v, now); err != nil {
				return engineErr("set metadata "+k, err)
			}
		}
		return nil
	})
}

// DeleteMeta removes a metadata key.
func (s *Store) DeleteMeta(ctx context.Context, key string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
		return engineErr("delete metadata "+key, err)
	})
}

// GetMeta returns the value stored under key and whether it exists.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, engineErr("get metadata "+key, err)
	}
	return value, true, nil
}

// AllMeta returns every metadata key and value.
func (s *Store) AllMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM metadata ORDER BY key`)
	if err != nil {
		return nil, engineErr("list metadata", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, engineErr("scan metadata", err)
		}
		meta[k] = v
	}
	return meta, engineErr("list metadata", rows.Err())
}
