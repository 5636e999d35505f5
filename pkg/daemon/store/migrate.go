package store

import (
	"context"
	"fmt"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// MigrationProgress reports migration progress.
type MigrationProgress struct {
	FromVersion int
	ToVersion   int
}

// MigrationProgressFunc is called before each migration step.
type MigrationProgressFunc func(MigrationProgress)

// Migrate runs any pending migrations to bring the database up to the
// current schema. Each step runs in its own transaction. Returns the
// number of migrations run.
func (s *Store) Migrate(ctx context.Context, onProgress MigrationProgressFunc) (int, error) {
	if err := s.checkWritable(); err != nil {
		return 0, err
	}

	fromVersion := 0
	if schema := s.GetSchema(ctx); schema != nil {
		fromVersion = schema.Version
	} else {
		// Tables without a recorded version predate version tracking.
		exists, err := hasTable(ctx, s.db, "entries")
		if err != nil {
			return 0, fmt.Errorf("%w: %w", types.ErrEngine, err)
		}
		if exists {
			fromVersion = 1
		}
	}

	if fromVersion > CurrentSchemaVersion {
		return 0, fmt.Errorf("%w: store schema version %d is newer than supported version %d",
			types.ErrUsage, fromVersion, CurrentSchemaVersion)
	}

	migrationsRun := 0
	for version := fromVersion + 1; version <= CurrentSchemaVersion; version++ {
		select {
		case <-ctx.Done():
			return migrationsRun, ctx.Err()
		default:
		}

		if onProgress != nil {
			onProgress(MigrationProgress{FromVersion: version - 1, ToVersion: version})
		}

		if err := s.migrateTo(ctx, version); err != nil {
			return migrationsRun, fmt.Errorf("%w: migrating schema to v%d: %w", types.ErrEngine, version, err)
		}
		migrationsRun++
	}

	return migrationsRun, nil
}

func (s *Store) migrateTo(ctx context.Context, version int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	switch version {
	case 1:
		if err := execAll(ctx, tx, baseSchema); err != nil {
			return err
		}
		for _, t := range textTriggers {
			if _, err := tx.ExecContext(ctx, t.ddl); err != nil {
				return err
			}
		}
	case 2:
		if err := execAll(ctx, tx, []string{
			`ALTER TABLE entries ADD COLUMN indexed_at INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE metadata ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`,
		}); err != nil {
			return err
		}
	}

	if err := setSchema(ctx, tx, version); err != nil {
		return err
	}
	return tx.Commit()
}
