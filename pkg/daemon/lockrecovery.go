package daemon

import (
	"context"
	"errors"
	"os"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

// RecoverFromStaleDaemon clears the PID and status files of a daemon that
// is gone. A malformed PID file counts as stale. It returns
// ErrDaemonAlreadyRunning when the recorded process is alive.
func RecoverFromStaleDaemon(pidPath string) error {
	pid, err := ReadPIDFile(pidPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		pid = 0
	case pid == os.Getpid():
		return nil
	case IsProcessRunning(pid):
		return ErrDaemonAlreadyRunning
	}

	logging.Get("daemon").Warn("cleaning up stale daemon files", "stale_pid", pid)

	_ = os.Remove(pidPath)
	_ = os.Remove(StatusPath(pidPath))
	return nil
}

// RecoverInterruptedIngest repairs a store left behind by an ingest that
// did not finish: the text-sync triggers are missing or the ingest marker
// is still set. The text index is rebuilt from the entries table so the
// partial index stays searchable and later updates keep it in sync.
func RecoverInterruptedIngest(ctx context.Context, s *store.Store) error {
	enabled, err := s.TextSyncEnabled(ctx)
	if err != nil {
		return err
	}
	ingestID, running, err := s.GetMeta(ctx, store.MetaIngestRunning)
	if err != nil {
		return err
	}
	if enabled && !running {
		return nil
	}

	log := logging.Get("daemon")
	log.Warn("repairing index left by an interrupted ingest",
		"ingest_id", ingestID,
		"text_sync", enabled)

	if err := s.RebuildTextIndex(ctx); err != nil {
		return err
	}
	if !enabled {
		if err := s.ResumeTextSync(ctx); err != nil {
			return err
		}
	}
	if err := s.DeleteMeta(ctx, store.MetaIngestRunning); err != nil {
		return err
	}

	stats, err := s.ComputeStats(ctx)
	if err != nil {
		return err
	}
	if err := s.SetMetaMap(ctx, stats.Meta()); err != nil {
		return err
	}
	log.Info("index repaired", "entries", stats.Total)
	return nil
}
