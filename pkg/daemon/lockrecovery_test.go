package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fsfind/pkg/daemon"
	"github.com/jamesainslie/fsfind/pkg/daemon/store"
)

func TestRecoverFromStaleDaemon_NoPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "fsfindd.pid")

	// No PID file exists - should return nil (nothing to recover)
	if err := daemon.RecoverFromStaleDaemon(pidPath); err != nil {
		t.Errorf("Expected nil when no PID file exists, got %v", err)
	}
}

func TestRecoverFromStaleDaemon_ProcessRunning(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "fsfindd.pid")

	// The parent process (the test runner) stands in for a running daemon.
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	err := daemon.RecoverFromStaleDaemon(pidPath)
	if !errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
		t.Errorf("Expected ErrDaemonAlreadyRunning when process is running, got %v", err)
	}

	if _, err := os.Stat(pidPath); os.IsNotExist(err) {
		t.Error("PID file should not have been removed when process is running")
	}
}

func TestRecoverFromStaleDaemon_OwnPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "fsfindd.pid")
	if err := daemon.WritePIDFile(pidPath); err != nil {
		t.Fatal(err)
	}
	if err := daemon.RecoverFromStaleDaemon(pidPath); err != nil {
		t.Errorf("Expected nil for this process's own PID file, got %v", err)
	}
}

func TestRecoverFromStaleDaemon_StaleProcess(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "fsfindd.pid")
	statusPath := daemon.StatusPath(pidPath)

	stalePID := 999999999
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(stalePID)), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}
	if err := os.WriteFile(statusPath, []byte(`{"status":"ready"}`), 0o644); err != nil {
		t.Fatalf("Failed to write status file: %v", err)
	}

	if err := daemon.RecoverFromStaleDaemon(pidPath); err != nil {
		t.Errorf("Expected nil after cleaning up stale daemon, got %v", err)
	}

	for _, path := range []string{pidPath, statusPath} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("File %s should have been removed after recovery", path)
		}
	}
}

func TestRecoverFromStaleDaemon_InvalidPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "fsfindd.pid")

	if err := os.WriteFile(pidPath, []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("Failed to write PID file: %v", err)
	}

	if err := daemon.RecoverFromStaleDaemon(pidPath); err != nil {
		t.Errorf("Expected nil for invalid PID file, got %v", err)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("malformed PID file should have been removed")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !daemon.IsProcessRunning(os.Getpid()) {
		t.Error("Expected current process to be running")
	}
	if daemon.IsProcessRunning(999999999) {
		t.Error("Expected non-existent PID to not be running")
	}
	if daemon.IsProcessRunning(0) {
		t.Error("Expected PID 0 to be rejected")
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecoverInterruptedIngest_CleanStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, daemon.RecoverInterruptedIngest(ctx, s))

	enabled, err := s.TextSyncEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestRecoverInterruptedIngest_RebuildsTextIndex(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	// Simulate an ingest killed after loading rows with text sync off.
	require.NoError(t, s.SuspendTextSync(ctx))
	require.NoError(t, s.SetMeta(ctx, store.MetaIngestRunning, "run-1"))
	require.NoError(t, s.PutBatch(ctx, []*store.Entry{
		{Path: "/data/report.pdf", Size: 10},
		{Path: "/data", IsDir: true},
	}))

	n, err := s.CountTextMatches(ctx, `"report"`)
	require.NoError(t, err)
	require.Equal(t, int64(0), n, "text index should lag behind before recovery")

	require.NoError(t, daemon.RecoverInterruptedIngest(ctx, s))

	enabled, err := s.TextSyncEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	n, err = s.CountTextMatches(ctx, `"report"`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, s.CheckTextIndex(ctx))

	_, running, err := s.GetMeta(ctx, store.MetaIngestRunning)
	require.NoError(t, err)
	assert.False(t, running)

	total, ok, err := s.GetMeta(ctx, store.MetaTotal)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", total)
}
