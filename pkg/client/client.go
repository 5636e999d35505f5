// Package client controls the fsfindd daemon from other processes. The
// daemon has no RPC surface: it is located through its PID file, reports
// itself through the status file written next to it, and is stopped with
// SIGTERM.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jamesainslie/fsfind/pkg/daemon"
	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
)

// BinaryName is the daemon executable name.
const BinaryName = "fsfindd"

// Polling used while waiting for the daemon to start or stop.
var (
	startPollInterval = 100 * time.Millisecond
	startPollAttempts = 50
	stopPollInterval  = 250 * time.Millisecond
	stopPollAttempts  = 20
)

// Status describes the daemon as seen from outside.
type Status struct {
	Running bool
	PID     int
	// Stale is set when a PID file exists but its process is gone.
	Stale bool
	// Details is the last status file the daemon wrote, if readable.
	Details *daemon.StatusFile
}

// DaemonPaths configures paths for daemon operations.
// Empty fields use defaults.
type DaemonPaths struct {
	Binary string // Path to fsfindd (auto-discovered if empty)
	Config string // Config file passed to fsfindd
	PID    string // PID file path
}

// withDefaults returns a copy with empty fields filled with defaults.
func (p DaemonPaths) withDefaults() DaemonPaths {
	if p.PID == "" {
		p.PID = config.DefaultPIDPath()
	}
	return p
}

// StatusPath returns the status file that accompanies the PID file.
func (p DaemonPaths) StatusPath() string {
	return daemon.StatusPath(p.withDefaults().PID)
}

// GetStatus reports whether the daemon is running and what it last wrote
// to its status file.
func GetStatus(paths DaemonPaths) (*Status, error) {
	paths = paths.withDefaults()

	st := &Status{}
	pid, err := daemon.ReadPIDFile(paths.PID)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return st, nil
	case err != nil:
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	st.PID = pid
	st.Running = daemon.IsProcessRunning(pid)
	st.Stale = !st.Running

	if details, err := daemon.ReadStatus(paths.StatusPath()); err == nil {
		st.Details = details
	}
	return st, nil
}

// EnsureDaemon starts the daemon if it is not already running.
func EnsureDaemon(paths DaemonPaths) error {
	if daemon.IsDaemonRunning(paths.withDefaults().PID) {
		return nil
	}
	return StartDaemon(paths)
}

// StartDaemon launches fsfindd in the background and waits for its status
// file to report ready or error.
// Idempotent: returns nil if the daemon is already running.
func StartDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	if daemon.IsDaemonRunning(paths.PID) {
		return nil
	}

	binary, err := resolveBinary(paths.Binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", BinaryName, err)
	}

	statusPath := paths.StatusPath()
	_ = os.Remove(statusPath)

	var args []string
	if paths.Config != "" {
		args = append(args, "--config", paths.Config)
	}

	// exec.Command, not CommandContext: the daemon must outlive the caller.
	cmd := exec.Command(binary, args...) //nolint:gosec // binary path is resolved above
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}

	for range startPollAttempts {
		time.Sleep(startPollInterval)

		status, err := daemon.ReadStatus(statusPath)
		if err != nil {
			continue
		}
		switch status.Status {
		case daemon.StateReady:
			return nil
		case daemon.StateError:
			return fmt.Errorf("daemon failed to start: %s", status.Error)
		}
	}

	return errors.New("daemon did not become ready within timeout")
}

// StopDaemon sends SIGTERM to the daemon and waits for it to exit.
// Idempotent: returns nil if the daemon is not running.
func StopDaemon(paths DaemonPaths) error {
	paths = paths.withDefaults()

	pid, err := daemon.ReadPIDFile(paths.PID)
	if err != nil || !daemon.IsProcessRunning(pid) {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}

	for range stopPollAttempts {
		time.Sleep(stopPollInterval)
		if !daemon.IsProcessRunning(pid) {
			return nil
		}
	}

	return errors.New("daemon did not stop within timeout")
}

// RestartDaemon stops and starts the daemon.
func RestartDaemon(paths DaemonPaths) error {
	if err := StopDaemon(paths); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if err := StartDaemon(paths); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// CheckHealth queries the daemon's /healthz endpoint on addr, the
// metrics_addr of its configuration.
func CheckHealth(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("no metrics address configured")
	}
	url := addr
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	url = strings.TrimSuffix(url, "/") + "/healthz"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: %s", resp.Status)
	}
	return nil
}

// resolveBinary finds the fsfindd binary path.
// Priority: configured path > same directory as executable > PATH.
func resolveBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured binary not found: %s", configured)
		}
		return configured, nil
	}

	if execPath, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(execPath), BinaryName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%s not found", BinaryName)
}
