package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrDaemonAlreadyRunning reports a PID file held by a live fsfindd.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// WritePIDFile records the current process in path, replacing any
// previous content.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, pidBytes(), 0o644)
}

func pidBytes() []byte {
	return []byte(strconv.Itoa(os.Getpid()) + "\n")
}

// ReadPIDFile returns the PID stored in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed PID file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	return os.Remove(path)
}

// IsDaemonRunning reports whether the PID file names a live process.
func IsDaemonRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	return err == nil && IsProcessRunning(pid)
}

// IsProcessRunning probes pid with signal 0. A process owned by another
// user (EPERM) still counts as running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// AcquirePIDFile claims pidPath for this process. Files left by a daemon
// that died are cleared first. The PID file is created exclusively, so of
// two daemons starting at once only one wins; the other gets
// ErrDaemonAlreadyRunning. release removes the PID and status files.
func AcquirePIDFile(pidPath string) (release func(), err error) {
	if err := RecoverFromStaleDaemon(pidPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating PID directory: %w", err)
	}

	f, err := os.OpenFile(pidPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, os.ErrExist):
		// Either our own file (re-acquire) or a daemon that won the race.
		if pid, rerr := ReadPIDFile(pidPath); rerr != nil || pid != os.Getpid() {
			return nil, ErrDaemonAlreadyRunning
		}
	case err != nil:
		return nil, fmt.Errorf("creating PID file: %w", err)
	default:
		_, werr := f.Write(pidBytes())
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			_ = os.Remove(pidPath)
			return nil, fmt.Errorf("writing PID file: %w", werr)
		}
	}

	return func() {
		_ = RemovePIDFile(pidPath)
		_ = RemoveStatus(StatusPath(pidPath))
	}, nil
}
