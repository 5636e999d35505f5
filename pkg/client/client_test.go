package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/fsfind/pkg/daemon"
)

func testPaths(t *testing.T) DaemonPaths {
	t.Helper()
	return DaemonPaths{PID: filepath.Join(t.TempDir(), "fsfindd.pid")}
}

func TestGetStatus_NotRunning(t *testing.T) {
	st, err := GetStatus(testPaths(t))
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Running || st.Stale || st.PID != 0 {
		t.Errorf("GetStatus() = %+v, want zero status", st)
	}
}

func TestGetStatus_Running(t *testing.T) {
	paths := testPaths(t)
	if err := os.WriteFile(paths.PID, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	details := &daemon.StatusFile{WatchRoots: []string{"/home/user"}, Watches: 12}
	if err := daemon.WriteStatusReady(paths.StatusPath(), details); err != nil {
		t.Fatalf("WriteStatusReady() error = %v", err)
	}

	st, err := GetStatus(paths)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if !st.Running || st.Stale {
		t.Errorf("Running = %v, Stale = %v; want running", st.Running, st.Stale)
	}
	if st.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", st.PID, os.Getpid())
	}
	if st.Details == nil || st.Details.Status != daemon.StateReady || st.Details.Watches != 12 {
		t.Errorf("Details = %+v", st.Details)
	}
}

func TestGetStatus_Stale(t *testing.T) {
	paths := testPaths(t)
	// PIDs this large are never allocated.
	if err := os.WriteFile(paths.PID, []byte("2147483646"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := GetStatus(paths)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Running || !st.Stale {
		t.Errorf("GetStatus() = %+v, want stale", st)
	}
}

func TestGetStatus_CorruptPIDFile(t *testing.T) {
	paths := testPaths(t)
	if err := os.WriteFile(paths.PID, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := GetStatus(paths); err == nil {
		t.Error("GetStatus() error = nil, want error")
	}
}

func TestStopDaemon_NotRunning(t *testing.T) {
	if err := StopDaemon(testPaths(t)); err != nil {
		t.Errorf("StopDaemon() error = %v, want nil", err)
	}
}

func TestStartDaemon_MissingBinary(t *testing.T) {
	paths := testPaths(t)
	paths.Binary = filepath.Join(t.TempDir(), "no-such-fsfindd")

	err := StartDaemon(paths)
	if err == nil || !strings.Contains(err.Error(), "configured binary not found") {
		t.Errorf("StartDaemon() error = %v, want binary not found", err)
	}
}

func TestStartDaemon_ReportsStartupError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	startPollInterval = 20 * time.Millisecond
	t.Cleanup(func() { startPollInterval = 100 * time.Millisecond })

	paths := testPaths(t)
	script := filepath.Join(t.TempDir(), "fsfindd")
	body := fmt.Sprintf("#!/bin/sh\nprintf '{\"status\":\"error\",\"error\":\"no usable watch roots\"}' > %q\n", paths.StatusPath())
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	paths.Binary = script

	err := StartDaemon(paths)
	if err == nil || !strings.Contains(err.Error(), "no usable watch roots") {
		t.Errorf("StartDaemon() error = %v, want startup error", err)
	}
}

func TestCheckHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	ctx := context.Background()
	if err := CheckHealth(ctx, strings.TrimPrefix(healthy.URL, "http://")); err != nil {
		t.Errorf("CheckHealth(host:port) error = %v", err)
	}
	if err := CheckHealth(ctx, healthy.URL+"/"); err != nil {
		t.Errorf("CheckHealth(url) error = %v", err)
	}
	if err := CheckHealth(ctx, broken.URL); err == nil {
		t.Error("CheckHealth(broken) error = nil, want error")
	}
	if err := CheckHealth(ctx, ""); err == nil {
		t.Error("CheckHealth(\"\") error = nil, want error")
	}
}

func TestResolveBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), BinaryName)
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := resolveBinary(bin)
	if err != nil || got != bin {
		t.Errorf("resolveBinary(%q) = %q, %v", bin, got, err)
	}

	if _, err := resolveBinary(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("resolveBinary(missing) error = nil, want error")
	}
}
