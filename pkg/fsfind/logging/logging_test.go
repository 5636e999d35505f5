package logging_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return string(data)
}

// Tests in this file share the package-level logging state and must not
// run in parallel.

func TestInit(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     logging.Config
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  logging.Config{Level: "info", Path: filepath.Join(dir, "info.log")},
		},
		{
			name: "upper-case level",
			cfg:  logging.Config{Level: "DEBUG", Path: filepath.Join(dir, "debug.log")},
		},
		{
			name: "component overrides",
			cfg: logging.Config{
				Level:      "info",
				Path:       filepath.Join(dir, "components.log"),
				Components: map[string]string{"updater": "debug", "watcher": "warn"},
			},
		},
		{
			name:    "invalid level",
			cfg:     logging.Config{Level: "loud", Path: filepath.Join(dir, "invalid.log")},
			wantErr: true,
		},
		{
			name: "invalid component level",
			cfg: logging.Config{
				Level:      "info",
				Path:       filepath.Join(dir, "badcomp.log"),
				Components: map[string]string{"updater": "loud"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := logging.Init(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if closeErr := logging.Close(); closeErr != nil {
					t.Errorf("Close() error = %v", closeErr)
				}
			}
		})
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "write.log")
	if err := logging.Init(logging.Config{Level: "info", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logger := logging.Get("indexer")
	logger.Info("ingest finished", "entries", 3)
	logger.Debug("hidden detail")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content := readLog(t, logPath)
	if !strings.Contains(content, "ingest finished") || !strings.Contains(content, "entries=3") {
		t.Errorf("log missing info line: %q", content)
	}
	if !strings.Contains(content, "indexer") {
		t.Errorf("log missing component prefix: %q", content)
	}
	if strings.Contains(content, "hidden detail") {
		t.Errorf("debug line written at info level: %q", content)
	}
}

func TestLoggerObtainedBeforeInit(t *testing.T) {
	logger := logging.Get("early")
	logger.Info("dropped before init")

	logPath := filepath.Join(t.TempDir(), "early.log")
	if err := logging.Init(logging.Config{Level: "info", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	logger.Info("kept after init")
	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content := readLog(t, logPath)
	if strings.Contains(content, "dropped before init") {
		t.Errorf("message before Init reached the file: %q", content)
	}
	if !strings.Contains(content, "kept after init") {
		t.Errorf("logger created before Init did not pick up the writer: %q", content)
	}
}

func TestComponentLevelOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "override.log")
	err := logging.Init(logging.Config{
		Level:      "warn",
		Path:       logPath,
		Components: map[string]string{"updater": "debug"},
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("updater").Debug("updater debug")
	logging.Get("search").Info("search info")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content := readLog(t, logPath)
	if !strings.Contains(content, "updater debug") {
		t.Errorf("component override ignored: %q", content)
	}
	if strings.Contains(content, "search info") {
		t.Errorf("default level ignored: %q", content)
	}
}

func TestConsoleOutput(t *testing.T) {
	var console bytes.Buffer
	err := logging.Init(logging.Config{
		Level:        "debug",
		Path:         filepath.Join(t.TempDir(), "console.log"),
		ConsoleLevel: "warn",
		Console:      &console,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logger := logging.Get("daemon")
	logger.Info("quiet on console")
	logger.Warn("loud on console")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	out := console.String()
	if !strings.Contains(out, "loud on console") {
		t.Errorf("console missing warn line: %q", out)
	}
	if strings.Contains(out, "quiet on console") {
		t.Errorf("console received line below its level: %q", out)
	}
}

func TestWith(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "with.log")
	if err := logging.Init(logging.Config{Level: "info", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("updater").With("root", "/srv").Info("watching")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if content := readLog(t, logPath); !strings.Contains(content, "root=/srv") {
		t.Errorf("With() context missing: %q", content)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{input: "debug", want: logging.LevelDebug},
		{input: "INFO", want: logging.LevelInfo},
		{input: "warn", want: logging.LevelWarn},
		{input: "WARNING", want: logging.LevelWarn},
		{input: "error", want: logging.LevelError},
		{input: "verbose", want: logging.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, logging.ErrInvalidLevel) {
				t.Errorf("ParseLevel(%q) error = %v, want ErrInvalidLevel", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLimited(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "limited.log")
	if err := logging.Init(logging.Config{Level: "info", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	limited := logging.NewLimited(logging.Get("updater"), time.Hour, 2)
	for i := 0; i < 5; i++ {
		limited.Error("event failed", "n", i)
	}
	if got := limited.Suppressed(); got != 3 {
		t.Errorf("Suppressed() = %d, want 3", got)
	}

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := strings.Count(readLog(t, logPath), "event failed"); got != 2 {
		t.Errorf("logged %d lines, want 2", got)
	}
}

func TestDefaultLogPath(t *testing.T) {
	path := logging.DefaultLogPath()
	if !strings.HasSuffix(path, filepath.Join("fsfind", "fsfind.log")) {
		t.Errorf("DefaultLogPath() = %q, want suffix fsfind/fsfind.log", path)
	}
}
