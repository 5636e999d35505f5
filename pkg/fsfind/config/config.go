package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures log rotation and per-component levels.
// The overall level comes from Config.LogLevel.
type LoggingConfig struct {
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// HistoryConfig configures the ingest run history.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config represents the fsfind configuration shared by the daemon and the CLI.
type Config struct {
	WatchPaths      []string      `mapstructure:"watch_paths"`
	DatabasePath    string        `mapstructure:"database_path"`
	ExcludePatterns []string      `mapstructure:"exclude_patterns"`
	MaxDepth        int           `mapstructure:"max_depth"`
	BatchSize       int           `mapstructure:"batch_size"`
	LogLevel        string        `mapstructure:"log_level"`
	LogPath         string        `mapstructure:"log_path"`
	StatsInterval   time.Duration `mapstructure:"stats_interval"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	PIDPath         string        `mapstructure:"pid_path"`
	Logging         LoggingConfig `mapstructure:"logging"`
	History         HistoryConfig `mapstructure:"history"`

	// Source is the file the configuration was read from.
	Source string `mapstructure:"-"`
	// Created reports whether Source was written with defaults during load.
	Created bool `mapstructure:"-"`
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("FSFIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("watch_paths", []string{xdg.Home})
	v.SetDefault("database_path", DefaultDBPath())
	v.SetDefault("exclude_patterns", DefaultExcludePatterns)
	v.SetDefault("max_depth", DefaultMaxDepth)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_path", "") // Empty means use DefaultLogPath
	v.SetDefault("stats_interval", DefaultStatsInterval)
	v.SetDefault("metrics_addr", "") // Empty disables the metrics endpoint
	v.SetDefault("pid_path", "")     // Empty means use DefaultPIDPath

	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.rotation.compress", false)
	v.SetDefault("logging.components", map[string]string{
		"updater": "info",
		"watcher": "warn",
		"indexer": "info",
		"search":  "info",
	})

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", HistoryDir())
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	return v
}

// Load reads the configuration at path, falling back to defaults when the
// file does not exist. An empty path means DefaultConfigPath.
// Environment variables prefixed with FSFIND_ override file values.
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOrCreate is like Load but writes the defaults to path when the file
// does not exist yet.
func LoadOrCreate(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, create bool) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	path, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	v := newViper(path)

	created := false
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading config file %s: %w", types.ErrUsage, path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking config file: %w", err)
	} else if create {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		if err := v.SafeWriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
		created = true
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", types.ErrUsage, err)
	}
	cfg.Source = path
	cfg.Created = created

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) expand() error {
	var err error
	for i, p := range c.WatchPaths {
		if c.WatchPaths[i], err = ExpandPath(p); err != nil {
			return err
		}
	}
	for _, p := range []*string{&c.DatabasePath, &c.LogPath, &c.PIDPath, &c.History.Path} {
		if *p, err = ExpandPath(*p); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks field ranges. Errors wrap types.ErrUsage.
func (c *Config) Validate() error {
	if len(c.WatchPaths) == 0 {
		return fmt.Errorf("%w: watch_paths must not be empty", types.ErrUsage)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path must be set", types.ErrUsage)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must be >= 0, got %d", types.ErrUsage, c.MaxDepth)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0, got %d", types.ErrUsage, c.BatchSize)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("%w: stats_interval must be positive, got %s", types.ErrUsage, c.StatsInterval)
	}
	if _, err := log.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q: %w", types.ErrUsage, c.LogLevel, err)
	}
	return nil
}

// ResolvedPIDPath returns the configured PID path or the default.
func (c *Config) ResolvedPIDPath() string {
	if c.PIDPath != "" {
		return c.PIDPath
	}
	return DefaultPIDPath()
}

// ResolvedLogPath returns the configured log path or the default.
func (c *Config) ResolvedLogPath() string {
	if c.LogPath != "" {
		return c.LogPath
	}
	return DefaultLogPath()
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// ConfigDir returns $XDG_CONFIG_HOME/fsfind/.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "fsfind")
}

// DataDir returns $XDG_DATA_HOME/fsfind/ for the index and pid files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "fsfind")
}

// StateDir returns $XDG_STATE_HOME/fsfind/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "fsfind")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DefaultDBPath returns the default index database path.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "index.db")
}

// DefaultPIDPath returns the default daemon PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "fsfindd.pid")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "fsfind.log")
}

// HistoryDir returns the default ingest history directory.
func HistoryDir() string {
	return filepath.Join(DataDir(), "history")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
