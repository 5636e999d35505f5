// Package logging hands out per-component loggers for the fsfind CLI and
// the fsfindd daemon. Every component writes to one shared, rotated log
// file; the daemon can additionally mirror records to stderr.
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	log := logging.Get("indexer")
//	log.Info("ingest started", "source", "snapshot.json")
//
// Loggers may be obtained before Init; they discard records until Init
// runs and then follow the new configuration.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level is a record severity.
type Level = log.Level

// Supported levels.
const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// ErrInvalidLevel is returned for level names other than debug, info,
// warn (or warning) and error.
var ErrInvalidLevel = errors.New("invalid log level")

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps a level name, in any case, to a Level. Unknown names
// yield LevelInfo together with ErrInvalidLevel.
func ParseLevel(s string) (Level, error) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl, nil
	}
	return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
}

// Config configures the logging system.
type Config struct {
	// Level applies to every component without an override.
	Level string

	// Path is the log file. Empty means DefaultLogPath().
	Path string

	Rotation RotationConfig

	// Components maps component names (indexer, updater, watcher, ...) to
	// their own levels.
	Components map[string]string

	// ConsoleLevel mirrors records at or above it to Console. Empty keeps
	// the console quiet.
	ConsoleLevel string

	// Console defaults to os.Stderr.
	Console io.Writer
}

// DefaultLogPath returns $XDG_STATE_HOME/fsfind/fsfind.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "fsfind", "fsfind.log")
}

// DefaultConfig logs at info to DefaultLogPath with default rotation.
func DefaultConfig() Config {
	return Config{Level: "info", Path: DefaultLogPath(), Rotation: DefaultRotationConfig()}
}

// Logger is a component logger. The zero value is not usable; obtain one
// with Get.
type Logger struct {
	component string
	sinks     []*log.Logger
}

// Component returns the name the logger was obtained with.
func (l *Logger) Component() string { return l.component }

func (l *Logger) Debug(msg string, args ...interface{}) { l.emit(LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.emit(LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.emit(LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.emit(LevelError, msg, args) }

func (l *Logger) emit(lvl Level, msg string, args []interface{}) {
	for _, s := range l.sinks {
		s.Log(lvl, msg, args...)
	}
}

// With returns a child logger that adds the key/value pairs to every
// record. Children are detached: a later Init does not reach them.
func (l *Logger) With(args ...interface{}) *Logger {
	child := &Logger{component: l.component, sinks: make([]*log.Logger, len(l.sinks))}
	for i, s := range l.sinks {
		child.sinks[i] = s.With(args...)
	}
	return child
}

// settings is the parsed form of a Config.
type settings struct {
	level        Level
	components   map[string]Level
	file         io.Writer
	console      io.Writer
	consoleLevel Level
}

func (s *settings) sinksFor(component string) []*log.Logger {
	if s.file == nil {
		return []*log.Logger{log.NewWithOptions(io.Discard, log.Options{Prefix: component})}
	}

	level := s.level
	if override, ok := s.components[component]; ok {
		level = override
	}
	sinks := []*log.Logger{log.NewWithOptions(s.file, log.Options{
		Level:           level,
		Prefix:          component,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})}
	if s.console != nil {
		sinks = append(sinks, log.NewWithOptions(s.console, log.Options{
			Level:           s.consoleLevel,
			Prefix:          component,
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}))
	}
	return sinks
}

var registry = struct {
	sync.Mutex
	cur     settings
	writer  *RotatingWriter
	loggers map[string]*Logger
}{loggers: make(map[string]*Logger)}

func parseConfig(cfg Config) (settings, error) {
	var s settings
	var err error
	if s.level, err = ParseLevel(cfg.Level); err != nil {
		return s, fmt.Errorf("parsing log level: %w", err)
	}

	s.components = make(map[string]Level, len(cfg.Components))
	for comp, name := range cfg.Components {
		lvl, err := ParseLevel(name)
		if err != nil {
			return s, fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		s.components[comp] = lvl
	}

	if cfg.ConsoleLevel != "" {
		if s.consoleLevel, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return s, fmt.Errorf("parsing console level: %w", err)
		}
		s.console = cfg.Console
		if s.console == nil {
			s.console = os.Stderr
		}
	}
	return s, nil
}

// Init opens the log file and reconfigures every logger handed out so far.
// Calling Init again replaces the previous configuration.
func Init(cfg Config) error {
	s, err := parseConfig(cfg)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}

	registry.Lock()
	defer registry.Unlock()

	if registry.writer != nil {
		if err := registry.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
		registry.writer = nil
	}

	w, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}
	registry.writer = w
	s.file = w
	registry.cur = s
	refresh()
	return nil
}

// Get returns the logger for component, creating it on first use.
func Get(component string) *Logger {
	registry.Lock()
	defer registry.Unlock()

	l, ok := registry.loggers[component]
	if !ok {
		l = &Logger{component: component, sinks: registry.cur.sinksFor(component)}
		registry.loggers[component] = l
	}
	return l
}

// Close flushes and closes the log file. Existing loggers go back to
// discarding records.
func Close() error {
	registry.Lock()
	defer registry.Unlock()

	var err error
	if registry.writer != nil {
		if cerr := registry.writer.Close(); cerr != nil {
			err = fmt.Errorf("closing log writer: %w", cerr)
		}
		registry.writer = nil
	}
	registry.cur = settings{}
	refresh()
	return err
}

// refresh rebuilds the sinks of every registered logger. The registry
// lock must be held.
func refresh() {
	for name, l := range registry.loggers {
		l.sinks = registry.cur.sinksFor(name)
	}
}
