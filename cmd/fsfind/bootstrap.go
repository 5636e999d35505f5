package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// appConfig is the configuration loaded by initializeLogging.
var appConfig *config.Config

// initializeLogging is the PersistentPreRunE hook: it makes sure the XDG
// directories exist, loads the configuration and starts file logging.
// Verbose mode adds debug output on stderr.
func initializeLogging(cmd *cobra.Command, _ []string) error {
	if cmd != nil && cmd.Annotations[annotationNoBootstrap] != "" {
		return nil
	}

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if err := config.EnsureStateDir(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	lc := cfg.LoggingConfig("")
	if getVerbose() {
		lc.Level = "debug"
		lc.ConsoleLevel = "debug"
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("%w: initializing logging: %w", types.ErrIO, err)
	}

	printVerbose("config: %s", cfg.Source)
	return nil
}

// loadedConfig returns the configuration read at startup, loading it when
// the bootstrap hook did not run.
func loadedConfig() (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

// dbPath returns the --db flag, or the configured database path.
func dbPath() (string, error) {
	if p := viper.GetString("db"); p != "" {
		return config.ExpandPath(p)
	}
	cfg, err := loadedConfig()
	if err != nil {
		return "", err
	}
	return cfg.DatabasePath, nil
}
