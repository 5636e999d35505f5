// Package main is the fsfindd daemon: it watches the configured roots and
// keeps the index in step with the filesystem.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/fsfind/pkg/daemon"
	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

var (
	cfgFile      string
	consoleLevel string
)

var rootCmd = &cobra.Command{
	Use:   "fsfindd",
	Short: "Keep the fsfind index up to date",
	Long: `fsfindd watches the configured paths and applies create, modify,
move and delete events to the fsfind index as they happen.

The configuration file is created with defaults when it does not exist.
Stop the daemon with SIGINT or SIGTERM (or 'fsfind daemon stop').`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fsfind/config.json)")
	rootCmd.Flags().StringVar(&consoleLevel, "console", "", "also log to stderr at this level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fsfindd: %v\n", err)
		os.Exit(types.ExitCode(err))
	}
}

func run(_ *cobra.Command, _ []string) (err error) {
	cfg, err := config.LoadOrCreate(cfgFile)
	if err != nil {
		_ = daemon.WriteStatusError(daemon.StatusPath(config.DefaultPIDPath()), err)
		return err
	}

	if err := logging.Init(cfg.LoggingConfig(consoleLevel)); err != nil {
		return fmt.Errorf("%w: initializing logging: %w", types.ErrUsage, err)
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")
	if cfg.Created {
		log.Info("wrote default configuration", "path", cfg.Source)
	}

	pidPath := cfg.ResolvedPIDPath()
	statusPath := daemon.StatusPath(pidPath)

	release, err := daemon.AcquirePIDFile(pidPath)
	if err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			return fmt.Errorf("%w: %w", types.ErrUsage, err)
		}
		_ = daemon.WriteStatusError(statusPath, err)
		return err
	}
	// On failure the status file stays behind so 'fsfind daemon start'
	// can report why.
	defer func() {
		if err != nil {
			_ = daemon.RemovePIDFile(pidPath)
			_ = daemon.WriteStatusError(statusPath, err)
			log.Error("daemon exited", "error", err)
			return
		}
		release()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	d.StatusPath = statusPath

	return d.Run(ctx)
}
