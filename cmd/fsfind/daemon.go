package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/fsfind/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the fsfindd daemon",
	Long: `Manage the fsfindd daemon, which keeps the index current by applying
filesystem events from the configured watch paths.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the fsfindd daemon",
	Long:  `Start the fsfindd daemon in the background and wait until it is ready.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the fsfindd daemon",
	Long:  `Stop the fsfindd daemon gracefully.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the fsfindd daemon",
	Long:  `Stop and start the fsfindd daemon.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show whether fsfindd is running, what it watches and the event counts
from its last status report.`,
	Args: cobra.NoArgs,
	RunE: runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)

	daemonStartCmd.Flags().String("binary", "", "path to fsfindd (default: next to fsfind, then $PATH)")
	daemonRestartCmd.Flags().String("binary", "", "path to fsfindd (default: next to fsfind, then $PATH)")
}

// daemonPaths locates the daemon binary, its config and its PID file.
func daemonPaths(cmd *cobra.Command) (client.DaemonPaths, error) {
	cfg, err := loadedConfig()
	if err != nil {
		return client.DaemonPaths{}, err
	}
	paths := client.DaemonPaths{PID: cfg.ResolvedPIDPath()}
	if cfgFile != "" {
		if paths.Config, err = filepath.Abs(cfg.Source); err != nil {
			return client.DaemonPaths{}, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}
	if f := cmd.Flags().Lookup("binary"); f != nil {
		paths.Binary = f.Value.String()
	}
	return paths, nil
}

func runDaemonStart(cmd *cobra.Command, _ []string) error {
	paths, err := daemonPaths(cmd)
	if err != nil {
		return err
	}
	printVerbose("PID file: %s", paths.PID)
	printVerbose("starting daemon...")
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(cmd *cobra.Command, _ []string) error {
	paths, err := daemonPaths(cmd)
	if err != nil {
		return err
	}
	printVerbose("checking PID file: %s", paths.PID)

	st, err := client.GetStatus(paths)
	if err != nil {
		return err
	}
	if !st.Running {
		return errors.New("daemon is not running")
	}

	printVerbose("sending SIGTERM to %d, waiting for it to exit...", st.PID)
	if err := client.StopDaemon(paths); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, _ []string) error {
	paths, err := daemonPaths(cmd)
	if err != nil {
		return err
	}
	if err := client.RestartDaemon(paths); err != nil {
		return fmt.Errorf("failed to restart daemon: %w", err)
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	paths, err := daemonPaths(cmd)
	if err != nil {
		return err
	}

	st, err := client.GetStatus(paths)
	if err != nil {
		return fmt.Errorf("failed to get daemon status: %w", err)
	}

	switch {
	case st.Stale:
		printInfo("Daemon status: not running (stale PID file for %d)", st.PID)
		return nil
	case !st.Running:
		printInfo("Daemon status: not running")
		return nil
	}

	printInfo("Daemon status: running")
	printInfo("  PID: %d", st.PID)

	if d := st.Details; d != nil {
		if !d.StartedAt.IsZero() {
			printInfo("  Uptime: %s", formatDuration(time.Since(d.StartedAt)))
		}
		if d.Database != "" {
			printInfo("  Database: %s", d.Database)
		}
		printInfo("  Watched directories: %s", humanize.Comma(int64(d.Watches)))
		if c := d.Counts; c != nil {
			printInfo("  Events: %s added, %s updated, %s removed, %s errors",
				humanize.Comma(c.Added), humanize.Comma(c.Updated),
				humanize.Comma(c.Removed), humanize.Comma(c.Errors))
			if c.Healed > 0 {
				printInfo("  Healed: %s", humanize.Comma(c.Healed))
			}
		}
		if !d.UpdatedAt.IsZero() {
			printInfo("  Last report: %s", humanize.Time(d.UpdatedAt))
		}
		if len(d.WatchRoots) > 0 {
			printInfo("  Watched paths:")
			for _, p := range d.WatchRoots {
				printInfo("    - %s", p)
			}
		}
	}

	if cfg, err := loadedConfig(); err == nil && cfg.MetricsAddr != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		if err := client.CheckHealth(ctx, cfg.MetricsAddr); err != nil {
			printInfo("  Health: %v", err)
		} else {
			printInfo("  Health: ok (%s)", cfg.MetricsAddr)
		}
	}

	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
