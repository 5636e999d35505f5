package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/manifest"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View ingest history",
	Long: `View the history of snapshot ingests.

Every 'fsfind ingest' records its source, outcome and counts. Runs older
than history.retention_days are removed after each ingest.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show details of an ingest run",
	Long:  `Display detailed information about one ingest run. A unique ID prefix is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest returns a manifest instance with the configured directory.
func getManifest() (*manifest.Manifest, *config.Config, error) {
	cfg, err := loadedConfig()
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.New(cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize history: %w", err)
	}
	return m, cfg, nil
}

// runHistory lists recent ingest runs.
func runHistory(cmd *cobra.Command, _ []string) error {
	m, _, err := getManifest()
	if err != nil {
		return err
	}

	runs, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(runs) == 0 {
		printInfo("No ingest runs recorded.")
		printInfo("Run 'fsfind ingest SNAPSHOT' to build the index.")
		return nil
	}

	printRunTable(cmd.OutOrStdout(), runs)
	if !getQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), "\nUse 'fsfind history show <id>' for details on a specific run.")
	}
	return nil
}

func printRunTable(w io.Writer, runs []manifest.Run) {
	fmt.Fprintf(w, "%-8s  %-19s  %-9s  %12s  %10s  %s\n", "ID", "TIME", "STATUS", "ENTRIES", "SIZE", "SOURCE")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, run := range runs {
		fmt.Fprintf(w, "%-8s  %-19s  %-9s  %12s  %10s  %s\n",
			truncateString(run.ID, 8),
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Status,
			humanize.Comma(run.Summary.Entries),
			types.FormatSize(run.Summary.TotalBytes),
			truncateString(run.Source, 30),
		)
	}
}

// runHistoryShow displays details of one ingest run.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	m, _, err := getManifest()
	if err != nil {
		return err
	}

	run, err := m.Get(args[0])
	if errors.Is(err, manifest.ErrNotFound) || errors.Is(err, manifest.ErrAmbiguous) {
		return fmt.Errorf("%w: %w", types.ErrUsage, err)
	}
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	printRun(cmd.OutOrStdout(), run)
	return nil
}

func printRun(w io.Writer, run *manifest.Run) {
	fmt.Fprintln(w, "Ingest Run")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "ID:          %s\n", run.ID)
	fmt.Fprintf(w, "Timestamp:   %s\n", run.Timestamp.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Status:      %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", run.Error)
	}
	fmt.Fprintf(w, "Source:      %s\n", run.Source)
	fmt.Fprintf(w, "Database:    %s\n", run.Database)
	fmt.Fprintf(w, "Duration:    %s\n", formatDuration(run.Duration))
	fmt.Fprintf(w, "Entries:     %s (%s skipped, %d batches)\n",
		humanize.Comma(run.Summary.Entries), humanize.Comma(run.Summary.Skipped), run.Summary.Batches)
	fmt.Fprintf(w, "Directories: %s\n", humanize.Comma(run.Summary.Dirs))
	fmt.Fprintf(w, "Files:       %s\n", humanize.Comma(run.Summary.Files))
	fmt.Fprintf(w, "Total Size:  %s\n", types.FormatSize(run.Summary.TotalBytes))

	if len(run.Metadata) > 0 {
		fmt.Fprintln(w, "\nSnapshot metadata:")
		keys := make([]string, 0, len(run.Metadata))
		for k := range run.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, run.Metadata[k])
		}
	}
}

// runHistoryClean removes old history entries.
func runHistoryClean(_ *cobra.Command, _ []string) error {
	m, cfg, err := getManifest()
	if err != nil {
		return err
	}

	retentionDays := cfg.History.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := m.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("Removed %d entries.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
