package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jamesainslie/fsfind/pkg/daemon/indexer"
	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/manifest"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest SNAPSHOT",
	Short: "Load a filesystem snapshot into the index",
	Long: `Load a JSON filesystem snapshot into the index, replacing its contents.

SNAPSHOT is a local file, '-' for standard input, or an s3://bucket/key
URL. Files ending in .gz, .zst or .lz4 are decompressed on the fly.

Malformed records are skipped and counted; a malformed document fails
the ingest with exit status 3.

Examples:
  fsfind ingest snapshot.json
  fsfind ingest snapshot.json.zst --batch-size 5000
  fsfind ingest s3://backups/hosts/web1.json.gz
  find-to-json / | fsfind ingest -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Int("batch-size", config.DefaultIngestBatchSize, "records written per transaction")
	ingestCmd.Flags().Bool("no-optimize", false, "skip ANALYZE and VACUUM after loading")

	bindFlag("ingest.batch_size", ingestCmd.Flags().Lookup("batch-size"))
	bindFlag("ingest.no_optimize", ingestCmd.Flags().Lookup("no-optimize"))

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	source := args[0]

	batchSize := viper.GetInt("ingest.batch_size")
	if batchSize <= 0 {
		return fmt.Errorf("%w: --batch-size must be positive, got %d", types.ErrValidation, batchSize)
	}

	path, err := dbPath()
	if err != nil {
		return err
	}
	printVerbose("database: %s", path)

	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	idx := indexer.New(s)
	idx.BatchSize = batchSize
	idx.SkipOptimize = viper.GetBool("ingest.no_optimize")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := newProgressPrinter(os.Stderr, !getQuiet() && term.IsTerminal(int(os.Stderr.Fd())))
	start := time.Now()
	res, err := idx.Ingest(ctx, source, progress.update)
	progress.finish()

	recordIngest(path, source, res, err, time.Since(start))
	if err != nil {
		return err
	}

	printIngestSummary(cmd.OutOrStdout(), res)
	return nil
}

// recordIngest adds the run to the ingest history when it is enabled.
// History failures are logged and never fail the ingest.
func recordIngest(dbPath, source string, res *indexer.Result, ingestErr error, elapsed time.Duration) {
	cfg, err := loadedConfig()
	if err != nil || !cfg.History.Enabled {
		return
	}
	log := logging.Get("indexer")

	m, err := manifest.New(cfg.History.Path)
	if err != nil {
		log.Warn("failed to open ingest history", "error", err)
		return
	}
	run := newRun(dbPath, source, res, ingestErr, elapsed)
	if err := m.Record(run); err != nil {
		log.Warn("failed to record ingest history", "error", err)
		return
	}
	printVerbose("recorded ingest run %s", run.ID)

	if removed, err := m.Cleanup(cfg.History.RetentionDays); err != nil {
		log.Warn("failed to clean ingest history", "error", err)
	} else if removed > 0 {
		log.Debug("removed old ingest runs", "count", removed)
	}
}

// newRun builds the history record for one ingest. res may be nil when the
// ingest failed early.
func newRun(dbPath, source string, res *indexer.Result, ingestErr error, elapsed time.Duration) *manifest.Run {
	run := &manifest.Run{
		Source:   source,
		Database: dbPath,
		Status:   manifest.StatusCompleted,
		Duration: elapsed,
	}
	if ingestErr != nil {
		run.Status = manifest.StatusFailed
		run.Error = ingestErr.Error()
	}
	if res == nil {
		return run
	}

	run.ID = res.ID
	run.Metadata = res.Metadata
	run.Duration = res.Duration
	run.Summary = manifest.Summary{
		Entries: res.Entries,
		Skipped: res.Skipped,
		Batches: res.Batches,
	}
	if res.Stats != nil {
		run.Summary.Dirs = res.Stats.Dirs
		run.Summary.Files = res.Stats.Files
		run.Summary.TotalBytes = res.Stats.TotalSize
	}
	return run
}

func printIngestSummary(w io.Writer, res *indexer.Result) {
	if getQuiet() {
		return
	}
	fmt.Fprintf(w, "Indexed %s entries from %s in %s\n",
		humanize.Comma(res.Entries), res.Source, formatDuration(res.Duration))
	if res.Skipped > 0 {
		fmt.Fprintf(w, "  skipped:     %s malformed records\n", humanize.Comma(res.Skipped))
	}
	if res.Stats != nil {
		fmt.Fprintf(w, "  directories: %s\n", humanize.Comma(res.Stats.Dirs))
		fmt.Fprintf(w, "  files:       %s\n", humanize.Comma(res.Stats.Files))
		fmt.Fprintf(w, "  total size:  %s\n", types.FormatSize(res.Stats.TotalSize))
	}
	fmt.Fprintf(w, "  run id:      %s\n", res.ID)
}

// progressPrinter redraws a single status line while an ingest runs.
type progressPrinter struct {
	w       io.Writer
	enabled bool
	last    time.Time
	drawn   bool
}

func newProgressPrinter(w io.Writer, enabled bool) *progressPrinter {
	return &progressPrinter{w: w, enabled: enabled}
}

func (p *progressPrinter) update(pr indexer.Progress) {
	if !p.enabled {
		return
	}
	now := time.Now()
	if pr.Phase == indexer.PhaseIndexing && now.Sub(p.last) < 100*time.Millisecond {
		return
	}
	p.last = now
	p.drawn = true
	fmt.Fprintf(p.w, "\r\033[K%s", formatProgress(pr))
}

func (p *progressPrinter) finish() {
	if p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
		p.drawn = false
	}
}

// formatProgress renders one progress update.
func formatProgress(pr indexer.Progress) string {
	switch pr.Phase {
	case indexer.PhaseLoading, indexer.PhaseIndexing:
		if pct := pr.Percent(); pct >= 0 {
			return fmt.Sprintf("Indexing: %5.1f%%  %s entries", pct, humanize.Comma(pr.Entries))
		}
		return fmt.Sprintf("Indexing: %s entries", humanize.Comma(pr.Entries))
	case indexer.PhaseStats:
		return "Computing statistics..."
	case indexer.PhaseOptimize:
		return "Optimizing database..."
	default:
		return fmt.Sprintf("Done: %s entries", humanize.Comma(pr.Entries))
	}
}
