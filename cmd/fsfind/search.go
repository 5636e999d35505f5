package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/output"
	"github.com/jamesainslie/fsfind/pkg/fsfind/search"
)

// historyFileName is the interactive search history under the state
// directory.
const historyFileName = "search_history"

var searchCmd = &cobra.Command{
	Use:   "search [QUERY]",
	Short: "Search the index",
	Long: `Search the index by name, path, size or modification time.

Without a scope flag the query shape picks the strategy: one or two
characters match name prefixes, a leading or trailing * is a wildcard
pattern, anything else is a full-text search that falls back to a
substring match when it finds nothing.

Examples:
  fsfind search report                  # Smart search
  fsfind search 'test*' --files-only    # Wildcard on names
  fsfind search -p projects/api         # Anywhere in the path
  fsfind search -s conf -l 10           # Anywhere in the name
  fsfind search --size-min 1G           # Files of 1 GiB or more
  fsfind search --size-min 10M --size-max 100M
  fsfind search --recent 3 --details    # Modified in the last 3 days
  fsfind search --stats --memory        # Index statistics
  fsfind search -i                      # Interactive session`,
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntP("limit", "l", config.DefaultSearchLimit, "maximum number of results")
	f.Bool("dirs-only", false, "only list directories")
	f.Bool("files-only", false, "only list files")
	f.BoolP("path", "p", false, "match anywhere in the full path")
	f.BoolP("substring", "s", false, "match anywhere in the name")
	f.String("scope", "", "search scope: smart, default, path, substring")
	f.String("size-min", "", "list files of at least this size (e.g. 100M, 1.5G)")
	f.String("size-max", "", "list files of at most this size")
	f.String("recent", "", "list files modified within N days (or a duration like 12h)")
	f.Bool("stats", false, "show index statistics")
	f.Bool("memory", false, "show cache and database size")
	f.Bool("details", false, "show size and modification time")
	f.StringP("output", "o", "", "output format (plain, pretty, json, jsonl, yaml, tsv, csv, markdown, paths, template, null)")
	f.String("template", "", "Go template for -o template")
	f.BoolP("interactive", "i", false, "start an interactive search session")
	f.Bool("warm-cache", false, "warm the index cache before searching")

	searchCmd.MarkFlagsMutuallyExclusive("dirs-only", "files-only")
	searchCmd.MarkFlagsMutuallyExclusive("path", "substring")

	for _, name := range []string{
		"limit", "dirs-only", "files-only", "path", "substring", "scope",
		"size-min", "size-max", "recent", "stats", "memory", "details",
		"output", "template", "interactive", "warm-cache",
	} {
		bindFlag(searchKey(name), f.Lookup(name))
	}

	rootCmd.AddCommand(searchCmd)
}

// searchKey maps a search flag name to its viper key.
func searchKey(flag string) string {
	return "search." + strings.ReplaceAll(flag, "-", "_")
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts, err := buildSearchOptions(args)
	if err != nil {
		return err
	}
	_, limitEnv := os.LookupEnv("FSFIND_SEARCH_LIMIT")
	opts.LimitSet = cmd.Flags().Changed("limit") || limitEnv

	path, err := dbPath()
	if err != nil {
		return err
	}
	printVerbose("database: %s", path)

	eng, err := search.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.WarmCache {
		report := warmStore(ctx, eng.Store(), false)
		if err := report.Err(); err != nil {
			logging.Get("search").Warn("cache warm-up incomplete", "error", err)
		}
		if getVerbose() {
			printWarmReport(os.Stderr, report)
		}
	}

	format := resolveFormat(opts.Format, term.IsTerminal(int(os.Stdout.Fd())))
	formatter, err := newFormatter(format, opts.Template)
	if err != nil {
		return err
	}

	if opts.Mode == modeInteractive {
		return runInteractive(ctx, eng, formatter, opts)
	}

	result, err := collectResult(ctx, eng, opts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, result); err != nil {
		return fmt.Errorf("formatting results: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

// collectResult runs the requested listing and statistics.
func collectResult(ctx context.Context, eng *search.Engine, opts *searchOptions) (*output.Result, error) {
	result := &output.Result{Details: opts.Details}

	var (
		res *search.Result
		err error
	)
	switch opts.Mode {
	case modeQuery:
		res, err = eng.Search(ctx, opts.Query)
	case modeSize:
		res, err = eng.BySize(ctx, opts.SizeMin, opts.SizeMax, opts.Query.Limit)
	case modeRecent:
		res, err = eng.Recent(ctx, opts.Recent, opts.Query.Limit)
	}
	if err != nil {
		return nil, err
	}
	if res != nil {
		result.Files = output.FromEntries(res.Entries, time.Now())
		result.Search = search.SearchInfo(res)
		printVerbose("strategy %s, %d results in %s", res.Strategy, len(res.Entries), res.Elapsed)
	}

	if opts.Stats {
		st, err := eng.Stats(ctx)
		if err != nil {
			return nil, err
		}
		result.Stats = output.FromStats(st)
	}
	if opts.Memory {
		ms, err := eng.Memory(ctx)
		if err != nil {
			return nil, err
		}
		result.Memory = output.FromMemory(ms)
	}
	return result, nil
}

func runInteractive(ctx context.Context, eng *search.Engine, formatter output.Formatter, opts *searchOptions) error {
	historyPath := ""
	if err := config.EnsureStateDir(); err == nil {
		historyPath = filepath.Join(config.StateDir(), historyFileName)
	}

	reader := search.NewLineReader(os.Stdin, os.Stdout, historyPath)
	defer func() { _ = reader.Close() }()

	sess := search.NewSession(eng, reader, os.Stdout, formatter)
	sess.Limit = opts.sessionLimit()
	sess.Filters = opts.Query.Filters
	sess.Details = opts.Details
	return sess.Run(ctx)
}
