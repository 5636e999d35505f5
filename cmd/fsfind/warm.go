package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/output"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
	"github.com/jamesainslie/fsfind/pkg/fsfind/warm"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pull the index into memory",
	Long: `Run the queries searches depend on so their pages are cached before the
first real search.

With --preload the database files are also read sequentially to fill the
operating system page cache. Failed steps are reported; warm never fails
because of them.`,
	Args: cobra.NoArgs,
	RunE: runWarm,
}

func init() {
	warmCmd.Flags().Bool("preload", false, "read the database files into the page cache first")
	bindFlag("warm.preload", warmCmd.Flags().Lookup("preload"))

	rootCmd.AddCommand(warmCmd)
}

func runWarm(cmd *cobra.Command, _ []string) error {
	path, err := dbPath()
	if err != nil {
		return err
	}
	s, err := store.OpenReadOnly(path)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	report := warmStore(cmd.Context(), s, viper.GetBool("warm.preload"))
	if !getQuiet() {
		printWarmReport(cmd.OutOrStdout(), report)
	}
	return nil
}

// warmStore runs the cache warmer with memory detection.
func warmStore(ctx context.Context, s *store.Store, preload bool) *warm.Report {
	printVerbose("warming cache for %s (preload=%t)", s.Path(), preload)
	return warm.New(s, warm.Options{Preload: preload, DetectMemory: true}).Run(ctx)
}

func printWarmReport(w io.Writer, r *warm.Report) {
	fmt.Fprintln(w, output.TitleStyle.Render("Cache warm-up"))

	if m := r.Memory; m != nil {
		line := fmt.Sprintf("%s available of %s, %s cached",
			types.FormatSize(m.Available), types.FormatSize(m.Total), types.FormatSize(m.Cached))
		if !m.Sufficient() {
			line += "  " + output.WarningStyle.Render("(low memory)")
		}
		fmt.Fprintf(w, "  %s %s\n", output.LabelStyle.Render("memory: "), line)
	}

	if p := r.Preload; p != nil {
		line := fmt.Sprintf("%d files, %s in %s (%s/s)",
			p.Files, types.FormatSize(p.Bytes), formatDuration(p.Elapsed), types.FormatSize(int64(p.Rate())))
		if p.Err != nil {
			line = output.ErrorStyle.Render(p.Err.Error())
		}
		fmt.Fprintf(w, "  %s %s\n", output.LabelStyle.Render("preload:"), line)
	}

	for _, step := range r.Steps {
		result := fmt.Sprintf("%12s rows  %s", humanize.Comma(step.Rows), output.MutedStyle.Render(formatDuration(step.Elapsed)))
		if step.Err != nil {
			result = output.ErrorStyle.Render(step.Err.Error())
		}
		fmt.Fprintf(w, "  %-12s %s\n", step.Name, result)
	}

	summary := fmt.Sprintf("%s entries warmed in %s", humanize.Comma(r.Entries), formatDuration(r.Elapsed))
	if r.OK() {
		fmt.Fprintln(w, output.SuccessStyle.Render(summary))
	} else {
		fmt.Fprintln(w, output.WarningStyle.Render(summary+" with errors"))
	}
}
