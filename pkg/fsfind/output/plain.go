package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// timeLayout is how modification times are shown in human-oriented output.
const timeLayout = "2006-01-02 15:04"

// PlainFormatter formats output as a simple tab-separated table.
// It produces plain text output suitable for scripting and piping.
// No colors or styling are applied.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	if r.Stats != nil || r.Memory != nil {
		writePlainStats(w, r)
		if len(r.Files) == 0 {
			return nil
		}
		w.WriteByte('\n')
	}

	// Use tabwriter for aligned columns
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	header := "SIZE\tPATH\n"
	if r.Details {
		header = "SIZE\tMODIFIED\tPATH\n"
	}
	if _, err := tw.Write([]byte(header)); err != nil {
		return err
	}

	for _, file := range r.Files {
		var line string
		if r.Details {
			line = fmt.Sprintf("%s\t%s\t%s\n", file.SizeHuman, formatTime(file), file.Path)
		} else {
			line = file.SizeHuman + "\t" + file.Path + "\n"
		}
		if _, err := tw.Write([]byte(line)); err != nil {
			return err
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Search.Strategy != "" {
		fmt.Fprintf(w, "Search completed in %s (%s)\n", formatElapsed(r.Search.Elapsed), r.Search.Strategy)
	}
	return nil
}

func writePlainStats(w *bytes.Buffer, r *Result) {
	if st := r.Stats; st != nil {
		w.WriteString("Database Statistics:\n")
		fmt.Fprintf(w, "  Total entries: %s\n", humanize.Comma(st.Total))
		fmt.Fprintf(w, "  Directories: %s\n", humanize.Comma(st.Dirs))
		fmt.Fprintf(w, "  Files: %s\n", humanize.Comma(st.Files))
		fmt.Fprintf(w, "  Total size: %s\n", humanize.IBytes(uint64(max(st.TotalSize, 0))))
		if !st.LatestMTime.IsZero() {
			fmt.Fprintf(w, "  Latest change: %s\n", st.LatestMTime.Format(timeLayout))
		}
	}
	if m := r.Memory; m != nil {
		w.WriteString("Memory Statistics:\n")
		fmt.Fprintf(w, "  Cache size: %.1f MB\n", megabytes(m.CacheBytes))
		fmt.Fprintf(w, "  Database size: %.1f MB\n", megabytes(m.DBBytes))
		fmt.Fprintf(w, "  Cache ratio: %.1f%%\n", m.CacheRatio)
	}
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func formatTime(f FileInfo) string {
	if f.ModTime.IsZero() {
		return "-"
	}
	return f.ModTime.Format(timeLayout)
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
