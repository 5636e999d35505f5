package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Icons prefixed to result rows.
const (
	IconDir  = "📁"
	IconFile = "📄"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
// It produces a visually appealing output suitable for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	statsOnly := (r.Stats != nil || r.Memory != nil) && len(r.Files) == 0 && r.Search.Query == ""

	if r.Stats != nil || r.Memory != nil {
		w.WriteString(f.formatStats(r))
		w.WriteString("\n")
	}
	if statsOnly {
		return nil
	}

	if r.Search.Query != "" || r.Search.Strategy != "" {
		w.WriteString(f.formatHeader(r))
		w.WriteString("\n")
	}

	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(f.formatWarnings(r.Warnings))
	}

	return nil
}

// formatHeader builds the header box with the query and strategy.
func (f *PrettyFormatter) formatHeader(r *Result) string {
	var parts []string

	if r.Search.Query != "" {
		queryLabel := LabelStyle.Render("Query:")
		queryValue := ValueStyle.Render(r.Search.Query)
		parts = append(parts, fmt.Sprintf("%s %s", queryLabel, queryValue))
	}

	strategy := r.Search.Strategy
	if r.Search.FellBack {
		strategy += " (fallback)"
	}
	strategyLabel := LabelStyle.Render("Strategy:")
	strategyValue := MutedStyle.Render(strategy)
	parts = append(parts, fmt.Sprintf("%s %s", strategyLabel, strategyValue))

	return HeaderBox.Render(strings.Join(parts, "  "))
}

// formatTable builds the numbered result list.
func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Files) == 0 {
		return MutedStyle.Render("  No results found.") + "\n"
	}

	var sb strings.Builder
	width := len(fmt.Sprint(len(r.Files)))
	for i, file := range r.Files {
		icon := IconFile
		pathStyle := PathStyle
		if file.IsDir {
			icon = IconDir
			pathStyle = DirStyle
		}
		num := MutedStyle.Render(fmt.Sprintf("%*d.", width, i+1))
		sb.WriteString(fmt.Sprintf("%s %s %s\n", num, icon, pathStyle.Render(file.Path)))

		if r.Details {
			indent := strings.Repeat(" ", width+2)
			size := SizeStyle.Render(padLeft(file.SizeHuman, 10))
			sb.WriteString(fmt.Sprintf("%s%s %s %s %s\n", indent,
				LabelStyle.Render("Size:"), size,
				LabelStyle.Render("| Modified:"), ValueStyle.Render(formatTime(file))))
		}
	}
	return sb.String()
}

// formatFooter builds the footer box with summary information.
func (f *PrettyFormatter) formatFooter(r *Result) string {
	var parts []string

	countLabel := LabelStyle.Render("Results:")
	countValue := ValueStyle.Render(fmt.Sprintf("%d", len(r.Files)))
	parts = append(parts, fmt.Sprintf("%s %s", countLabel, countValue))

	if total := r.TotalSize(); total > 0 {
		totalLabel := LabelStyle.Render("Total:")
		totalValue := SizeStyle.Render(humanize.IBytes(uint64(total)))
		parts = append(parts, fmt.Sprintf("%s %s", totalLabel, totalValue))
	}

	timeLabel := LabelStyle.Render("Time:")
	timeValue := SuccessStyle.Render(formatElapsed(r.Search.Elapsed))
	parts = append(parts, fmt.Sprintf("%s %s", timeLabel, timeValue))

	return FooterBox.Render(strings.Join(parts, "  "))
}

// formatStats builds the statistics block.
func (f *PrettyFormatter) formatStats(r *Result) string {
	var lines []string
	row := func(label, value string) {
		lines = append(lines, fmt.Sprintf("  %s %s", LabelStyle.Render(padRight(label, 15)), ValueStyle.Render(value)))
	}

	if st := r.Stats; st != nil {
		lines = append(lines, TitleStyle.Render("Database Statistics"))
		row("Total entries:", humanize.Comma(st.Total))
		row("Directories:", humanize.Comma(st.Dirs))
		row("Files:", humanize.Comma(st.Files))
		row("Total size:", humanize.IBytes(uint64(max(st.TotalSize, 0))))
		if !st.LatestMTime.IsZero() {
			row("Latest change:", humanize.Time(st.LatestMTime))
		}
	}
	if m := r.Memory; m != nil {
		lines = append(lines, TitleStyle.Render("Memory Statistics"))
		row("Cache size:", fmt.Sprintf("%.1f MB", megabytes(m.CacheBytes)))
		row("Database size:", fmt.Sprintf("%.1f MB", megabytes(m.DBBytes)))
		row("Cache ratio:", fmt.Sprintf("%.1f%%", m.CacheRatio))
	}
	return strings.Join(lines, "\n") + "\n"
}

// formatWarnings builds a warning block.
func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder

	titleStyle := WarningStyle.Bold(true)
	sb.WriteString(titleStyle.Render("Warnings:"))
	sb.WriteString("\n")

	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}

	return sb.String()
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatElapsed formats a query latency in milliseconds.
func formatElapsed(d interface{ Seconds() float64 }) string {
	ms := d.Seconds() * 1000
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", ms/1000)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
