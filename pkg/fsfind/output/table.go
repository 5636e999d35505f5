package output

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
)

// TableDialect selects how TableFormatter delimits cells.
type TableDialect int

const (
	// DialectTSV separates cells with tabs. Sizes are raw byte counts.
	DialectTSV TableDialect = iota
	// DialectCSV writes RFC 4180 records through encoding/csv.
	DialectCSV
	// DialectMarkdown writes a GitHub-flavored table with human sizes.
	DialectMarkdown
)

var tableHeader = []string{"TYPE", "SIZE", "MODIFIED", "INODE", "PATH"}

// TableFormatter writes one row per entry under a fixed header. Stats are
// not included; use json or yaml for those.
type TableFormatter struct {
	Dialect TableDialect
}

// Format writes the formatted output to the buffer.
func (f *TableFormatter) Format(w *bytes.Buffer, r *Result) error {
	switch f.Dialect {
	case DialectCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(tableHeader); err != nil {
			return err
		}
		for _, file := range r.Files {
			if err := cw.Write(tableRow(file, false)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case DialectMarkdown:
		writeMarkdownRow(w, tableHeader)
		w.WriteString("|")
		for range tableHeader {
			w.WriteString("---|")
		}
		w.WriteByte('\n')
		for _, file := range r.Files {
			writeMarkdownRow(w, tableRow(file, true))
		}
		return nil

	default:
		w.WriteString(strings.Join(tableHeader, "\t"))
		w.WriteByte('\n')
		for _, file := range r.Files {
			w.WriteString(strings.Join(tableRow(file, false), "\t"))
			w.WriteByte('\n')
		}
		return nil
	}
}

func tableRow(f FileInfo, human bool) []string {
	size := strconv.FormatInt(f.Size, 10)
	if human {
		size = f.SizeHuman
	}
	inode := "-"
	if f.Inode != 0 {
		inode = strconv.FormatUint(f.Inode, 10)
	}
	return []string{kind(f), size, formatTime(f), inode, f.Path}
}

func writeMarkdownRow(w *bytes.Buffer, cells []string) {
	w.WriteString("|")
	for _, c := range cells {
		w.WriteString(" ")
		w.WriteString(strings.ReplaceAll(c, "|", `\|`))
		w.WriteString(" |")
	}
	w.WriteByte('\n')
}

// kind returns "dir" or "file".
func kind(f FileInfo) string {
	if f.IsDir {
		return "dir"
	}
	return "file"
}

func init() {
	Register("tsv", func() Formatter { return &TableFormatter{Dialect: DialectTSV} })
	Register("csv", func() Formatter { return &TableFormatter{Dialect: DialectCSV} })
	Register("markdown", func() Formatter { return &TableFormatter{Dialect: DialectMarkdown} })
}

var _ Formatter = (*TableFormatter)(nil)
