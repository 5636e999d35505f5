package output

import "bytes"

// ListFormatter writes one field per entry with a fixed terminator and no
// header, so its output can be fed to xargs or a shell loop. Stats and
// memory sections are not shown.
type ListFormatter struct {
	// Terminator ends every record: '\n' for line lists, 0 for xargs -0.
	Terminator byte

	// NamesOnly writes base names instead of full paths.
	NamesOnly bool

	// MarkDirs appends a slash to directory entries.
	MarkDirs bool
}

// Format writes the formatted output to the buffer.
func (f *ListFormatter) Format(w *bytes.Buffer, r *Result) error {
	for i := range r.Files {
		entry := &r.Files[i]
		if f.NamesOnly {
			w.WriteString(entry.Name)
		} else {
			w.WriteString(entry.Path)
		}
		if f.MarkDirs && entry.IsDir {
			w.WriteByte('/')
		}
		w.WriteByte(f.Terminator)
	}
	return nil
}

func init() {
	Register("paths", func() Formatter { return &ListFormatter{Terminator: '\n'} })
	// null-delimited paths survive spaces and newlines in names
	Register("null", func() Formatter { return &ListFormatter{Terminator: 0} })
	Register("names", func() Formatter { return &ListFormatter{Terminator: '\n', NamesOnly: true, MarkDirs: true} })
}

var _ Formatter = (*ListFormatter)(nil)
