package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter writes the whole result as one indented JSON object with
// files, search and meta sections, plus stats and memory when present.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newDocument(r))
}

// JSONLFormatter writes one compact JSON object per entry, for streaming
// into jq and similar tools.
type JSONLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONLFormatter) Format(w *bytes.Buffer, r *Result) error {
	enc := json.NewEncoder(w)
	for _, file := range r.Files {
		if err := enc.Encode(newDocEntry(file)); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	Register("json", func() Formatter { return &JSONFormatter{} })
	Register("jsonl", func() Formatter { return &JSONLFormatter{} })
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*JSONLFormatter)(nil)
)
