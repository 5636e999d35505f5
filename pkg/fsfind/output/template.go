package output

import (
	"bytes"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// defaultTemplate is what -o template prints when no --template is given.
const defaultTemplate = "{{range .Files}}{{icon .}} {{.Path}}\n{{end}}"

// TemplateFormatter renders a Result through a text/template. Besides the
// Result fields, templates see .TotalSize and these functions:
//
//	date  time layout     {{date .ModTime "2006-01-02"}}
//	bytes size            {{bytes .Size}}
//	ago   time            {{ago .ModTime}}
//	icon  entry           {{icon .}}
//	kind  entry           {{kind .}}  "dir" or "file"
//	ms    duration        {{ms .Search.Elapsed}}
//
// The template is parsed on first use and again after SetTemplate.
type TemplateFormatter struct {
	mu     sync.Mutex
	source string
	parsed *template.Template
}

// NewTemplateFormatter returns a formatter for the template text src.
func NewTemplateFormatter(src string) *TemplateFormatter {
	return &TemplateFormatter{source: src}
}

// SetTemplate replaces the template text.
func (f *TemplateFormatter) SetTemplate(src string) {
	f.mu.Lock()
	f.source, f.parsed = src, nil
	f.mu.Unlock()
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
	"bytes": func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return humanize.Time(t)
	},
	"icon": func(f FileInfo) string {
		if f.IsDir {
			return IconDir
		}
		return IconFile
	},
	"kind": kind,
	"ms":   func(d time.Duration) string { return formatElapsed(d) },
}

// Format writes the formatted output to the buffer.
func (f *TemplateFormatter) Format(w *bytes.Buffer, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.parsed == nil {
		t, err := template.New("fsfind").Funcs(templateFuncs).Parse(f.source)
		if err != nil {
			return err
		}
		f.parsed = t
	}

	return f.parsed.Execute(w, struct {
		*Result
		TotalSize int64
	}{r, r.TotalSize()})
}

func init() {
	Register("template", func() Formatter { return NewTemplateFormatter(defaultTemplate) })
}

var _ Formatter = (*TemplateFormatter)(nil)
