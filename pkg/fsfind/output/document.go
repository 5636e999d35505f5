package output

import "time"

// document is the serialized form of a Result shared by the json, jsonl
// and yaml formatters. Field names match across both encodings; only the
// elapsed time differs (milliseconds in JSON, a duration string in YAML).
type document struct {
	Files  []docEntry  `json:"files" yaml:"files"`
	Search *docSearch  `json:"search,omitempty" yaml:"search,omitempty"`
	Stats  *docStats   `json:"stats,omitempty" yaml:"stats,omitempty"`
	Memory *MemoryInfo `json:"memory,omitempty" yaml:"memory,omitempty"`
	Meta   docMeta     `json:"meta" yaml:"meta"`
}

type docEntry struct {
	Path      string    `json:"path" yaml:"path"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	Dir       string    `json:"dir,omitempty" yaml:"dir,omitempty"`
	Ext       string    `json:"ext,omitempty" yaml:"ext,omitempty"`
	IsDir     bool      `json:"is_dir" yaml:"is_dir"`
	Inode     uint64    `json:"inode,omitempty" yaml:"inode,omitempty"`
	Size      int64     `json:"size" yaml:"size"`
	SizeHuman string    `json:"size_human" yaml:"size_human"`
	ModTime   time.Time `json:"mod_time,omitzero" yaml:"mod_time,omitempty"`
	Age       string    `json:"age,omitempty" yaml:"age,omitempty"`
	Perms     string    `json:"perms,omitempty" yaml:"perms,omitempty"`
}

type docSearch struct {
	Query     string  `json:"query" yaml:"query"`
	Strategy  string  `json:"strategy" yaml:"strategy"`
	FellBack  bool    `json:"fell_back" yaml:"fell_back"`
	ElapsedMS float64 `json:"elapsed_ms" yaml:"-"`
	Elapsed   string  `json:"-" yaml:"elapsed"`
}

type docStats struct {
	Total       int64     `json:"total" yaml:"total"`
	Dirs        int64     `json:"dirs" yaml:"dirs"`
	Files       int64     `json:"files" yaml:"files"`
	TotalSize   int64     `json:"total_size" yaml:"total_size"`
	LatestMTime time.Time `json:"latest_mtime,omitzero" yaml:"latest_mtime,omitempty"`
}

type docMeta struct {
	TotalFiles int      `json:"total_files" yaml:"total_files"`
	TotalSize  int64    `json:"total_size" yaml:"total_size"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newDocument(r *Result) *document {
	doc := &document{
		Files:  make([]docEntry, len(r.Files)),
		Memory: r.Memory,
		Meta: docMeta{
			TotalFiles: len(r.Files),
			TotalSize:  r.TotalSize(),
			Warnings:   r.Warnings,
		},
	}
	for i, f := range r.Files {
		doc.Files[i] = newDocEntry(f)
	}

	// Stats-only requests carry no search section.
	if s := r.Search; s.Query != "" || s.Strategy != "" {
		doc.Search = &docSearch{
			Query:     s.Query,
			Strategy:  s.Strategy,
			FellBack:  s.FellBack,
			ElapsedMS: s.Elapsed.Seconds() * 1000,
			Elapsed:   s.Elapsed.String(),
		}
	}
	if st := r.Stats; st != nil {
		doc.Stats = &docStats{
			Total:       st.Total,
			Dirs:        st.Dirs,
			Files:       st.Files,
			TotalSize:   st.TotalSize,
			LatestMTime: st.LatestMTime,
		}
	}
	return doc
}

func newDocEntry(f FileInfo) docEntry {
	e := docEntry{
		Path:      f.Path,
		Name:      f.Name,
		Dir:       f.Dir,
		Ext:       f.Ext,
		IsDir:     f.IsDir,
		Inode:     f.Inode,
		Size:      f.Size,
		SizeHuman: f.SizeHuman,
		ModTime:   f.ModTime,
		Perms:     f.Perms,
	}
	if f.Age != 0 {
		e.Age = f.Age.Round(time.Second).String()
	}
	return e
}
