package output

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
)

// sampleResult returns a search result with one directory and two files.
func sampleResult() *Result {
	mod := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	return &Result{
		Files: []FileInfo{
			{Path: "/home/user/projects", Name: "projects", IsDir: true, SizeHuman: "DIR", ModTime: mod},
			{Path: "/home/user/large.zip", Name: "large.zip", Ext: ".zip", Size: 1073741824, SizeHuman: "1.0 GiB", ModTime: mod},
			{Path: "/home/user/notes|draft.txt", Name: "notes|draft.txt", Ext: ".txt", Size: 512, SizeHuman: "512 B", ModTime: mod},
		},
		Search: SearchInfo{
			Query:    "user",
			Strategy: "fulltext",
			Elapsed:  1500 * time.Microsecond,
		},
	}
}

func TestNewFileInfo(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	mod := now.Add(-48 * time.Hour)

	fi := NewFileInfo(&store.Entry{
		Path:    "/home/user/large.zip",
		Name:    "large.zip",
		Inode:   42,
		Size:    1073741824,
		ModTime: mod,
		Mode:    0o100644,
	}, now)

	assert.Equal(t, "/home/user", fi.Dir)
	assert.Equal(t, ".zip", fi.Ext)
	assert.Equal(t, "1.0 GiB", fi.SizeHuman)
	assert.Equal(t, 48*time.Hour, fi.Age)
	assert.Equal(t, "-rw-r--r--", fi.Perms)
	assert.Equal(t, os.FileMode(0o644), fi.Mode)
	assert.Equal(t, uint64(42), fi.Inode)
	assert.False(t, fi.IsDir)
}

func TestNewFileInfo_Directory(t *testing.T) {
	fi := NewFileInfo(&store.Entry{Path: "/srv/data", Size: 4096, IsDir: true, Mode: 0o40755}, time.Now())

	assert.Equal(t, "data", fi.Name, "name falls back to the base of the path")
	assert.Equal(t, int64(0), fi.Size)
	assert.Equal(t, "DIR", fi.SizeHuman)
	assert.Equal(t, "", fi.Ext)
	assert.True(t, fi.Mode.IsDir())
	assert.Zero(t, fi.Age, "zero mtime has no age")
}

func TestFromEntriesKeepsOrder(t *testing.T) {
	files := FromEntries([]*store.Entry{{Path: "/b"}, {Path: "/a"}}, time.Now())
	require.Len(t, files, 2)
	assert.Equal(t, "/b", files[0].Path)
	assert.Equal(t, "/a", files[1].Path)
}

func TestFromStatsAndMemory(t *testing.T) {
	assert.Nil(t, FromStats(nil))
	assert.Nil(t, FromMemory(nil))

	st := FromStats(&store.Stats{Total: 3, Dirs: 1, Files: 2, TotalSize: 300})
	assert.Equal(t, &IndexStats{Total: 3, Dirs: 1, Files: 2, TotalSize: 300}, st)

	m := FromMemory(&store.MemoryStats{CacheBytes: 1 << 20, DBBytes: 4 << 20, CacheRatio: 0.25})
	assert.InDelta(t, 25.0, m.CacheRatio, 0.001)
}

func TestResult_TotalSize(t *testing.T) {
	tests := []struct {
		name     string
		files    []FileInfo
		expected int64
	}{
		{name: "empty files", files: []FileInfo{}, expected: 0},
		{name: "single file", files: []FileInfo{{Path: "/a.txt", Size: 1000}}, expected: 1000},
		{
			name: "multiple files",
			files: []FileInfo{
				{Path: "/a.txt", Size: 1000},
				{Path: "/b.txt", Size: 2000},
				{Path: "/dir", IsDir: true},
			},
			expected: 3000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Result{Files: tt.files}
			assert.Equal(t, tt.expected, result.TotalSize())
		})
	}
}

// mockFormatter is a simple formatter for testing the registry
type mockFormatter struct{}

func (m *mockFormatter) Format(w *bytes.Buffer, _ *Result) error {
	w.WriteString("mock output")
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register("mock", func() Formatter { return &mockFormatter{} })

	formatter, err := reg.Get("mock")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, formatter.Format(&buf, &Result{}))
	assert.Equal(t, "mock output", buf.String())
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}

func TestRegistry_Available_Sorted(t *testing.T) {
	reg := NewRegistry()
	factory := func() Formatter { return &mockFormatter{} }

	reg.Register("zeta", factory)
	reg.Register("alpha", factory)
	reg.Register("beta", factory)

	assert.Equal(t, []string{"alpha", "beta", "zeta"}, reg.Available())
}

func TestDefaultRegistry(t *testing.T) {
	for _, name := range []string{"csv", "json", "jsonl", "markdown", "null", "paths", "plain", "pretty", "template", "tsv", "yaml"} {
		_, err := Get(name)
		assert.NoError(t, err, name)
	}
}
