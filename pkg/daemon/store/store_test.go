package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func textMatches(t *testing.T, s *store.Store, term string) int64 {
	t.Helper()
	n, err := s.CountTextMatches(context.Background(), `"`+term+`"`)
	if err != nil {
		t.Fatalf("CountTextMatches(%q) failed: %v", term, err)
	}
	return n
}

func checkTextIndex(t *testing.T, s *store.Store) {
	t.Helper()
	if err := s.CheckTextIndex(context.Background()); err != nil {
		t.Fatalf("text index out of sync: %v", err)
	}
}

func TestStoreBasicOperations(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	mtime := time.Unix(1700000000, 0)
	entry := &store.Entry{
		Path:    "/home/test/file.txt",
		Inode:   42,
		Size:    1024,
		ModTime: mtime,
		Mode:    0o644,
	}

	created, err := s.Upsert(ctx, entry)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !created {
		t.Error("first Upsert should report a new row")
	}

	got, err := s.Get(ctx, "/home/test/file.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "file.txt" {
		t.Errorf("Name = %q, want name derived from path", got.Name)
	}
	if got.Size != 1024 || got.Inode != 42 || got.Mode != 0o644 || got.IsDir {
		t.Errorf("unexpected entry: %+v", got)
	}
	if !got.ModTime.Equal(mtime) {
		t.Errorf("ModTime = %v, want %v", got.ModTime, mtime)
	}
	if got.IndexedAt.IsZero() {
		t.Error("IndexedAt should be set")
	}

	_, err = s.Get(ctx, "/home/test/missing.txt")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func TestUpsertKeepsSingleRow(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, err := s.Upsert(ctx, &store.Entry{Path: "/dir/c.txt", Size: 50}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	created, err := s.Upsert(ctx, &store.Entry{Path: "/dir/c.txt", Size: 75})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if created {
		t.Error("second Upsert should update, not create")
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	got, err := s.Get(ctx, "/dir/c.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Size != 75 {
		t.Errorf("Size = %d, want 75", got.Size)
	}
	if textMatches(t, s, "c.txt") != 1 {
		t.Error("expected exactly one text index row")
	}
	checkTextIndex(t, s)
}

func TestCreateThenDeleteRemovesShadow(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, err := s.Upsert(ctx, &store.Entry{Path: "/tmp/ephemeral.log"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if textMatches(t, s, "ephemeral") != 1 {
		t.Fatal("text index missing new entry")
	}

	deleted, err := s.Delete(ctx, "/tmp/ephemeral.log")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("Delete should report an existing row")
	}
	if textMatches(t, s, "ephemeral") != 0 {
		t.Error("text index still holds deleted entry")
	}
	checkTextIndex(t, s)

	deleted, err = s.Delete(ctx, "/tmp/ephemeral.log")
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Error("Delete of absent row should report false")
	}
}

func TestDeleteTree(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	entries := []*store.Entry{
		{Path: "/data", IsDir: true},
		{Path: "/data/a.txt"},
		{Path: "/data/sub", IsDir: true},
		{Path: "/data/sub/b.txt"},
		{Path: "/data2/keep.txt"},
		{Path: "/data-other.txt"},
	}
	if err := s.PutBatch(ctx, entries); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	removed, err := s.DeleteTree(ctx, "/data")
	if err != nil {
		t.Fatalf("DeleteTree failed: %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4", removed)
	}

	for _, p := range []string{"/data2/keep.txt", "/data-other.txt"} {
		if _, err := s.Get(ctx, p); err != nil {
			t.Errorf("sibling %s should survive: %v", p, err)
		}
	}
	checkTextIndex(t, s)
}

func TestUpdateAttrs(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	ok, err := s.UpdateAttrs(ctx, &store.Entry{Path: "/absent", Size: 1})
	if err != nil {
		t.Fatalf("UpdateAttrs failed: %v", err)
	}
	if ok {
		t.Error("UpdateAttrs on absent row should report false")
	}

	if _, err := s.Upsert(ctx, &store.Entry{Path: "/present", Size: 1, Mode: 0o600}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	ok, err = s.UpdateAttrs(ctx, &store.Entry{Path: "/present", Size: 9, Mode: 0o644})
	if err != nil {
		t.Fatalf("UpdateAttrs failed: %v", err)
	}
	if !ok {
		t.Error("UpdateAttrs on present row should report true")
	}
	got, err := s.Get(ctx, "/present")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Size != 9 || got.Mode != 0o644 {
		t.Errorf("attrs not updated: %+v", got)
	}
	checkTextIndex(t, s)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	entries := []*store.Entry{
		{Path: "/src", IsDir: true},
		{Path: "/src/one.go", Size: 10},
		{Path: "/src/pkg", IsDir: true},
		{Path: "/src/pkg/two.go", Size: 20},
		{Path: "/dst", Size: 5},
	}
	if err := s.PutBatch(ctx, entries); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	found, err := s.Rename(ctx, "/src", "/dst", nil)
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if !found {
		t.Fatal("Rename should find the source")
	}

	want := map[string]int64{"/dst": 0, "/dst/one.go": 10, "/dst/pkg": 0, "/dst/pkg/two.go": 20}
	for p, size := range want {
		got, err := s.Get(ctx, p)
		if err != nil {
			t.Errorf("Get(%s) failed: %v", p, err)
			continue
		}
		if got.Size != size {
			t.Errorf("%s size = %d, want %d", p, got.Size, size)
		}
	}
	got, err := s.Get(ctx, "/dst")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsDir || got.Name != "dst" {
		t.Errorf("renamed root = %+v, want directory named dst", got)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4 (old target replaced)", n)
	}
	if _, err := s.Get(ctx, "/src/one.go"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old child still present: %v", err)
	}
	checkTextIndex(t, s)
}

func TestRenameMissingSource(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	found, err := s.Rename(ctx, "/nope", "/new", nil)
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if found {
		t.Error("Rename of missing source should report false")
	}
	if _, err := s.Get(ctx, "/new"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Rename of missing source created a row: %v", err)
	}
}

func TestRenameAppliesAttrs(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if _, err := s.Upsert(ctx, &store.Entry{Path: "/a.txt", Size: 1}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := s.Rename(ctx, "/a.txt", "/b.txt", &store.Entry{Path: "/b.txt", Size: 2, Inode: 7}); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	got, err := s.Get(ctx, "/b.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Size != 2 || got.Inode != 7 {
		t.Errorf("attrs not applied: %+v", got)
	}
}

func TestResetPreservesSchemaAndTriggers(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if err := s.PutBatch(ctx, []*store.Entry{{Path: "/x"}, {Path: "/y"}}); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}
	if err := s.SetMeta(ctx, "total_files", "2"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count after Reset = %d, want 0", n)
	}
	if _, ok, _ := s.GetMeta(ctx, "total_files"); ok {
		t.Error("Reset should clear metadata")
	}
	if s.GetSchema(ctx) == nil {
		t.Error("Reset should keep the schema version")
	}
	enabled, err := s.TextSyncEnabled(ctx)
	if err != nil || !enabled {
		t.Errorf("TextSyncEnabled = %v, %v; want true", enabled, err)
	}
	checkTextIndex(t, s)
}

func TestBulkLoadWithSuspendedTextSync(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if err := s.SuspendTextSync(ctx); err != nil {
		t.Fatalf("SuspendTextSync failed: %v", err)
	}
	if err := s.PutBatch(ctx, []*store.Entry{{Path: "/bulk/alpha.txt"}, {Path: "/bulk/beta.txt"}}); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}
	if textMatches(t, s, "alpha") != 0 {
		t.Fatal("text index updated while sync was suspended")
	}

	if err := s.RebuildTextIndex(ctx); err != nil {
		t.Fatalf("RebuildTextIndex failed: %v", err)
	}
	if err := s.ResumeTextSync(ctx); err != nil {
		t.Fatalf("ResumeTextSync failed: %v", err)
	}
	if textMatches(t, s, "alpha") != 1 {
		t.Error("rebuild did not index alpha")
	}

	// Incremental maintenance works again after resuming.
	if _, err := s.Upsert(ctx, &store.Entry{Path: "/bulk/gamma.txt"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if textMatches(t, s, "gamma") != 1 {
		t.Error("trigger did not index gamma")
	}
	checkTextIndex(t, s)
}

func TestComputeStats(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	latest := time.Unix(1700000500, 0)
	entries := []*store.Entry{
		{Path: "/a.txt", Size: 100, ModTime: time.Unix(1700000000, 0)},
		{Path: "/dir/b.txt", Size: 200, ModTime: latest},
		{Path: "/dir", IsDir: true, Size: 4096},
	}
	if err := s.PutBatch(ctx, entries); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	st, err := s.ComputeStats(ctx)
	if err != nil {
		t.Fatalf("ComputeStats failed: %v", err)
	}
	if st.Total != 3 || st.Dirs != 1 || st.Files != 2 || st.TotalSize != 300 {
		t.Errorf("stats = %+v, want total=3 dirs=1 files=2 total_size=300", st)
	}
	if !st.LatestMTime.Equal(latest) {
		t.Errorf("LatestMTime = %v, want %v", st.LatestMTime, latest)
	}

	meta := st.Meta()
	if meta[store.MetaTotal] != "3" || meta[store.MetaTotalSize] != "300" {
		t.Errorf("Meta() = %v", meta)
	}
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if err := s.SetMetaMap(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("SetMetaMap failed: %v", err)
	}
	if err := s.SetMeta(ctx, "a", "3"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}

	v, ok, err := s.GetMeta(ctx, "a")
	if err != nil || !ok || v != "3" {
		t.Errorf("GetMeta(a) = %q, %v, %v", v, ok, err)
	}

	all, err := s.AllMeta(ctx)
	if err != nil {
		t.Fatalf("AllMeta failed: %v", err)
	}
	if all["b"] != "2" {
		t.Errorf("AllMeta missing b: %v", all)
	}

	if err := s.DeleteMeta(ctx, "b"); err != nil {
		t.Fatalf("DeleteMeta failed: %v", err)
	}
	if _, ok, _ := s.GetMeta(ctx, "b"); ok {
		t.Error("DeleteMeta did not remove b")
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	_, err := store.OpenReadOnly(path)
	if !errors.Is(err, store.ErrNotFound) || !errors.Is(err, types.ErrUsage) {
		t.Fatalf("OpenReadOnly(missing) err = %v, want ErrNotFound usage error", err)
	}

	w, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()
	if _, err := w.Upsert(ctx, &store.Entry{Path: "/shared.txt", Size: 3}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	r, err := store.OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer r.Close()

	got, err := r.Get(ctx, "/shared.txt")
	if err != nil {
		t.Fatalf("reader Get failed: %v", err)
	}
	if got.Size != 3 {
		t.Errorf("reader sees size %d, want 3", got.Size)
	}

	if _, err := r.Upsert(ctx, &store.Entry{Path: "/nope"}); !errors.Is(err, store.ErrReadOnly) {
		t.Errorf("read-only Upsert err = %v, want ErrReadOnly", err)
	}

	// Writes from the other connection become visible to the reader.
	if _, err := w.Upsert(ctx, &store.Entry{Path: "/later.txt"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := r.Get(ctx, "/later.txt"); err != nil {
		t.Errorf("reader does not see later write: %v", err)
	}
}

func TestQueryEntriesAndTouch(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	if err := s.PutBatch(ctx, []*store.Entry{{Path: "/q/b"}, {Path: "/q/a"}, {Path: "/q/c", IsDir: true}}); err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	got, err := s.QueryEntries(ctx, `SELECT `+store.EntryColumns("")+` FROM entries WHERE is_dir = 0 ORDER BY name`)
	if err != nil {
		t.Fatalf("QueryEntries failed: %v", err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("QueryEntries = %+v", got)
	}

	n, err := s.Touch(ctx, `SELECT name FROM entries`)
	if err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Touch read %d rows, want 3", n)
	}

	if got := store.EntryColumns("e"); got[:5] != "e.id," {
		t.Errorf("EntryColumns(e) = %q", got)
	}
}

func TestMemoryStats(t *testing.T) {
	s := setupTestStore(t)

	ms, err := s.MemoryStats(context.Background())
	if err != nil {
		t.Fatalf("MemoryStats failed: %v", err)
	}
	if ms.PageSize <= 0 || ms.PageCount <= 0 {
		t.Errorf("unexpected page info: %+v", ms)
	}
	if ms.CacheBytes != 64000*1024 {
		t.Errorf("CacheBytes = %d, want %d", ms.CacheBytes, 64000*1024)
	}
	if ms.DBBytes != ms.PageSize*ms.PageCount {
		t.Errorf("DBBytes = %d, want page_size*page_count", ms.DBBytes)
	}
}

func TestIsPathUnderRoot(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/foo/bar", "/foo", true},
		{"/foo", "/foo", true},
		{"/foo/", "/foo", true},
		{"/foobar", "/foo", false},
		{"/foo/b", "/foo/bar", false},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := store.IsPathUnderRoot(tt.path, tt.root); got != tt.want {
			t.Errorf("IsPathUnderRoot(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}
