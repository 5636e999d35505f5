package watcher

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
)

// Stat reads path without following symlinks and returns it as an index
// entry. The returned error satisfies errors.Is(err, fs.ErrNotExist) when
// the path is gone.
func Stat(path string) (*store.Entry, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}
	// Directories keep their on-disk size, as snapshot scanners report it.
	isDir := uint32(st.Mode)&unix.S_IFMT == unix.S_IFDIR
	return &store.Entry{
		Path:    path,
		Name:    filepath.Base(path),
		Inode:   uint64(st.Ino), //nolint:unconvert // Ino width differs by platform
		Size:    st.Size,
		ModTime: mtime(&st),
		Mode:    uint32(st.Mode), //nolint:unconvert // Mode width differs by platform
		IsDir:   isDir,
	}, nil
}
