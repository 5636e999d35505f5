//go:build linux

package warm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DetectMemory reads /proc/meminfo. If it cannot be read, sysinfo(2) is
// used and free plus buffer memory stands in for available memory.
func DetectMemory() (*SystemMemory, error) {
	if f, err := os.Open("/proc/meminfo"); err == nil {
		defer f.Close()
		if m, err := parseMeminfo(f); err == nil {
			return m, nil
		}
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return nil, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return &SystemMemory{
		Total:     int64(uint64(info.Totalram) * unit),
		Available: int64((uint64(info.Freeram) + uint64(info.Bufferram)) * unit),
		Cached:    int64(uint64(info.Bufferram) * unit),
	}, nil
}
