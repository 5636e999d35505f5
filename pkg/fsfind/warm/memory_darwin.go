//go:build darwin

package warm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DetectMemory reads hw.memsize. macOS does not expose available memory
// through sysctl, so half of the total is reported.
func DetectMemory() (*SystemMemory, error) {
	memsize, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return nil, fmt.Errorf("sysctl hw.memsize: %w", err)
	}
	total := int64(memsize)
	return &SystemMemory{Total: total, Available: total / 2}, nil
}
