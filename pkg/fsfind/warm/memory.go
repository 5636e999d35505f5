package warm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LowMemoryThreshold is the available memory below which warming the
// whole database is unlikely to stay cached.
const LowMemoryThreshold = 1000 << 20

// ErrMemoryUnsupported is returned by DetectMemory on platforms without a
// memory probe.
var ErrMemoryUnsupported = errors.New("memory detection not supported on this platform")

// SystemMemory describes physical memory. Available and Cached may be
// estimates depending on the platform.
type SystemMemory struct {
	Total     int64 `json:"total" yaml:"total"`
	Available int64 `json:"available" yaml:"available"`
	Cached    int64 `json:"cached" yaml:"cached"`
}

// Sufficient reports whether available memory is above LowMemoryThreshold.
func (m *SystemMemory) Sufficient() bool {
	return m.Available > LowMemoryThreshold
}

// parseMeminfo reads the MemTotal, MemAvailable and Cached fields of a
// /proc/meminfo style document. Values are in kB.
func parseMeminfo(r io.Reader) (*SystemMemory, error) {
	var m SystemMemory
	var haveTotal bool

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		switch key {
		case "MemTotal":
			m.Total = kb * 1024
			haveTotal = true
		case "MemAvailable":
			m.Available = kb * 1024
		case "Cached":
			m.Cached = kb * 1024
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !haveTotal {
		return nil, fmt.Errorf("meminfo: no MemTotal field")
	}
	return &m, nil
}
