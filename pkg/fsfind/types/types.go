// Package types provides shared value types and parsing helpers for fsfind.
// It includes size parsing and formatting, snapshot timestamp parsing, and
// the error taxonomy used to map failures to process exit codes.
package types

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB".
// The suffix group is greedy, so "MB" is preferred over "M".
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?B?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It supports the following formats:
//   - Plain bytes: "1024", "0"
//   - With byte suffix: "512B", "512b"
//   - Kilobytes: "100K", "100KB"
//   - Megabytes: "50M", "50MB"
//   - Gigabytes: "2G", "2GB"
//   - Terabytes: "1T", "1TB"
//
// Suffixes are case-insensitive and use 1024-based multipliers. Decimal
// values are supported and truncated to the nearest byte.
//
// Errors wrap both ErrInvalidSize (or ErrNegativeSize) and ErrValidation.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: %w: empty string", ErrValidation, ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %w", ErrValidation, ErrNegativeSize)
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidSize, s)
	}

	var multiplier int64
	switch strings.TrimSuffix(strings.ToUpper(matches[2]), "B") {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: %w: unknown suffix in %q", ErrValidation, ErrInvalidSize, s)
	}

	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
	bytes := value * float64(multiplier)
	if bytes >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("%w: %w: %q is too large", ErrValidation, ErrInvalidSize, s)
	}
	return int64(bytes), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// timeLayouts are the ISO-8601 forms accepted in snapshot documents.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ErrInvalidTime indicates that a timestamp string could not be parsed.
var ErrInvalidTime = errors.New("invalid timestamp")

// ParseTime parses an ISO-8601 timestamp. Timestamps without a zone are
// interpreted in local time, matching how scanners usually emit them.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTime)
	}
	for i, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}
