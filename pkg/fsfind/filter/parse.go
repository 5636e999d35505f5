package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// Calendar units for recency windows. Months and years are fixed lengths.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var (
	// ErrInvalidDuration reports a window that matches no accepted form.
	ErrInvalidDuration = errors.New("invalid duration format")
	// ErrNegativeValue reports a window reaching into the future.
	ErrNegativeValue = errors.New("value cannot be negative")
)

var windowUnits = map[string]time.Duration{
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
	"mo": Month,
	"y":  Year,
}

// ParseDuration reads a recency window such as "30d", "2w", "3mo", "1y"
// or "1.5d". Units are case-insensitive. Anything else must be a Go
// duration ("1h30m"). All failures wrap types.ErrValidation.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %w", types.ErrValidation, ErrNegativeValue)
	}

	if n := numericPrefix(s); n > 0 {
		unit, ok := windowUnits[strings.ToLower(strings.TrimSpace(s[n:]))]
		if ok {
			v, err := strconv.ParseFloat(s[:n], 64)
			if err == nil {
				return time.Duration(v * float64(unit)), nil
			}
		}
	}

	d, err := time.ParseDuration(s)
	if s == "" || err != nil {
		return 0, fmt.Errorf("%w: %w: %q", types.ErrValidation, ErrInvalidDuration, s)
	}
	return d, nil
}

// numericPrefix returns the length of the leading run of digits and dots.
func numericPrefix(s string) int {
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return i
		}
	}
	return len(s)
}

// ParseAge reads the --recent window: a bare integer counts days and any
// other form goes through ParseDuration.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	days, err := strconv.Atoi(s)
	switch {
	case err != nil:
		return ParseDuration(s)
	case days < 0:
		return 0, fmt.Errorf("%w: %w", types.ErrValidation, ErrNegativeValue)
	default:
		return time.Duration(days) * Day, nil
	}
}
