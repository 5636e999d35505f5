package logging

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limited rate-limits a Logger so a burst of failing events cannot flood
// the log. Messages dropped while the limiter is exhausted are counted and
// reported as "suppressed" on the next message that gets through.
type Limited struct {
	logger  *Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int
}

// NewLimited allows burst messages at once and then one per interval.
func NewLimited(logger *Logger, interval time.Duration, burst int) *Limited {
	return &Limited{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

// Warn logs a warning if the limiter allows it.
func (l *Limited) Warn(msg string, args ...interface{}) {
	if args, ok := l.allow(args); ok {
		l.logger.Warn(msg, args...)
	}
}

// Error logs an error if the limiter allows it.
func (l *Limited) Error(msg string, args ...interface{}) {
	if args, ok := l.allow(args); ok {
		l.logger.Error(msg, args...)
	}
}

// Suppressed returns the number of messages dropped since the last one logged.
func (l *Limited) Suppressed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}

func (l *Limited) allow(args []interface{}) ([]interface{}, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.limiter.Allow() {
		l.suppressed++
		return nil, false
	}
	if l.suppressed > 0 {
		args = append(args, "suppressed", l.suppressed)
		l.suppressed = 0
	}
	return args, true
}
