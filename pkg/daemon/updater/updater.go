// Package updater applies filesystem mutation events to the index.
//
// Every event commits on its own. Events whose target has changed since
// the notification was queued degrade to the nearest consistent action:
// a modify for a missing row creates it, a create for a vanished path is
// a no-op, a rename whose target is gone deletes the source. Failures are
// counted and logged; none are returned to the event loop as fatal.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/fsfind/pkg/daemon/metrics"
	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/daemon/watcher"
	"github.com/jamesainslie/fsfind/pkg/fsfind/filter"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
)

// Outcome names, shared by the counters and the metrics labels.
const (
	OutcomeAdded    = "added"
	OutcomeUpdated  = "updated"
	OutcomeRemoved  = "removed"
	OutcomeErrors   = "errors"
	OutcomeHealed   = "healed"
	OutcomeMissing  = "missing"
	OutcomeExcluded = "excluded"
)

// Counts is a point-in-time copy of the updater counters.
type Counts struct {
	Added    int64 `json:"added"`
	Updated  int64 `json:"updated"`
	Removed  int64 `json:"removed"`
	Errors   int64 `json:"errors"`
	Healed   int64 `json:"healed"`
	Missing  int64 `json:"missing"`
	Excluded int64 `json:"excluded"`
}

// Total returns the number of events that changed the index.
func (c Counts) Total() int64 {
	return c.Added + c.Updated + c.Removed
}

// LogFields renders the counts as key/value pairs for a logger.
func (c Counts) LogFields() []any {
	return []any{
		OutcomeAdded, c.Added,
		OutcomeUpdated, c.Updated,
		OutcomeRemoved, c.Removed,
		OutcomeErrors, c.Errors,
		OutcomeHealed, c.Healed,
		OutcomeMissing, c.Missing,
		OutcomeExcluded, c.Excluded,
	}
}

type counters struct {
	added, updated, removed, errors, healed, missing, excluded atomic.Int64
}

// StatFunc reads a path as an index entry.
type StatFunc func(path string) (*store.Entry, error)

// Option configures an Updater.
type Option func(*Updater)

// WithMetrics records outcomes on m as well as the internal counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Updater) { u.metrics = m }
}

// WithStat replaces the function used to read paths.
func WithStat(fn StatFunc) Option {
	return func(u *Updater) { u.stat = fn }
}

// Updater applies events to a store. Apply must be called from a single
// goroutine; Counts may be read concurrently.
type Updater struct {
	store   *store.Store
	exclude *filter.Matcher
	stat    StatFunc
	metrics *metrics.Metrics
	errLog  *logging.Limited

	counts counters
}

// New creates an updater writing to s. Events for paths matched by exclude
// are dropped.
func New(s *store.Store, exclude *filter.Matcher, opts ...Option) *Updater {
	u := &Updater{
		store:   s,
		exclude: exclude,
		stat:    watcher.Stat,
		errLog:  logging.NewLimited(logging.Get("updater"), time.Second, 10),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Counts returns the current counter values.
func (u *Updater) Counts() Counts {
	return Counts{
		Added:    u.counts.added.Load(),
		Updated:  u.counts.updated.Load(),
		Removed:  u.counts.removed.Load(),
		Errors:   u.counts.errors.Load(),
		Healed:   u.counts.healed.Load(),
		Missing:  u.counts.missing.Load(),
		Excluded: u.counts.excluded.Load(),
	}
}

func (u *Updater) count(outcome string, n int64) {
	if n <= 0 {
		return
	}
	switch outcome {
	case OutcomeAdded:
		u.counts.added.Add(n)
	case OutcomeUpdated:
		u.counts.updated.Add(n)
	case OutcomeRemoved:
		u.counts.removed.Add(n)
	case OutcomeErrors:
		u.counts.errors.Add(n)
	case OutcomeHealed:
		u.counts.healed.Add(n)
	case OutcomeMissing:
		u.counts.missing.Add(n)
	case OutcomeExcluded:
		u.counts.excluded.Add(n)
	}
	u.metrics.RecordOutcome(outcome, n)
}

// Apply applies one event. The returned error has already been counted
// and logged.
func (u *Updater) Apply(ctx context.Context, ev watcher.Event) error {
	start := time.Now()
	defer func() { u.metrics.RecordEvent(ev.Op.String(), time.Since(start)) }()

	var err error
	switch ev.Op {
	case watcher.Create, watcher.MoveTo:
		err = u.create(ctx, ev.Path)
	case watcher.Delete, watcher.MoveFrom:
		err = u.remove(ctx, ev.Path)
	case watcher.Modify, watcher.Attrib:
		err = u.modify(ctx, ev.Path)
	case watcher.Rename:
		err = u.rename(ctx, ev.OldPath, ev.Path)
	default:
		err = fmt.Errorf("unknown event kind %v", ev.Op)
	}

	if err != nil {
		u.count(OutcomeErrors, 1)
		u.errLog.Error("failed to apply event", "event", ev.String(), "error", err)
	}
	return err
}

func (u *Updater) excluded(path string) bool {
	if u.exclude.Match(path) {
		u.count(OutcomeExcluded, 1)
		return true
	}
	return false
}

// statPath reads path; a nil entry with nil error means it is gone.
func (u *Updater) statPath(path string) (*store.Entry, error) {
	e, err := u.stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (u *Updater) upsert(ctx context.Context, e *store.Entry) (bool, error) {
	created, err := u.store.Upsert(ctx, e)
	if err != nil {
		return false, err
	}
	if created {
		u.count(OutcomeAdded, 1)
	} else {
		u.count(OutcomeUpdated, 1)
	}
	return created, nil
}

func (u *Updater) create(ctx context.Context, path string) error {
	if u.excluded(path) {
		return nil
	}
	e, err := u.statPath(path)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	_, err = u.upsert(ctx, e)
	return err
}

func (u *Updater) remove(ctx context.Context, path string) error {
	if u.excluded(path) {
		return nil
	}
	n, err := u.store.DeleteTree(ctx, path)
	if err != nil {
		return err
	}
	if n == 0 {
		u.count(OutcomeMissing, 1)
		return nil
	}
	u.count(OutcomeRemoved, n)
	return nil
}

func (u *Updater) modify(ctx context.Context, path string) error {
	if u.excluded(path) {
		return nil
	}
	e, err := u.statPath(path)
	if err != nil {
		return err
	}
	if e == nil {
		n, err := u.store.DeleteTree(ctx, path)
		if err != nil {
			return err
		}
		u.count(OutcomeRemoved, n)
		return nil
	}

	updated, err := u.store.UpdateAttrs(ctx, e)
	if err != nil {
		return err
	}
	if updated {
		u.count(OutcomeUpdated, 1)
		return nil
	}

	created, err := u.upsert(ctx, e)
	if err == nil && created {
		u.count(OutcomeHealed, 1)
	}
	return err
}

// rename moves oldPath to newPath. When only one side is excluded the
// event degrades to a delete of the source or a create of the target.
func (u *Updater) rename(ctx context.Context, oldPath, newPath string) error {
	oldExcluded := u.exclude.Match(oldPath)
	newExcluded := u.exclude.Match(newPath)
	switch {
	case oldExcluded && newExcluded:
		u.count(OutcomeExcluded, 1)
		return nil
	case newExcluded:
		return u.remove(ctx, oldPath)
	case oldExcluded:
		return u.create(ctx, newPath)
	}

	e, err := u.statPath(newPath)
	if err != nil {
		return err
	}
	if e == nil {
		return u.remove(ctx, oldPath)
	}

	found, err := u.store.Rename(ctx, oldPath, newPath, e)
	if err != nil {
		return err
	}
	if found {
		u.count(OutcomeUpdated, 1)
		return nil
	}

	created, err := u.upsert(ctx, e)
	if err == nil && created {
		u.count(OutcomeHealed, 1)
	}
	return err
}
