// Package daemon keeps the index current by applying filesystem events
// from the configured watch roots.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/fsfind/pkg/daemon/metrics"
	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/daemon/updater"
	"github.com/jamesainslie/fsfind/pkg/daemon/watcher"
	"github.com/jamesainslie/fsfind/pkg/fsfind/config"
	"github.com/jamesainslie/fsfind/pkg/fsfind/filter"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/types"
)

// Daemon owns the store, the watcher and the updater for one process.
type Daemon struct {
	cfg       *config.Config
	store     *store.Store
	watcher   *watcher.Watcher
	updater   *updater.Updater
	metrics   *metrics.Metrics
	startTime time.Time

	// StatusPath, when set, receives a status file at start and on every
	// stats tick.
	StatusPath string

	closeOnce sync.Once
	closeErr  error
}

// New opens the store and prepares the watcher. The store is migrated to
// the current schema and an interrupted ingest is repaired.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exclude, err := filter.New(cfg.ExcludePatterns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUsage, err)
	}

	s, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := RecoverInterruptedIngest(ctx, s); err != nil {
		_ = s.Close()
		return nil, err
	}

	m := metrics.New()
	w, err := watcher.New(watcher.Options{
		MaxDepth:    cfg.MaxDepth,
		BufferSize:  cfg.BatchSize,
		Exclude:     exclude,
		StoredInode: storedInode(s),
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &Daemon{
		cfg:       cfg,
		store:     s,
		watcher:   w,
		updater:   updater.New(s, exclude, updater.WithMetrics(m)),
		metrics:   m,
		startTime: time.Now(),
	}, nil
}

func storedInode(s *store.Store) func(string) (uint64, bool) {
	return func(path string) (uint64, bool) {
		e, err := s.Get(context.Background(), path)
		if err != nil {
			return 0, false
		}
		return e.Inode, true
	}
}

// Store returns the daemon's store.
func (d *Daemon) Store() *store.Store { return d.store }

// Metrics returns the daemon's metrics.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// Counts returns the updater counters.
func (d *Daemon) Counts() updater.Counts { return d.updater.Counts() }

// Watcher returns the daemon's watcher.
func (d *Daemon) Watcher() *watcher.Watcher { return d.watcher }

// Run watches the configured roots and applies events until ctx is
// cancelled. Roots that cannot be watched are logged and skipped; Run
// fails only when no root could be watched.
func (d *Daemon) Run(ctx context.Context) error {
	log := logging.Get("daemon")

	watched := 0
	for _, root := range d.cfg.WatchPaths {
		if err := d.watcher.Watch(root); err != nil {
			log.Warn("cannot watch path", "path", root, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("%w: none of the watch paths could be watched", types.ErrUsage)
	}
	d.metrics.SetWatchedDirs(d.watcher.WatchCount())

	log.Info("daemon started",
		"roots", d.watcher.Roots(),
		"watches", d.watcher.WatchCount(),
		"database", d.cfg.DatabasePath,
		"excludes", len(d.cfg.ExcludePatterns))
	d.writeStatus()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.eventLoop(gctx)
		return nil
	})

	g.Go(func() error {
		d.statsLoop(gctx)
		return nil
	})

	if d.cfg.MetricsAddr != "" {
		srv := NewMetricsServer(d.cfg.MetricsAddr, d.metrics.Handler())
		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}

	err := g.Wait()
	d.logCounts("daemon stopping")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// eventLoop applies events in arrival order. An event in flight when ctx
// is cancelled still completes.
func (d *Daemon) eventLoop(ctx context.Context) {
	applyCtx := context.WithoutCancel(ctx)
	d.watcher.Run(ctx, func(ev watcher.Event) {
		_ = d.updater.Apply(applyCtx, ev)
	})
}

func (d *Daemon) statsLoop(ctx context.Context) {
	interval := d.cfg.StatsInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Daemon) tick(ctx context.Context) {
	d.logCounts("updater statistics")

	d.metrics.SetWatchedDirs(d.watcher.WatchCount())
	if n, err := d.store.Count(ctx); err == nil {
		d.metrics.SetIndexedEntries(n)
	}

	d.writeStatus()
}

func (d *Daemon) writeStatus() {
	if d.StatusPath == "" {
		return
	}
	if err := WriteStatusReady(d.StatusPath, d.Status()); err != nil {
		logging.Get("daemon").Warn("failed to write status file", "path", d.StatusPath, "error", err)
	}
}

func (d *Daemon) logCounts(msg string) {
	c := d.updater.Counts()
	args := append(c.LogFields(), "uptime", time.Since(d.startTime).Round(time.Second))
	logging.Get("daemon").Info(msg, args...)
}

// Status describes the running daemon.
func (d *Daemon) Status() *StatusFile {
	counts := d.updater.Counts()
	return &StatusFile{
		StartedAt:  d.startTime,
		WatchRoots: d.watcher.Roots(),
		Watches:    d.watcher.WatchCount(),
		Database:   d.cfg.DatabasePath,
		Counts:     &counts,
	}
}

// Close stops the watcher and closes the store. It is safe to call more
// than once.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = errors.Join(d.watcher.Close(), d.store.Close())
	})
	return d.closeErr
}
