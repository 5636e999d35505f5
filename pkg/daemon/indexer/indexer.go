// Package indexer bulk-loads filesystem snapshots into the store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/fsfind/pkg/daemon/store"
	"github.com/jamesainslie/fsfind/pkg/fsfind/logging"
	"github.com/jamesainslie/fsfind/pkg/fsfind/snapshot"
)

// DefaultBatchSize is the number of records written per transaction.
const DefaultBatchSize = 1000

// SnapshotMetaPrefix prefixes snapshot metadata keys copied into the store.
const SnapshotMetaPrefix = "snapshot."

// Phases reported through Progress.
const (
	PhaseLoading  = "loading"
	PhaseIndexing = "indexing"
	PhaseStats    = "stats"
	PhaseOptimize = "optimize"
	PhaseDone     = "done"
)

// Progress reports ingest progress.
type Progress struct {
	Phase      string
	Batches    int
	Entries    int64
	Skipped    int64
	BytesRead  int64
	BytesTotal int64
}

// Percent returns how much of the source has been consumed, or -1 when the
// source size is unknown.
func (p Progress) Percent() float64 {
	if p.BytesTotal <= 0 {
		return -1
	}
	pct := float64(p.BytesRead) / float64(p.BytesTotal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressFunc is called with progress updates.
type ProgressFunc func(Progress)

// Result contains the final ingest results.
type Result struct {
	ID       string
	Source   string
	Entries  int64
	Skipped  int64
	Batches  int
	Stats    *store.Stats
	Metadata map[string]string
	Duration time.Duration
}

// Indexer loads snapshots into the store, replacing its contents.
type Indexer struct {
	store *store.Store

	// BatchSize is the number of records per transaction (default DefaultBatchSize).
	BatchSize int

	// Opener opens snapshot sources. Nil uses a default snapshot.Opener.
	Opener *snapshot.Opener

	// SkipOptimize disables the final ANALYZE/VACUUM pass.
	SkipOptimize bool
}

// New creates a new indexer with default settings.
func New(s *store.Store) *Indexer {
	return &Indexer{
		store:     s,
		BatchSize: DefaultBatchSize,
	}
}

// ingestState holds the state during one ingest.
type ingestState struct {
	id         string
	src        *snapshot.Source
	batch      []*store.Entry
	progress   Progress
	onProgress ProgressFunc
	started    bool
}

func (st *ingestState) report(phase string) {
	st.progress.Phase = phase
	if st.src != nil {
		st.progress.BytesRead = st.src.BytesRead()
	}
	if st.onProgress != nil {
		st.onProgress(st.progress)
	}
}

// Ingest reads the snapshot at source and rebuilds the store from it.
//
// The store is cleared only once the snapshot's files array is reached, so
// a source that cannot be opened or is not a snapshot document leaves the
// existing index untouched. Malformed records are skipped and counted.
func (idx *Indexer) Ingest(ctx context.Context, source string, onProgress ProgressFunc) (*Result, error) {
	startTime := time.Now()
	log := logging.Get("indexer")

	opener := idx.Opener
	if opener == nil {
		opener = &snapshot.Opener{}
	}
	src, err := opener.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	batchSize := idx.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	state := &ingestState{
		id:         uuid.NewString(),
		src:        src,
		batch:      make([]*store.Entry, 0, batchSize),
		progress:   Progress{BytesTotal: src.Size},
		onProgress: onProgress,
	}

	log.Info("ingest started", "id", state.id, "source", source, "batch_size", batchSize)

	dec := snapshot.NewDecoder(src)
	dec.OnFilesStart = func() error {
		return idx.begin(ctx, state)
	}

	if err := idx.load(ctx, dec, state, batchSize); err != nil {
		if state.started {
			idx.restoreTextSync(state)
		}
		log.Error("ingest failed", "id", state.id, "entries", state.progress.Entries, "error", err)
		return nil, err
	}

	state.report(PhaseIndexing)
	if err := idx.store.RebuildTextIndex(ctx); err != nil {
		idx.restoreTextSync(state)
		return nil, err
	}
	if err := idx.store.ResumeTextSync(ctx); err != nil {
		return nil, err
	}
	if err := idx.store.CreateSecondaryIndexes(ctx); err != nil {
		return nil, err
	}

	state.report(PhaseStats)
	stats, err := idx.store.ComputeStats(ctx)
	if err != nil {
		return nil, err
	}

	meta := stats.Meta()
	for k, v := range dec.Metadata() {
		meta[SnapshotMetaPrefix+k] = v
	}
	meta[store.MetaLastIndexTime] = strconv.FormatInt(time.Now().Unix(), 10)
	meta[store.MetaIngestID] = state.id
	meta[store.MetaIngestSource] = source
	if err := idx.store.SetMetaMap(ctx, meta); err != nil {
		return nil, err
	}
	if err := idx.store.DeleteMeta(ctx, store.MetaIngestRunning); err != nil {
		return nil, err
	}

	if !idx.SkipOptimize {
		state.report(PhaseOptimize)
		if err := idx.store.Optimize(ctx); err != nil {
			// The index is complete and usable without the optimize pass.
			log.Warn("optimize failed", "error", err)
		}
	}

	state.report(PhaseDone)

	result := &Result{
		ID:       state.id,
		Source:   source,
		Entries:  state.progress.Entries,
		Skipped:  state.progress.Skipped,
		Batches:  state.progress.Batches,
		Stats:    stats,
		Metadata: dec.Metadata(),
		Duration: time.Since(startTime),
	}
	log.Info("ingest finished",
		"id", result.ID,
		"entries", result.Entries,
		"skipped", result.Skipped,
		"dirs", stats.Dirs,
		"files", stats.Files,
		"duration", result.Duration)

	return result, nil
}

// begin clears the store and suspends text sync for the bulk load.
func (idx *Indexer) begin(ctx context.Context, state *ingestState) error {
	if err := idx.store.SuspendTextSync(ctx); err != nil {
		return err
	}
	state.started = true
	if err := idx.store.Reset(ctx); err != nil {
		return err
	}
	return idx.store.SetMeta(ctx, store.MetaIngestRunning, state.id)
}

func (idx *Indexer) load(ctx context.Context, dec *snapshot.Decoder, state *ingestState, batchSize int) error {
	warn := logging.NewLimited(logging.Get("indexer"), time.Second, 20)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *snapshot.RecordError
		if errors.As(err, &recErr) {
			state.progress.Skipped++
			warn.Warn("skipping malformed record", "index", recErr.Index, "error", recErr.Err)
			continue
		}
		if err != nil {
			return err
		}

		state.batch = append(state.batch, &store.Entry{
			Path:    rec.Path,
			Name:    rec.Name,
			Inode:   rec.Inode,
			Size:    rec.Size,
			ModTime: rec.ModTime,
			Mode:    rec.Mode,
			IsDir:   rec.IsDir,
		})
		if len(state.batch) >= batchSize {
			if err := idx.flush(ctx, state); err != nil {
				return err
			}
		}
	}

	return idx.flush(ctx, state)
}

func (idx *Indexer) flush(ctx context.Context, state *ingestState) error {
	if len(state.batch) == 0 {
		return nil
	}
	if err := idx.store.PutBatch(ctx, state.batch); err != nil {
		return fmt.Errorf("writing batch %d: %w", state.progress.Batches+1, err)
	}
	state.progress.Batches++
	state.progress.Entries += int64(len(state.batch))
	state.batch = state.batch[:0]
	state.report(PhaseLoading)
	return nil
}

// restoreTextSync leaves a partially loaded store searchable after a
// failed ingest. It runs detached from the caller's context, which may
// already be cancelled.
func (idx *Indexer) restoreTextSync(state *ingestState) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := logging.Get("indexer")
	if err := idx.store.RebuildTextIndex(ctx); err != nil {
		log.Error("rebuilding text index after failure", "id", state.id, "error", err)
	}
	if err := idx.store.ResumeTextSync(ctx); err != nil {
		log.Error("restoring text sync after failure", "id", state.id, "error", err)
	}
}
