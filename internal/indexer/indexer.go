package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/fsindex/internal/filter"
	"github.com/dshills/fsindex/internal/metrics"
	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

// DefaultIndex is the index name used when none is configured
const DefaultIndex = "files"

// Phase is the step a run is currently in
type Phase int32

const (
	PhaseIdle Phase = iota
	PhasePreparing
	PhaseWalking
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseWalking:
		return "walking"
	case PhaseReconciling:
		return "reconciling"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Options configures an Indexer
type Options struct {
	Roots            []string         // Directories to synchronize
	Index            string           // Backend index (default: "files")
	Mapping          *storage.Mapping // Applied at the start of every run (default: storage.DefaultMapping())
	BulkSize         int              // Documents per bulk write (default: 10000)
	Workers          int              // Concurrent mapper workers (default: runtime.NumCPU())
	ExtendedMetadata bool             // Add file size and modification time
	DumpOnError      bool             // Dump a failed batch to DumpDir
	DumpDir          string           // Default: os.TempDir()
	CollectVisited   bool             // Report visited directories in RunStats

	Clock     func() time.Time // Epoch source (default: time.Now)
	OnPhase   func(Phase)      // Called on every phase change
	OnChanged func()           // Called after the index content changed
	Logger    *slog.Logger

	TracerProvider trace.TracerProvider // Default: the global OpenTelemetry provider
}

// RunStats describes a completed run
type RunStats struct {
	RunID           string        `json:"run_id"`
	Epoch           int64         `json:"epoch"`
	StartedAt       time.Time     `json:"started_at"`
	Indexed         int64         `json:"indexed"`
	Excluded        int64         `json:"excluded"`
	Skipped         int64         `json:"skipped"`
	Directories     int64         `json:"directories"`
	Flushes         int           `json:"flushes"`
	Deleted         int64         `json:"deleted"`
	Visited         []string      `json:"visited,omitempty"`
	BackendDuration time.Duration `json:"backend_duration"`
	Duration        time.Duration `json:"duration"`
}

// Indexer runs epoch based synchronization of directory trees into a backend index
type Indexer struct {
	backend storage.Backend
	rules   *filter.Ruleset
	mapper  *Mapper
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer

	lock  *IndexLock
	phase atomic.Int32

	mu        sync.Mutex
	lastEpoch int64
	lastRun   *RunStats
}

// New creates an Indexer. rules may be nil to index everything.
func New(backend storage.Backend, rules *filter.Ruleset, opts Options) *Indexer {
	if opts.Index == "" {
		opts.Index = DefaultIndex
	}
	if opts.Mapping == nil {
		opts.Mapping = storage.DefaultMapping()
	}
	if opts.BulkSize <= 0 {
		opts.BulkSize = DefaultBulkSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	return &Indexer{
		backend: backend,
		rules:   rules,
		mapper:  NewMapper(opts.ExtendedMetadata),
		opts:    opts,
		logger:  opts.Logger,
		tracer:  opts.TracerProvider.Tracer(tracerName),
		lock:    NewIndexLock(),
	}
}

// Index returns the backend index name
func (idx *Indexer) Index() string {
	return idx.opts.Index
}

// Roots returns the configured root directories
func (idx *Indexer) Roots() []string {
	return append([]string(nil), idx.opts.Roots...)
}

// Phase returns the current phase
func (idx *Indexer) Phase() Phase {
	return Phase(idx.phase.Load())
}

// LastRun returns the statistics of the last successful run, nil before the first one
func (idx *Indexer) LastRun() *RunStats {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.lastRun == nil {
		return nil
	}
	stats := *idx.lastRun
	return &stats
}

// Run performs one full synchronization, waiting for a concurrent run to finish first
func (idx *Indexer) Run(ctx context.Context) (*RunStats, error) {
	if err := idx.lock.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRunCancelled, err)
	}
	defer idx.lock.Release()
	return idx.run(ctx)
}

// TryRun performs one full synchronization unless a run is already active,
// in which case it returns types.ErrRunInProgress
func (idx *Indexer) TryRun(ctx context.Context) (*RunStats, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrRunInProgress
	}
	defer idx.lock.Release()
	return idx.run(ctx)
}

func (idx *Indexer) run(ctx context.Context) (*RunStats, error) {
	start := idx.opts.Clock()
	stats := &RunStats{
		RunID:     uuid.NewString(),
		Epoch:     idx.nextEpoch(start),
		StartedAt: start,
	}
	logger := idx.logger.With(
		slog.String("run_id", stats.RunID),
		slog.Int64("epoch", stats.Epoch))

	defer idx.setPhase(PhaseIdle)

	ctx, span := idx.startSpan(ctx, "indexer.Run",
		attrIndex.String(idx.opts.Index),
		attrRunID.String(stats.RunID),
		attrEpoch.Int64(stats.Epoch))
	err := idx.sync(ctx, stats, logger)
	stats.Duration = time.Since(start)
	span.SetAttributes(attrIndexed.Int64(stats.Indexed), attrDeleted.Int64(stats.Deleted))
	endSpan(span, err)

	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, types.ErrRunCancelled):
		status = metrics.StatusCancelled
	case err != nil:
		status = metrics.StatusError
	}
	metrics.RecordRun(idx.opts.Index, status, stats.Epoch, stats.Duration)

	if err != nil {
		logger.Error("indexing run failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", stats.Duration))
		return nil, err
	}

	logger.Info("indexing run done",
		slog.String("indexed", humanize.Comma(stats.Indexed)),
		slog.String("excluded", humanize.Comma(stats.Excluded)),
		slog.String("deleted", humanize.Comma(stats.Deleted)),
		slog.Int("flushes", stats.Flushes),
		slog.Duration("backend", stats.BackendDuration),
		slog.Duration("duration", stats.Duration))

	idx.mu.Lock()
	idx.lastRun = stats
	idx.mu.Unlock()
	idx.changed()

	out := *stats
	return &out, nil
}

// sync executes the phases of one run and fills in stats
func (idx *Indexer) sync(ctx context.Context, stats *RunStats, logger *slog.Logger) error {
	idx.setPhase(PhasePreparing)
	logger.Info("preparing index", slog.String("index", idx.opts.Index))
	_, span := idx.startSpan(ctx, "indexer.Prepare")
	err := idx.backend.EnsureIndex(ctx, idx.opts.Index, idx.opts.Mapping)
	endSpan(span, err)
	if err != nil {
		return idx.abort(ctx, backendError("prepare index "+idx.opts.Index, err))
	}

	idx.setPhase(PhaseWalking)
	submitter := NewSubmitter(idx.backend, idx.opts.Index, idx.opts.BulkSize, SubmitterOptions{
		DumpOnError: idx.opts.DumpOnError,
		DumpDir:     idx.opts.DumpDir,
		Logger:      logger,
		Now:         idx.opts.Clock,
	})
	walker := NewWalker(idx.rules, idx.mapper, idx.opts.Index, logger)
	walker.Workers = idx.opts.Workers
	walker.CollectVisited = idx.opts.CollectVisited

	walkCtx, span := idx.startSpan(ctx, "indexer.Walk")
	result, err := walker.Walk(walkCtx, idx.opts.Roots, stats.Epoch, submitter)
	if err == nil {
		// Trailing partial batch
		err = submitter.Flush(walkCtx)
	}
	endSpan(span, err)
	if err != nil {
		return idx.abort(ctx, err)
	}
	if ctx.Err() != nil {
		return idx.abort(ctx, ctx.Err())
	}

	stats.Indexed = result.Indexed
	stats.Excluded = result.Excluded
	stats.Skipped = result.Skipped
	stats.Directories = result.Directories
	stats.Visited = result.Visited
	stats.Flushes = submitter.Flushes()
	stats.BackendDuration = submitter.Elapsed()

	logger.Info("files and directories indexed",
		slog.String("documents", humanize.Comma(int64(submitter.Committed()))))

	idx.setPhase(PhaseReconciling)
	reconcileStart := time.Now()
	reconcileCtx, span := idx.startSpan(ctx, "indexer.Reconcile")
	deleted, err := NewReconciler(idx.backend, idx.opts.Index, logger).Reconcile(reconcileCtx, stats.Epoch)
	stats.BackendDuration += time.Since(reconcileStart)
	span.SetAttributes(attrDeleted.Int64(deleted))
	endSpan(span, err)
	if err != nil {
		return idx.abort(ctx, err)
	}
	stats.Deleted = deleted
	metrics.RecordDeleted(idx.opts.Index, deleted)

	logger.Info("deleted stale documents", slog.String("deleted", humanize.Comma(deleted)))
	return nil
}

// abort maps err to a cancellation when ctx is done
func (idx *Indexer) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(err, types.ErrRunCancelled) {
		return fmt.Errorf("%w: %w", types.ErrRunCancelled, err)
	}
	return err
}

// nextEpoch returns the epoch for a run starting at now. Epochs strictly
// increase within one process even if the clock steps back.
func (idx *Indexer) nextEpoch(now time.Time) int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	epoch := now.Unix()
	if epoch <= idx.lastEpoch {
		epoch = idx.lastEpoch + 1
	}
	idx.lastEpoch = epoch
	return epoch
}

// currentEpoch returns the epoch of the latest run, or the current time
// before the first run
func (idx *Indexer) currentEpoch() int64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.lastEpoch > 0 {
		return idx.lastEpoch
	}
	return idx.opts.Clock().Unix()
}

func (idx *Indexer) setPhase(p Phase) {
	if Phase(idx.phase.Swap(int32(p))) == p {
		return
	}
	if idx.opts.OnPhase != nil {
		idx.opts.OnPhase(p)
	}
}

func (idx *Indexer) changed() {
	if idx.opts.OnChanged != nil {
		idx.opts.OnChanged()
	}
}

// IndexPath upserts a single path between full runs, stamped with the epoch
// of the latest run. The path must lie below one of the configured roots and
// must not be excluded.
func (idx *Indexer) IndexPath(ctx context.Context, path string) (*types.Document, error) {
	ctx, span := idx.startSpan(ctx, "indexer.IndexPath", attrIndex.String(idx.opts.Index), attrPath.String(path))
	doc, err := idx.indexPath(ctx, path)
	endSpan(span, err)
	return doc, err
}

func (idx *Indexer) indexPath(ctx context.Context, path string) (*types.Document, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s is not absolute", types.ErrOutsideRoots, path)
	}
	path = filepath.Clean(path)

	if !filter.Within(path, idx.opts.Roots) {
		return nil, fmt.Errorf("%w: %s", types.ErrOutsideRoots, path)
	}
	for _, root := range idx.opts.Roots {
		if filepath.Clean(root) == path {
			return nil, fmt.Errorf("%w: %s is a root directory", types.ErrOutsideRoots, path)
		}
	}
	if rule, hit := idx.rules.Match(path); hit {
		return nil, fmt.Errorf("%w: %s matches %s %q", types.ErrExcluded, path, rule.Type, rule.Pattern)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	kind := types.KindFile
	if info.IsDir() {
		kind = types.KindDirectory
	} else if info.Mode()&fs.ModeSymlink != 0 {
		if target, err := os.Stat(path); err == nil && target.IsDir() {
			kind = types.KindDirectory
		}
	}

	doc, err := idx.mapper.Map(path, filepath.Base(path), kind, idx.currentEpoch())
	if err != nil {
		return nil, err
	}

	if err := idx.backend.EnsureIndex(ctx, idx.opts.Index, idx.opts.Mapping); err != nil {
		return nil, backendError("prepare index "+idx.opts.Index, err)
	}
	if err := idx.backend.BulkWrite(ctx, idx.opts.Index, []types.Document{doc}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrBulkWrite, path, err)
	}

	idx.logger.Info("indexed path", slog.String("path", path), slog.String("kind", string(kind)))
	idx.changed()
	return &doc, nil
}

// Clear deletes every document of the index. It refuses to run while a
// synchronization is active.
func (idx *Indexer) Clear(ctx context.Context) (int64, error) {
	if !idx.lock.TryAcquire() {
		return 0, types.ErrRunInProgress
	}
	defer idx.lock.Release()

	idx.logger.Info("deleting all documents", slog.String("index", idx.opts.Index))
	deleted, err := idx.backend.DeleteByQuery(ctx, idx.opts.Index, math.MaxInt64)
	if err != nil {
		return 0, backendError("clear index "+idx.opts.Index, err)
	}

	idx.logger.Info("deleted all documents",
		slog.String("index", idx.opts.Index),
		slog.String("deleted", humanize.Comma(deleted)))
	idx.changed()
	return deleted, nil
}
