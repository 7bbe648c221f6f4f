package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/fsindex/internal/filter"
	"github.com/dshills/fsindex/internal/metrics"
	"github.com/dshills/fsindex/pkg/types"
)

// Entry is a file or directory found below a root
type Entry struct {
	Path string
	Name string
	Kind types.Kind
}

// Sink receives the documents produced by a walk
type Sink interface {
	Add(ctx context.Context, doc types.Document) error
}

// WalkResult summarizes one walk over all roots
type WalkResult struct {
	Indexed     int64
	Excluded    int64
	Skipped     int64
	Directories int64
	Visited     []string // Eligible directories, only with CollectVisited
}

// Walker traverses root directories and feeds eligible entries to a Sink
type Walker struct {
	rules  *filter.Ruleset
	mapper *Mapper
	logger *slog.Logger
	index  string

	// Workers bounds the number of concurrent mapper calls (default: runtime.NumCPU()).
	Workers int
	// CollectVisited records every eligible directory in WalkResult.Visited.
	CollectVisited bool
}

// NewWalker creates a Walker. index only labels metrics.
func NewWalker(rules *filter.Ruleset, mapper *Mapper, index string, logger *slog.Logger) *Walker {
	if mapper == nil {
		mapper = NewMapper(false)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		rules:   rules,
		mapper:  mapper,
		logger:  logger,
		index:   index,
		Workers: runtime.NumCPU(),
	}
}

// Entries yields every file and directory below root, excluding root itself.
// Symbolic links below root are reported but never followed; a symlinked root
// is walked through its target. Entries that cannot be read are logged and
// skipped; a root that cannot be read yields a single error wrapping
// types.ErrRootUnavailable. The sequence may be ranged over again to
// restart the traversal.
func (w *Walker) Entries(ctx context.Context, root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		info, err := os.Stat(root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("%w: %s: %w", types.ErrRootUnavailable, root, err))
			return
		}
		if !info.IsDir() {
			yield(Entry{}, fmt.Errorf("%w: %s is not a directory", types.ErrRootUnavailable, root))
			return
		}

		// WalkDir does not descend a symlinked root, so walk its target and
		// report paths under the configured name.
		resolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			yield(Entry{}, fmt.Errorf("%w: %s: %w", types.ErrRootUnavailable, root, err))
			return
		}

		stopped := false
		err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == resolved {
					return fmt.Errorf("%w: %s: %w", types.ErrRootUnavailable, root, err)
				}
				w.logger.Warn("skipping unreadable path",
					slog.String("path", path),
					slog.String("error", err.Error()))
				metrics.RecordSkipped(w.index, metrics.ReasonUnreadable)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path == resolved {
				return nil
			}

			kind := w.kindOf(path, d)
			rel, err := filepath.Rel(resolved, path)
			if err != nil {
				return err
			}
			if !yield(Entry{Path: filepath.Join(root, rel), Name: d.Name(), Kind: kind}, nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Entry{}, err)
		}
	}
}

// kindOf classifies d. A symlink is a directory when its target is one.
func (w *Walker) kindOf(path string, d fs.DirEntry) types.Kind {
	if d.IsDir() {
		return types.KindDirectory
	}
	if d.Type()&fs.ModeSymlink != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return types.KindDirectory
		}
	}
	return types.KindFile
}

// Walk traverses roots concurrently, one producer per root, and hands every
// eligible entry mapped with epoch to sink. Vanished paths are skipped. The
// first sink or traversal error aborts the walk; cancellation of ctx returns
// an error wrapping types.ErrRunCancelled.
func (w *Walker) Walk(ctx context.Context, roots []string, epoch int64, sink Sink) (*WalkResult, error) {
	workers := w.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		indexed, excluded, skipped, directories atomic.Int64

		visitedMu sync.Mutex
		visited   []string
	)

	g, gctx := errgroup.WithContext(ctx)
	semaphore := make(chan struct{}, workers)

	for _, root := range roots {
		w.logger.Info("indexing directory", slog.String("root", root))

		g.Go(func() error {
			for entry, err := range w.Entries(gctx, root) {
				if err != nil {
					return err
				}

				if rule, hit := w.rules.Match(entry.Path); hit {
					excluded.Add(1)
					metrics.RecordSkipped(w.index, metrics.ReasonExcluded)
					w.logger.Debug("excluded path",
						slog.String("path", entry.Path),
						slog.String("rule", string(rule.Type)),
						slog.String("pattern", rule.Pattern))
					continue
				}

				if entry.Kind == types.KindDirectory {
					directories.Add(1)
					if w.CollectVisited {
						visitedMu.Lock()
						visited = append(visited, entry.Path)
						visitedMu.Unlock()
					}
				}

				select {
				case <-gctx.Done():
					return gctx.Err()
				case semaphore <- struct{}{}:
					// Acquire semaphore
				}

				g.Go(func() error {
					defer func() { <-semaphore }() // Release semaphore
					return w.process(gctx, entry, epoch, sink, &indexed, &skipped)
				})
			}
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrRunCancelled, ctx.Err())
	}
	if err != nil {
		return nil, err
	}

	sort.Strings(visited)
	return &WalkResult{
		Indexed:     indexed.Load(),
		Excluded:    excluded.Load(),
		Skipped:     skipped.Load(),
		Directories: directories.Load(),
		Visited:     visited,
	}, nil
}

// process maps a single entry and hands it to sink
func (w *Walker) process(ctx context.Context, entry Entry, epoch int64, sink Sink, indexed, skipped *atomic.Int64) error {
	doc, err := w.mapper.Map(entry.Path, entry.Name, entry.Kind, epoch)
	if err != nil {
		skipped.Add(1)
		if errors.Is(err, types.ErrPathNotFound) {
			// Removed between enumeration and stat
			metrics.RecordSkipped(w.index, metrics.ReasonVanished)
			w.logger.Debug("path vanished", slog.String("path", entry.Path))
			return nil
		}
		metrics.RecordSkipped(w.index, metrics.ReasonUnreadable)
		w.logger.Warn("skipping path",
			slog.String("path", entry.Path),
			slog.String("error", err.Error()))
		return nil
	}

	if err := sink.Add(ctx, doc); err != nil {
		return err
	}
	indexed.Add(1)
	return nil
}
