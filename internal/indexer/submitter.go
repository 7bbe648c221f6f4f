package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/fsindex/internal/metrics"
	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

// DefaultBulkSize is the number of documents sent per bulk write
const DefaultBulkSize = 10000

// SubmitterOptions configures failure handling of a Submitter
type SubmitterOptions struct {
	DumpOnError bool   // Write a failed batch to DumpDir before giving up
	DumpDir     string // Defaults to os.TempDir()
	Logger      *slog.Logger
	Now         func() time.Time
}

// Submitter buffers documents and writes them to the backend in bulk. All
// methods are safe for concurrent use; the buffer is the only state shared
// between walker workers.
type Submitter struct {
	backend  storage.Backend
	index    string
	capacity int
	opts     SubmitterOptions

	mu        sync.Mutex
	buf       []types.Document
	committed int
	flushes   int
	elapsed   time.Duration
	err       error // First flush failure; the submitter refuses work afterwards
}

// NewSubmitter creates a Submitter flushing every capacity documents
func NewSubmitter(backend storage.Backend, index string, capacity int, opts SubmitterOptions) *Submitter {
	if capacity <= 0 {
		capacity = DefaultBulkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Submitter{
		backend:  backend,
		index:    index,
		capacity: capacity,
		opts:     opts,
		buf:      make([]types.Document, 0, min(capacity, 1024)),
	}
}

// Add appends doc to the buffer and flushes once the buffer is full
func (s *Submitter) Add(ctx context.Context, doc types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.buf = append(s.buf, doc)
	if len(s.buf) >= s.capacity {
		return s.flushLocked(ctx)
	}
	return nil
}

// Submit adds docs in order and returns the number of documents committed so far
func (s *Submitter) Submit(ctx context.Context, docs []types.Document) (int, error) {
	for i := range docs {
		if err := s.Add(ctx, docs[i]); err != nil {
			return s.Committed(), err
		}
	}
	return s.Committed(), nil
}

// Flush writes the buffered documents as one bulk request. An empty buffer
// is a no-op.
func (s *Submitter) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	return s.flushLocked(ctx)
}

func (s *Submitter) flushLocked(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}

	batch := s.buf
	start := time.Now()
	err := s.backend.BulkWrite(ctx, s.index, batch)
	took := time.Since(start)

	s.elapsed += took
	metrics.RecordFlush(s.index, len(batch), took, err)

	if err != nil {
		s.err = s.fail(batch, err)
		s.buf = nil
		return s.err
	}

	s.committed += len(batch)
	s.flushes++
	s.buf = s.buf[:0]

	s.opts.Logger.Debug("flushed documents",
		slog.Int("documents", len(batch)),
		slog.Int("committed", s.committed),
		slog.Duration("took", took))
	return nil
}

func (s *Submitter) fail(batch []types.Document, cause error) error {
	s.opts.Logger.Error("bulk write failed",
		slog.String("index", s.index),
		slog.Int("documents", len(batch)),
		slog.String("error", cause.Error()))

	if s.opts.DumpOnError {
		path, err := dumpBatch(s.opts.DumpDir, s.opts.Now(), batch)
		if err != nil {
			s.opts.Logger.Error("failed to dump failed documents", slog.String("error", err.Error()))
		} else {
			s.opts.Logger.Error("dumped the failed documents, please review them",
				slog.String("file", path))
		}
	}

	return fmt.Errorf("%w: %d documents into %q: %w", types.ErrBulkWrite, len(batch), s.index, cause)
}

// Committed returns the number of documents accepted by the backend
func (s *Submitter) Committed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Flushes returns the number of successful bulk writes
func (s *Submitter) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Pending returns the number of buffered documents
func (s *Submitter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Elapsed returns the total time spent in bulk writes
func (s *Submitter) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}
