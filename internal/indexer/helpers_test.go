package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

// call is one recorded backend operation
type call struct {
	op  string
	n   int   // Documents in a bulk write
	arg int64 // timeLessThan of a delete
}

// recordingBackend is an in-memory storage.Backend that records the order of
// operations and can be told to fail
type recordingBackend struct {
	mu    sync.Mutex
	calls []call
	docs  map[string]types.Document

	ensureErr  error
	bulkErr    error
	failBulkAt int // Fail the nth bulk write (1-based) with bulkErr; 0 fails all
	refreshErr error
	deleteErr  error

	onBulk func(n int) // Called before a bulk write is recorded
	bulks  int
}

var _ storage.Backend = (*recordingBackend)(nil)

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{docs: make(map[string]types.Document)}
}

func (b *recordingBackend) record(c call) {
	b.calls = append(b.calls, c)
}

func (b *recordingBackend) EnsureIndex(ctx context.Context, index string, mapping *storage.Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(call{op: "ensure"})
	return b.ensureErr
}

func (b *recordingBackend) Refresh(ctx context.Context, index string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(call{op: "refresh"})
	return b.refreshErr
}

func (b *recordingBackend) Status(ctx context.Context, index string) (*storage.IndexStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &storage.IndexStatus{Name: index, Documents: int64(len(b.docs))}, nil
}

func (b *recordingBackend) SetQueryLog(ctx context.Context, index string, enabled bool) error {
	return nil
}

func (b *recordingBackend) BulkWrite(ctx context.Context, index string, docs []types.Document) error {
	if b.onBulk != nil {
		b.onBulk(len(docs))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bulks++
	b.record(call{op: "bulk", n: len(docs)})
	if b.bulkErr != nil && (b.failBulkAt == 0 || b.failBulkAt == b.bulks) {
		return b.bulkErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range docs {
		b.docs[d.ID] = d
	}
	return nil
}

func (b *recordingBackend) DeleteByQuery(ctx context.Context, index string, timeLessThan int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(call{op: "delete", arg: timeLessThan})
	if b.deleteErr != nil {
		return 0, b.deleteErr
	}
	var deleted int64
	for id, d := range b.docs {
		if d.Source.Time < timeLessThan {
			delete(b.docs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (b *recordingBackend) Get(ctx context.Context, index string, id string) (*types.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &d, nil
}

func (b *recordingBackend) Search(ctx context.Context, index string, query storage.Query) (*types.SearchResult, error) {
	return &types.SearchResult{}, nil
}

func (b *recordingBackend) Close() error {
	return nil
}

// ops returns the recorded operation names in order
func (b *recordingBackend) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.op
	}
	return out
}

// bulkSizes returns the size of every recorded bulk write
func (b *recordingBackend) bulkSizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for _, c := range b.calls {
		if c.op == "bulk" {
			out = append(out, c.n)
		}
	}
	return out
}

// paths returns the sorted paths of all stored documents
func (b *recordingBackend) paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.docs))
	for _, d := range b.docs {
		out = append(out, d.Source.Path.Real)
	}
	sort.Strings(out)
	return out
}

// createTestFile creates a file (and its parent directories) below dir
func createTestFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", len(name))), 0644))
	return path
}

// createTestTree creates the named files below a fresh root and returns the root
func createTestTree(t testing.TB, names ...string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(root, 0755))
	for _, name := range names {
		createTestFile(t, root, name)
	}
	return root
}

// fakeClock hands out times that advance by step on every call
type fakeClock struct {
	mu   sync.Mutex
	now  int64
	step int64
}

func newFakeClock(start, step int64) *fakeClock {
	return &fakeClock{now: start, step: step}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Unix(c.now, 0)
	c.now += c.step
	return t
}
