package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/fsindex/internal/filter"
	"github.com/dshills/fsindex/pkg/types"
)

func TestNew_Defaults(t *testing.T) {
	idx := New(newRecordingBackend(), nil, Options{})

	assert.Equal(t, DefaultIndex, idx.Index())
	assert.Equal(t, DefaultBulkSize, idx.opts.BulkSize)
	assert.NotNil(t, idx.opts.Mapping)
	assert.Equal(t, PhaseIdle, idx.Phase())
	assert.Nil(t, idx.LastRun())
}

func TestRun_PhaseOrder(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt")
	backend := newRecordingBackend()

	var mu sync.Mutex
	var phases []Phase
	idx := New(backend, nil, Options{
		Roots: []string{root},
		Clock: newFakeClock(1700000000, 10).Now,
		OnPhase: func(p Phase) {
			mu.Lock()
			phases = append(phases, p)
			mu.Unlock()
		},
	})

	stats, err := idx.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhasePreparing, PhaseWalking, PhaseReconciling, PhaseIdle}, phases)
	assert.Equal(t, []string{"ensure", "bulk", "refresh", "delete"}, backend.ops())
	assert.Equal(t, int64(1700000000), stats.Epoch)
	assert.Equal(t, int64(2), stats.Indexed)
	assert.Equal(t, 1, stats.Flushes)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, PhaseIdle, idx.Phase())
}

func TestRun_BatchBoundary(t *testing.T) {
	const bulkSize = 10
	names := make([]string, bulkSize*2+5)
	for i := range names {
		names[i] = fmt.Sprintf("file-%02d.txt", i)
	}
	root := createTestTree(t, names...)
	backend := newRecordingBackend()

	idx := New(backend, nil, Options{
		Roots:    []string{root},
		BulkSize: bulkSize,
		Workers:  4,
		Clock:    newFakeClock(1700000000, 10).Now,
	})

	stats, err := idx.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{bulkSize, bulkSize, 5}, backend.bulkSizes())
	assert.Equal(t, 3, stats.Flushes)
	assert.Equal(t, int64(bulkSize*2+5), stats.Indexed)
}

func TestRun_WritesCurrentEpoch(t *testing.T) {
	root := createTestTree(t, "a.txt", "dir/b.txt")
	backend := newRecordingBackend()
	idx := New(backend, nil, Options{Roots: []string{root}, Clock: newFakeClock(1700000000, 10).Now})

	stats, err := idx.Run(context.Background())
	require.NoError(t, err)

	for _, p := range []string{"a.txt", "dir", "dir/b.txt"} {
		doc, err := backend.Get(context.Background(), "files", types.DocumentID(filepath.Join(root, p)))
		require.NoError(t, err, p)
		assert.Equal(t, stats.Epoch, doc.Source.Time, p)
	}
}

func TestRun_EpochsStrictlyIncrease(t *testing.T) {
	root := createTestTree(t, "a.txt")
	backend := newRecordingBackend()
	// A clock that never moves
	frozen := time.Unix(1700000000, 0)
	idx := New(backend, nil, Options{Roots: []string{root}, Clock: func() time.Time { return frozen }})

	first, err := idx.Run(context.Background())
	require.NoError(t, err)
	second, err := idx.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Epoch+1, second.Epoch)
}

func TestRun_BulkFailureSkipsReconcile(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt", "c.txt")
	backend := newRecordingBackend()
	backend.bulkErr = errors.New("connection refused")
	idx := New(backend, nil, Options{Roots: []string{root}, BulkSize: 2, Clock: newFakeClock(1700000000, 10).Now})

	stats, err := idx.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.ErrorIs(t, err, types.ErrBulkWrite)

	assert.NotContains(t, backend.ops(), "refresh")
	assert.NotContains(t, backend.ops(), "delete")
	assert.Nil(t, idx.LastRun())
	assert.Equal(t, PhaseIdle, idx.Phase())
}

func TestRun_TrailingFlushFailureSkipsReconcile(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt", "c.txt")
	backend := newRecordingBackend()
	backend.bulkErr = errors.New("timeout")
	backend.failBulkAt = 2
	idx := New(backend, nil, Options{Roots: []string{root}, BulkSize: 2, Workers: 1, Clock: newFakeClock(1700000000, 10).Now})

	_, err := idx.Run(context.Background())
	require.ErrorIs(t, err, types.ErrBulkWrite)
	assert.Equal(t, []string{"ensure", "bulk", "bulk"}, backend.ops())
}

func TestRun_PrepareFailure(t *testing.T) {
	root := createTestTree(t, "a.txt")
	backend := newRecordingBackend()
	backend.ensureErr = errors.New("connection refused")
	idx := New(backend, nil, Options{Roots: []string{root}})

	_, err := idx.Run(context.Background())
	require.ErrorIs(t, err, types.ErrBackendUnavailable)
	assert.Equal(t, []string{"ensure"}, backend.ops())
}

func TestRun_MissingRootSkipsReconcile(t *testing.T) {
	present := createTestTree(t, "a.txt")
	backend := newRecordingBackend()
	idx := New(backend, nil, Options{
		Roots: []string{present, filepath.Join(t.TempDir(), "unmounted")},
	})

	_, err := idx.Run(context.Background())
	require.ErrorIs(t, err, types.ErrRootUnavailable)
	assert.NotContains(t, backend.ops(), "delete")
}

func TestRun_CancelledSkipsReconcile(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt", "c.txt", "d.txt")
	backend := newRecordingBackend()

	ctx, cancel := context.WithCancel(context.Background())
	backend.onBulk = func(int) { cancel() }

	idx := New(backend, nil, Options{Roots: []string{root}, BulkSize: 1, Workers: 1})

	_, err := idx.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRunCancelled)
	assert.NotContains(t, backend.ops(), "refresh")
	assert.NotContains(t, backend.ops(), "delete")
}

func TestRun_DeletesStaleDocuments(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt")
	backend := newRecordingBackend()
	idx := New(backend, nil, Options{Roots: []string{root}, Clock: newFakeClock(1700000000, 60).Now})

	_, err := idx.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	stats, err := idx.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Deleted)
	assert.Equal(t, []string{filepath.Join(root, "a.txt")}, backend.paths())
}

func TestRun_SymlinkedRootKeepsDocuments(t *testing.T) {
	target := createTestTree(t, "a.txt", "b.txt")
	root := filepath.Join(t.TempDir(), "share")
	if err := os.Symlink(target, root); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	backend := newRecordingBackend()
	idx := New(backend, nil, Options{Roots: []string{root}, Clock: newFakeClock(1700000000, 60).Now})

	for i := 0; i < 2; i++ {
		stats, err := idx.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.Indexed)
		assert.Equal(t, int64(0), stats.Deleted)
	}

	assert.Equal(t, []string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}, backend.paths())
	_, err := backend.Get(context.Background(), "files", types.DocumentID(filepath.Join(root, "a.txt")))
	assert.NoError(t, err)
}

func TestTryRun_InProgress(t *testing.T) {
	root := createTestTree(t, "a.txt")
	backend := newRecordingBackend()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend.onBulk = func(int) {
		once.Do(func() { close(entered) })
		<-release
	}
	idx := New(backend, nil, Options{Roots: []string{root}})

	done := make(chan error, 1)
	go func() {
		_, err := idx.Run(context.Background())
		done <- err
	}()
	<-entered

	_, err := idx.TryRun(context.Background())
	assert.ErrorIs(t, err, types.ErrRunInProgress)
	_, err = idx.Clear(context.Background())
	assert.ErrorIs(t, err, types.ErrRunInProgress)
	assert.Equal(t, PhaseWalking, idx.Phase())

	close(release)
	require.NoError(t, <-done)

	_, err = idx.TryRun(context.Background())
	assert.NoError(t, err)
}

func TestRun_OnChangedAndLastRun(t *testing.T) {
	root := createTestTree(t, "a.txt")
	changed := 0
	idx := New(newRecordingBackend(), nil, Options{
		Roots:     []string{root},
		OnChanged: func() { changed++ },
	})

	stats, err := idx.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, changed)
	last := idx.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, stats.RunID, last.RunID)
}

func TestIndexPath(t *testing.T) {
	root := createTestTree(t, "a.txt", "notes.tmp", "sub/b.txt")
	rules := filter.MustNew(nil, []string{`.*\.tmp$`})
	backend := newRecordingBackend()
	idx := New(backend, rules, Options{Roots: []string{root}, Clock: newFakeClock(1700000000, 60).Now})
	ctx := context.Background()

	stats, err := idx.Run(ctx)
	require.NoError(t, err)

	t.Run("new file gets the epoch of the last run", func(t *testing.T) {
		path := createTestFile(t, root, "sub/new.txt")
		doc, err := idx.IndexPath(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, stats.Epoch, doc.Source.Time)
		assert.Equal(t, "new.txt", doc.Source.File.Filename)

		stored, err := backend.Get(ctx, "files", types.DocumentID(path))
		require.NoError(t, err)
		assert.Equal(t, path, stored.Source.Path.Real)
	})

	t.Run("directory", func(t *testing.T) {
		doc, err := idx.IndexPath(ctx, filepath.Join(root, "sub")+"/")
		require.NoError(t, err)
		assert.Equal(t, types.KindDirectory, doc.Source.File.Kind)
		assert.Equal(t, filepath.Join(root, "sub"), doc.Source.Path.Real)
	})

	t.Run("outside roots", func(t *testing.T) {
		_, err := idx.IndexPath(ctx, createTestFile(t, t.TempDir(), "x.txt"))
		assert.ErrorIs(t, err, types.ErrOutsideRoots)
	})

	t.Run("root itself", func(t *testing.T) {
		_, err := idx.IndexPath(ctx, root)
		assert.ErrorIs(t, err, types.ErrOutsideRoots)
	})

	t.Run("relative path", func(t *testing.T) {
		_, err := idx.IndexPath(ctx, "a.txt")
		assert.ErrorIs(t, err, types.ErrOutsideRoots)
	})

	t.Run("excluded", func(t *testing.T) {
		_, err := idx.IndexPath(ctx, filepath.Join(root, "notes.tmp"))
		assert.ErrorIs(t, err, types.ErrExcluded)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := idx.IndexPath(ctx, filepath.Join(root, "missing.txt"))
		assert.ErrorIs(t, err, types.ErrPathNotFound)
	})
}

func TestClear(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt")
	backend := newRecordingBackend()
	idx := New(backend, nil, Options{Roots: []string{root}})
	ctx := context.Background()

	_, err := idx.Run(ctx)
	require.NoError(t, err)

	deleted, err := idx.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Empty(t, backend.paths())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "preparing", PhasePreparing.String())
	assert.Equal(t, "walking", PhaseWalking.String())
	assert.Equal(t, "reconciling", PhaseReconciling.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}
