package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/fsindex/pkg/types"
)

func makeDocs(n int) []types.Document {
	docs := make([]types.Document, n)
	for i := range docs {
		path := fmt.Sprintf("/data/file-%05d", i)
		docs[i] = types.IndexedPath{Path: path, Name: filepath.Base(path), Kind: types.KindFile, Epoch: 1}.Document()
	}
	return docs
}

func TestSubmitter_FlushesAtCapacity(t *testing.T) {
	// Two full batches plus a partial one of 5 needs bulkSize > 5
	const bulkSize = 10
	backend := newRecordingBackend()
	s := NewSubmitter(backend, "files", bulkSize, SubmitterOptions{})
	ctx := context.Background()

	committed, err := s.Submit(ctx, makeDocs(bulkSize*2+5))
	require.NoError(t, err)
	assert.Equal(t, bulkSize*2, committed)
	assert.Equal(t, 5, s.Pending())

	// Trailing partial batch
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, []int{bulkSize, bulkSize, 5}, backend.bulkSizes())
	assert.Equal(t, 3, s.Flushes())
	assert.Equal(t, bulkSize*2+5, s.Committed())
	assert.Equal(t, 0, s.Pending())
}

func TestSubmitter_EmptyFlushIsNoop(t *testing.T) {
	backend := newRecordingBackend()
	s := NewSubmitter(backend, "files", 10, SubmitterOptions{})

	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, backend.ops())
	assert.Equal(t, 0, s.Flushes())
}

func TestSubmitter_DefaultCapacity(t *testing.T) {
	s := NewSubmitter(newRecordingBackend(), "files", 0, SubmitterOptions{})
	assert.Equal(t, DefaultBulkSize, s.capacity)
}

func TestSubmitter_ConcurrentAdd(t *testing.T) {
	const (
		workers  = 8
		perWorker = 250
		bulkSize = 100
	)
	backend := newRecordingBackend()
	s := NewSubmitter(backend, "files", bulkSize, SubmitterOptions{})
	ctx := context.Background()

	docs := makeDocs(workers * perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(part []types.Document) {
			defer wg.Done()
			for _, d := range part {
				assert.NoError(t, s.Add(ctx, d))
			}
		}(docs[w*perWorker : (w+1)*perWorker])
	}
	wg.Wait()
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, workers*perWorker, s.Committed())
	assert.Len(t, backend.paths(), workers*perWorker)
	for _, n := range backend.bulkSizes() {
		assert.LessOrEqual(t, n, bulkSize)
	}
	assert.Equal(t, workers*perWorker/bulkSize, s.Flushes())
}

func TestSubmitter_FailureIsFinal(t *testing.T) {
	cause := errors.New("connection refused")
	backend := newRecordingBackend()
	backend.bulkErr = cause
	s := NewSubmitter(backend, "files", 2, SubmitterOptions{})
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, makeDocs(1)[0]))
	err := s.Add(ctx, makeDocs(2)[1])
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBulkWrite)
	assert.ErrorIs(t, err, cause)

	// No retry and no further backend calls
	assert.ErrorIs(t, s.Add(ctx, makeDocs(3)[2]), types.ErrBulkWrite)
	assert.ErrorIs(t, s.Flush(ctx), types.ErrBulkWrite)
	assert.Equal(t, []int{2}, backend.bulkSizes())
	assert.Equal(t, 0, s.Committed())
}

func TestSubmitter_DumpsFailedBatch(t *testing.T) {
	dir := t.TempDir()
	backend := newRecordingBackend()
	backend.bulkErr = errors.New("timeout")
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	s := NewSubmitter(backend, "files", 10, SubmitterOptions{
		DumpOnError: true,
		DumpDir:     dir,
		Now:         func() time.Time { return now },
	})
	ctx := context.Background()

	docs := makeDocs(3)
	for _, d := range docs {
		require.NoError(t, s.Add(ctx, d))
	}
	require.ErrorIs(t, s.Flush(ctx), types.ErrBulkWrite)

	path := filepath.Join(dir, "fsindex-failed-documents-2024-03-09_14_05_07.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var dumped []types.Document
	require.NoError(t, json.Unmarshal(data, &dumped))
	assert.Equal(t, docs, dumped)
}

func TestSubmitter_NoDumpByDefault(t *testing.T) {
	dir := t.TempDir()
	backend := newRecordingBackend()
	backend.bulkErr = errors.New("timeout")
	s := NewSubmitter(backend, "files", 1, SubmitterOptions{DumpDir: dir})

	require.Error(t, s.Add(context.Background(), makeDocs(1)[0]))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDumpFileName(t *testing.T) {
	ts := time.Date(2023, 12, 31, 23, 59, 1, 0, time.UTC)
	assert.Equal(t, "fsindex-failed-documents-2023-12-31_23_59_01.json", dumpFileName(ts))
}
