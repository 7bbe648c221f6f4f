package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dshills/fsindex/pkg/types"
)

func newTracedIndexer(t *testing.T, backend *recordingBackend, root string) (*Indexer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	idx := New(backend, nil, Options{
		Roots:          []string{root},
		Clock:          newFakeClock(1700000000, 10).Now,
		TracerProvider: tp,
	})
	return idx, recorder
}

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

func TestTracing_RunSpans(t *testing.T) {
	root := createTestTree(t, "a.txt", "b.txt")
	idx, recorder := newTracedIndexer(t, newRecordingBackend(), root)

	stats, err := idx.Run(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Equal(t, []string{"indexer.Prepare", "indexer.Walk", "indexer.Reconcile", "indexer.Run"}, spanNames(spans))

	run := spans[3]
	assert.Equal(t, codes.Ok, run.Status().Code)
	attrs := map[string]any{}
	for _, kv := range run.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, stats.RunID, attrs["fsindex.run_id"])
	assert.Equal(t, stats.Epoch, attrs["fsindex.epoch"])
	assert.Equal(t, int64(2), attrs["fsindex.indexed"])

	for _, child := range spans[:3] {
		assert.Equal(t, run.SpanContext().SpanID(), child.Parent().SpanID(), child.Name())
	}
}

func TestTracing_BulkFailureMarksSpans(t *testing.T) {
	root := createTestTree(t, "a.txt")
	backend := newRecordingBackend()
	backend.bulkErr = errors.New("disk full")
	idx, recorder := newTracedIndexer(t, backend, root)

	_, err := idx.Run(context.Background())
	require.ErrorIs(t, err, types.ErrBulkWrite)

	spans := recorder.Ended()
	// Reconcile never starts after a failed walk
	require.Equal(t, []string{"indexer.Prepare", "indexer.Walk", "indexer.Run"}, spanNames(spans))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, codes.Error, spans[2].Status().Code)
	assert.NotEmpty(t, spans[2].Events(), "error should be recorded as an event")
}

func TestTracing_IndexPath(t *testing.T) {
	root := createTestTree(t, "a.txt")
	idx, recorder := newTracedIndexer(t, newRecordingBackend(), root)

	_, err := idx.IndexPath(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	_, err = idx.IndexPath(context.Background(), "/elsewhere")
	require.ErrorIs(t, err, types.ErrOutsideRoots)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "indexer.IndexPath", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
