package indexer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dshills/fsindex/internal/indexer"

// Span attribute keys
const (
	attrIndex   = attribute.Key("fsindex.index")
	attrRunID   = attribute.Key("fsindex.run_id")
	attrEpoch   = attribute.Key("fsindex.epoch")
	attrIndexed = attribute.Key("fsindex.indexed")
	attrDeleted = attribute.Key("fsindex.deleted")
	attrPath    = attribute.Key("fsindex.path")
)

func (idx *Indexer) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return idx.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
