package storage

import (
	"context"
	"time"

	"github.com/dshills/fsindex/pkg/types"
)

// Backend defines the narrow search-backend interface consumed by the
// synchronization engine
type Backend interface {
	// Index operations
	EnsureIndex(ctx context.Context, index string, mapping *Mapping) error
	Refresh(ctx context.Context, index string) error
	Status(ctx context.Context, index string) (*IndexStatus, error)
	SetQueryLog(ctx context.Context, index string, enabled bool) error

	// Document operations
	BulkWrite(ctx context.Context, index string, docs []types.Document) error
	DeleteByQuery(ctx context.Context, index string, timeLessThan int64) (deleted int64, err error)
	Get(ctx context.Context, index string, id string) (*types.Document, error)

	// Search operations
	Search(ctx context.Context, index string, query Query) (*types.SearchResult, error)

	Close() error
}

// Query describes an ad-hoc lookup
type Query struct {
	Term       string // Filename prefix, or full-text term when Fulltext is set
	PathPrefix string // Restrict hits to this directory (inclusive), empty for all
	Fulltext   bool   // Match Term against any token of the filename or path
	Limit      int
	Offset     int
}

// IndexStatus contains statistics about an index
type IndexStatus struct {
	Name          string
	Documents     int64
	Files         int64
	Directories   int64
	OldestEpoch   int64
	NewestEpoch   int64
	QueryLog      bool
	RefreshedAt   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DatabaseBytes int64
}
