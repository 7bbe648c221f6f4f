package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

// Cache and limit defaults
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
	DefaultLimit     = 100
	MaxLimit         = 1000
)

// Request contains parameters for a search operation
type Request struct {
	Term       string // Filename prefix, or full-text term with Fulltext
	PathPrefix string // Restrict hits to this directory
	Fulltext   bool   // Match words of the path instead of the filename prefix
	Limit      int    // Default 100, at most 1000
	Offset     int
	NoCache    bool // Bypass the query cache
}

// Response contains search results and metadata
type Response struct {
	Total    int64             `json:"total"`
	Hits     []types.SearchHit `json:"hits"`
	Duration time.Duration     `json:"duration"`
	CacheHit bool              `json:"cache_hit"`
}

// Paths returns the real paths of all hits in rank order
func (r *Response) Paths() []string {
	paths := make([]string, len(r.Hits))
	for i := range r.Hits {
		paths[i] = r.Hits[i].Source.Path.Real
	}
	return paths
}

// Searcher answers ad-hoc lookups against the index. Responses are cached
// until they expire or the index changes.
type Searcher struct {
	backend storage.Backend
	index   string
	cache   *expirable.LRU[[32]byte, *Response]
}

// NewSearcher creates a Searcher with the default cache
func NewSearcher(backend storage.Backend, index string) *Searcher {
	return NewSearcherWithCache(backend, index, DefaultCacheSize, DefaultCacheTTL)
}

// NewSearcherWithCache creates a Searcher caching up to size responses for ttl
func NewSearcherWithCache(backend storage.Backend, index string, size int, ttl time.Duration) *Searcher {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Searcher{
		backend: backend,
		index:   index,
		cache:   expirable.NewLRU[[32]byte, *Response](size, nil, ttl),
	}
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	hash := computeQueryHash(req)
	if !req.NoCache {
		if cached, ok := s.cache.Get(hash); ok {
			response := copyResponse(cached)
			response.CacheHit = true
			response.Duration = time.Since(startTime)
			return response, nil
		}
	}

	result, err := s.backend.Search(ctx, s.index, storage.Query{
		Term:       req.Term,
		PathPrefix: req.PathPrefix,
		Fulltext:   req.Fulltext,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	response := &Response{
		Total: result.Total,
		Hits:  result.Hits,
	}
	if response.Hits == nil {
		response.Hits = []types.SearchHit{}
	}
	response.Duration = time.Since(startTime)

	if !req.NoCache {
		s.cache.Add(hash, copyResponse(response))
	}
	return response, nil
}

// Invalidate drops all cached responses. The indexer calls it whenever the
// index content changed.
func (s *Searcher) Invalidate() {
	s.cache.Purge()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	return s.cache.Len()
}

// validateRequest checks the request and applies defaults
func validateRequest(req *Request) error {
	req.Term = strings.TrimSpace(req.Term)
	if req.Term == "" {
		return types.ErrEmptyTerm
	}

	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return types.ErrInvalidLimit
	}

	if req.Offset < 0 {
		return fmt.Errorf("offset must not be negative, got %d", req.Offset)
	}
	return nil
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}

	dst := &Response{
		Total:    src.Total,
		Duration: src.Duration,
		CacheHit: src.CacheHit,
		Hits:     make([]types.SearchHit, len(src.Hits)),
	}

	for i, hit := range src.Hits {
		dst.Hits[i] = hit

		// Source carries optional metadata by pointer
		if hit.Source.File.Filesize != nil {
			size := *hit.Source.File.Filesize
			dst.Hits[i].Source.File.Filesize = &size
		}
		if hit.Source.File.LastModified != nil {
			modified := *hit.Source.File.LastModified
			dst.Hits[i].Source.File.LastModified = &modified
		}
	}

	return dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Term)
	data.WriteString("|")
	data.WriteString(req.PathPrefix)
	data.WriteString("|")
	fmt.Fprintf(&data, "%t|%d|%d", req.Fulltext, req.Limit, req.Offset)

	return sha256.Sum256([]byte(data.String()))
}
