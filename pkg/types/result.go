package types

// SearchHit is a single document matched by a search
type SearchHit struct {
	ID     string
	Rank   int // Position in result set (1-based)
	Source Source
}

// SearchResult is a page of hits plus the total number of matches
type SearchResult struct {
	Total int64
	Hits  []SearchHit
}

// Paths returns the real paths of all hits in rank order
func (r *SearchResult) Paths() []string {
	paths := make([]string, 0, len(r.Hits))
	for _, h := range r.Hits {
		paths = append(paths, h.Source.Path.Real)
	}
	return paths
}
