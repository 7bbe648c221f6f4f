// Package searcher answers ad-hoc lookups against the file index.
//
// Two query styles are supported:
//   - Filename prefix (default): "molly" matches "Molly.jpg" and "molly_beach.png"
//   - Full-text: words anywhere in the path, e.g. "apollo" matches
//     "/srv/share/projects/apollo/plan.docx"
//
// Both can be restricted to a directory with PathPrefix.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(backend, "files")
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Term:       "molly",
//	    PathPrefix: "/srv/share/photos",
//	    Limit:      20,
//	})
//
//	for _, hit := range resp.Hits {
//	    fmt.Printf("[%d] %s\n", hit.Rank, hit.Source.Path.Real)
//	}
//
// # Caching
//
// Responses are kept in an expiring LRU cache (1000 entries, 5 minutes by
// default). Invalidate purges the cache; the indexer triggers it after every
// run, single-path import and clear.
package searcher
