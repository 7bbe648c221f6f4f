// Package indexer synchronizes directory trees into a search index.
//
// Every run is identified by an epoch, the Unix time in seconds at which it
// started. All documents written during a run carry that epoch in their
// time field; after the run completed, every document older than epoch-1 is
// stale and gets removed.
//
// # Basic Usage
//
//	idx := indexer.New(backend, rules, indexer.Options{
//	    Roots:    []string{"/srv/share"},
//	    BulkSize: 10000,
//	})
//
//	stats, err := idx.Run(ctx)
//	fmt.Printf("indexed %d paths, deleted %d\n", stats.Indexed, stats.Deleted)
//
// # Run Phases
//
//  1. Preparing: apply the index mapping (create or update)
//  2. Walking: traverse the roots, filter, map and buffer documents
//  3. Reconciling: refresh the index, then delete stale documents
//
// Reconciliation only happens after a walk completed and the trailing batch
// was flushed. A failed bulk write, an unreadable root or a cancelled
// context end the run before anything is deleted, so the previous epoch
// stays searchable.
//
// # Concurrent Processing
//
// Each root is traversed by its own producer. Entries are mapped by a pool of
// workers bounded by a semaphore:
//
//	semaphore := make(chan struct{}, workers)
//
// The Submitter buffer is the only shared mutable state and is guarded by a
// mutex. A buffer reaching its capacity is flushed as one bulk write.
//
// # Error Handling
//
// Paths that disappear between enumeration and stat are skipped silently.
// Unreadable entries below a root are logged and skipped. Everything else
// ends the run with an error wrapping one of the sentinels of pkg/types.
// Retries are the concern of the backend (storage.RetryingBackend).
package indexer
