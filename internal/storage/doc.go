// Package storage provides the search backend the synchronization engine
// writes to, implemented on SQLite.
//
// The backend manages:
//   - Indices and their static field mapping
//   - One document per indexed path, keyed by the SHA-256 of the path
//   - A full-text index over filenames and paths
//
// # Database Schema
//
// Tables:
//   - indices: index name, mapping JSON, query-log flag, last refresh
//   - documents: path, filename, kind, optional size/mtime, epoch, JSON source
//   - documents_fts: FTS5 index over filename and path
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteBackend("/var/lib/fsindex/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Idempotent: creates the index or updates its mapping
//	err = db.EnsureIndex(ctx, "files", storage.DefaultMapping())
//
//	// Upsert by id in one transaction
//	err = db.BulkWrite(ctx, "files", docs)
//
//	// Remove everything not refreshed by the current run
//	err = db.Refresh(ctx, "files")
//	deleted, err := db.DeleteByQuery(ctx, "files", types.StaleBefore(epoch))
//
// # Retries
//
// The engine treats backend failures as fatal. Short-term retry belongs to
// the client, so wrap the backend in a RetryingBackend:
//
//	backend := storage.NewRetryingBackend(db, storage.DefaultRetryConfig(), logger)
//
// Context cancellation and permanent errors (unknown index, invalid mapping)
// are never retried. When the budget is exhausted the last error is returned
// wrapped in types.ErrBackendUnavailable.
//
// # Searching
//
// Search matches a filename prefix (the query Samba issues for a Spotlight
// name search) or, with Fulltext, any token prefix of the filename or path.
// Results can be restricted to a directory:
//
//	res, err := db.Search(ctx, "files", storage.Query{
//	    Term:       "report",
//	    PathPrefix: "/srv/share/finance",
//	    Limit:      100,
//	})
//
// # Build Modes
//
// The pure Go driver (modernc.org/sqlite) is used by default. Build with
// -tags "sqlite_cgo,sqlite_fts5" to use mattn/go-sqlite3 instead.
package storage
