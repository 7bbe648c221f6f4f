// Package types provides shared type definitions for fsindex.
//
// This package defines the domain types used across the synchronization
// engine, the storage backend and the search surfaces.
//
// # Core Types
//
// IndexedPath is the unit of indexing: one file or directory observed during
// a walk, stamped with the epoch of the run that observed it:
//
//	p := types.IndexedPath{
//	    Path:  "/srv/share/report.pdf",
//	    Name:  "report.pdf",
//	    Kind:  types.KindFile,
//	    Epoch: 1718000000,
//	}
//
// Document is the backend representation of an IndexedPath. Its ID is the
// SHA-256 of the path, so re-indexing a path overwrites the previous document
// instead of duplicating it:
//
//	doc := p.Document()
//	// doc.ID == types.DocumentID("/srv/share/report.pdf")
//
// The JSON layout of Source follows the field names Samba's mdssvc expects
// from an Elasticsearch index (path.real, file.filename, ...), so the same
// documents can be exported to such a backend unchanged.
//
// # Epochs
//
// An epoch is the Unix time (seconds) at which a synchronization run started.
// A document is stale once its stored epoch is strictly less than the current
// epoch minus one:
//
//	if types.IsStale(doc.Source.Time, currentEpoch) {
//	    // eligible for deletion after the run completes
//	}
//
// # Errors
//
// Sentinel errors are wrapped with fmt.Errorf("...: %w", err) and tested with
// errors.Is. ErrPathNotFound is the only error the engine recovers from
// locally; everything else terminates the run.
package types
