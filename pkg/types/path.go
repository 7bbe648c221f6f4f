package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Kind distinguishes files from directories
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindFile || k == KindDirectory
}

// IndexedPath is a single file or directory observed during a walk
type IndexedPath struct {
	Path         string
	Name         string
	Kind         Kind
	Size         *int64     // Nil unless extended metadata is enabled
	LastModified *time.Time // Nil unless extended metadata is enabled
	Epoch        int64
}

// ID returns the document identifier of the path
func (p IndexedPath) ID() string {
	return DocumentID(p.Path)
}

// Document converts the path into its backend document
func (p IndexedPath) Document() Document {
	return Document{
		ID: p.ID(),
		Source: Source{
			Path: PathField{Real: p.Path},
			File: FileField{
				Filename:     p.Name,
				Kind:         p.Kind,
				Filesize:     p.Size,
				LastModified: p.LastModified,
			},
			Time: p.Epoch,
		},
	}
}

// DocumentID maps a path to its document identifier: the hex SHA-256 of the path bytes
func DocumentID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// StaleBefore returns the exclusive upper bound of stale epochs for a run
func StaleBefore(epoch int64) int64 {
	return epoch - 1
}

// IsStale reports whether a document stamped with docEpoch is stale in the given run
func IsStale(docEpoch, epoch int64) bool {
	return docEpoch < StaleBefore(epoch)
}
