package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dshills/fsindex/pkg/types"
)

// Mapper converts filesystem paths into backend documents
type Mapper struct {
	// ExtendedMetadata adds file.filesize and file.last_modified to every document.
	ExtendedMetadata bool

	stat func(string) (fs.FileInfo, error)
}

// NewMapper creates a Mapper. Without extended metadata Map never touches the filesystem.
func NewMapper(extendedMetadata bool) *Mapper {
	return &Mapper{ExtendedMetadata: extendedMetadata, stat: os.Stat}
}

// Map builds the document for path. The only fallible step is the metadata
// lookup: a path that vanished since it was enumerated yields an error
// wrapping types.ErrPathNotFound.
func (m *Mapper) Map(path, name string, kind types.Kind, epoch int64) (types.Document, error) {
	p := types.IndexedPath{
		Path:  path,
		Name:  name,
		Kind:  kind,
		Epoch: epoch,
	}

	if m.ExtendedMetadata {
		stat := m.stat
		if stat == nil {
			stat = os.Stat
		}
		info, err := stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return types.Document{}, fmt.Errorf("%w: %s", types.ErrPathNotFound, path)
			}
			return types.Document{}, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		size := info.Size()
		modified := info.ModTime().UTC()
		p.Size = &size
		p.LastModified = &modified
	}

	return p.Document(), nil
}
