package types

import "time"

// Document is the unit written to the search backend
type Document struct {
	ID     string `json:"_id"`
	Source Source `json:"_source"`
}

// Source is the indexed payload of a document
type Source struct {
	Path PathField `json:"path"`
	File FileField `json:"file"`
	Time int64     `json:"time"`
}

// PathField holds the real filesystem path
type PathField struct {
	Real string `json:"real"`
}

// FileField holds name and optional metadata
type FileField struct {
	Filename     string     `json:"filename"`
	Kind         Kind       `json:"kind,omitempty"`
	Filesize     *int64     `json:"filesize,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// IndexedPath converts a document back into the path it describes
func (d Document) IndexedPath() IndexedPath {
	return IndexedPath{
		Path:         d.Source.Path.Real,
		Name:         d.Source.File.Filename,
		Kind:         d.Source.File.Kind,
		Size:         d.Source.File.Filesize,
		LastModified: d.Source.File.LastModified,
		Epoch:        d.Source.Time,
	}
}
