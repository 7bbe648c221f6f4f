package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

//go:embed mappings/samba.json
var defaultMappingJSON []byte

// ErrInvalidMapping is returned when a mapping document cannot be used
var ErrInvalidMapping = errors.New("invalid index mapping")

// Mapping is the static field mapping applied to an index at startup. The
// layout follows the Elasticsearch mapping Samba's mdssvc expects.
type Mapping struct {
	Properties map[string]Field `json:"properties"`
}

// Field describes a single mapped field
type Field struct {
	Type       string           `json:"type,omitempty"`
	Store      bool             `json:"store,omitempty"`
	Fielddata  bool             `json:"fielddata,omitempty"`
	Fields     map[string]Field `json:"fields,omitempty"`
	Properties map[string]Field `json:"properties,omitempty"`
}

type mappingFile struct {
	Mappings *Mapping `json:"mappings"`
}

// DefaultMapping returns the built-in mapping
func DefaultMapping() *Mapping {
	m, err := ParseMapping(defaultMappingJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded mapping is invalid: %v", err))
	}
	return m
}

// LoadMapping reads a mapping file ({"mappings": {"properties": ...}})
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return ParseMapping(data)
}

// ParseMapping decodes a mapping document
func ParseMapping(data []byte) (*Mapping, error) {
	var f mappingFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if f.Mappings == nil || len(f.Mappings.Properties) == 0 {
		return nil, fmt.Errorf("%w: no mappings.properties", ErrInvalidMapping)
	}
	return f.Mappings, nil
}

// JSON encodes the mapping in its file layout
func (m *Mapping) JSON() ([]byte, error) {
	return json.Marshal(mappingFile{Mappings: m})
}

// Conflicts lists the fields whose type differs between m and other. Added
// or removed fields are not conflicts; changing the type of an existing
// field is, and requires the index to be recreated.
func (m *Mapping) Conflicts(other *Mapping) []string {
	var out []string
	conflicts("", m.Properties, other.Properties, &out)
	sort.Strings(out)
	return out
}

func conflicts(prefix string, a, b map[string]Field, out *[]string) {
	for name, fa := range a {
		fb, ok := b[name]
		if !ok {
			continue
		}
		key := prefix + name
		if fa.Type != fb.Type {
			*out = append(*out, key)
			continue
		}
		conflicts(key+".", fa.Properties, fb.Properties, out)
		conflicts(key+".", fa.Fields, fb.Fields, out)
	}
}
