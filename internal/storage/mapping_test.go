package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMapping(t *testing.T) {
	m := DefaultMapping()

	require.Contains(t, m.Properties, "path")
	require.Contains(t, m.Properties, "file")
	require.Contains(t, m.Properties, "time")
	assert.Equal(t, "keyword", m.Properties["path"].Properties["real"].Type)
	assert.Equal(t, "keyword", m.Properties["file"].Properties["filename"].Type)
	assert.Equal(t, "long", m.Properties["time"].Type)
}

func TestParseMapping_Invalid(t *testing.T) {
	_, err := ParseMapping([]byte(`{`))
	assert.ErrorIs(t, err, ErrInvalidMapping)

	_, err = ParseMapping([]byte(`{"mappings": {}}`))
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestLoadMapping_RoundTrip(t *testing.T) {
	encoded, err := DefaultMapping().JSON()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, os.WriteFile(path, encoded, 0644))

	loaded, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultMapping(), loaded)
}

func TestMapping_Conflicts(t *testing.T) {
	base := DefaultMapping()

	t.Run("identical", func(t *testing.T) {
		assert.Empty(t, base.Conflicts(DefaultMapping()))
	})

	t.Run("added field is compatible", func(t *testing.T) {
		other := DefaultMapping()
		other.Properties["owner"] = Field{Type: "keyword"}
		assert.Empty(t, base.Conflicts(other))
	})

	t.Run("changed nested type conflicts", func(t *testing.T) {
		other := DefaultMapping()
		file := other.Properties["file"]
		file.Properties = map[string]Field{"filename": {Type: "text"}}
		other.Properties["file"] = file
		assert.Equal(t, []string{"file.filename"}, base.Conflicts(other))
	})
}
