package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/changestore/internal/schema"
)

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load("testdata/store.yaml")
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Dir)
	assert.Equal(t, "projects", cfg.Store)
	assert.Equal(t, 2, cfg.Version)
	assert.Equal(t, schema.Descriptor{
		"Project": {KeyPath: "ProjectFileNo"},
		"Client":  {KeyPath: "ClientId"},
	}, cfg.Collections)
}

func TestLoad_CUE(t *testing.T) {
	cfg, err := Load("testdata/store.cue")
	require.NoError(t, err)

	assert.Equal(t, DefaultDir, cfg.Dir)
	assert.Equal(t, "projects", cfg.Store)
	assert.Equal(t, []string{"Client", "Project"}, cfg.Collections.Names())
}

func TestLoad_JSON(t *testing.T) {
	cfg, err := Load("testdata/store.json")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)
	assert.True(t, cfg.Collections.Has("Project"))
}

func TestLoad_CUEDirectory(t *testing.T) {
	cfg, err := Load("testdata/cuedir")
	require.NoError(t, err)
	assert.Equal(t, "split", cfg.Store)
	assert.Equal(t, 3, cfg.Version)
	assert.True(t, cfg.Collections.Has("Ticket"))
}

func TestLoad_FormatsAgree(t *testing.T) {
	y, err := Load("testdata/store.yaml")
	require.NoError(t, err)
	c, err := Load("testdata/store.cue")
	require.NoError(t, err)

	assert.Equal(t, y.Schema().Fingerprint(), c.Schema().Fingerprint())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name string
		path string
	}{
		{"unknown yaml field", write("a.yaml", "store: s\nversion: 1\nbogus: true\ncollections: {A: {keyPath: id}}\n")},
		{"yaml missing key path", write("b.yaml", "store: s\nversion: 1\ncollections: {A: {}}\n")},
		{"yaml zero version", write("c.yml", "store: s\ncollections: {A: {keyPath: id}}\n")},
		{"cue version below one", write("d.cue", `store: "s", version: 0, collections: A: keyPath: "id"`)},
		{"cue unknown field", write("e.cue", `store: "s", version: 1, extra: 1, collections: A: keyPath: "id"`)},
		{"cue syntax", write("f.cue", `store: `)},
		{"json empty store", write("g.json", `{"store": "", "version": 1, "collections": {"A": {"keyPath": "id"}}}`)},
		{"unsupported extension", write("h.toml", "store = 's'")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig_ConnectionCopiesSchema(t *testing.T) {
	cfg, err := Load("testdata/store.yaml")
	require.NoError(t, err)

	conn := cfg.Connection()
	delete(conn.Schema, "Project")
	assert.True(t, cfg.Collections.Has("Project"))
	assert.Equal(t, "projects", conn.StoreName)
	assert.Equal(t, 2, conn.Version)
}
