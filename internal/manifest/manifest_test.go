package manifest

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	m, err := Extract("report.go", []byte(validModule))
	require.NoError(t, err)

	mf := New()
	mf.Add(m)
	mf.Add(&Module{Path: "regions.go", Targets: []Target{}, Refs: []string{}})

	path := filepath.Join(t.TempDir(), DefaultDir, FileName)
	require.NoError(t, mf.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())

	got, ok := loaded.Get("report")
	require.True(t, ok)
	assert.Equal(t, m.Refs, got.Refs)
	assert.Equal(t, m.Targets, got.Targets)
	assert.Equal(t, m.Hash, got.Hash)

	// JSON numbers come back as float64 and still answer config lookups.
	assert.Equal(t, 2, got.Retries())
	assert.Equal(t, m.RetryDelay(), got.RetryDelay())

	leaf, err := loaded.Module("regions.go")
	require.NoError(t, err)
	assert.Empty(t, leaf.Refs)
}

func TestManifestMissingModule(t *testing.T) {
	mf := New()

	_, err := mf.Module("missing.go")
	assert.Error(t, err)
	_, err = mf.Resolve("missing")
	assert.Error(t, err)
}

func TestReadRejectsUnknownVersion(t *testing.T) {
	_, err := Read(bytes.NewBufferString(`{"version": 99, "modules": []}`))
	assert.ErrorContains(t, err, "unsupported manifest version")
}
