package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mosaic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSpec(t *testing.T) {
	path := writeSpec(t, `
neighborhood: 64
num_passes: 3
keep_first_tile_fixed: true
num_threads: 2
tiles:
  - image: a.png
    x: 0
    y: 0
  - image: b.png
    mask: b-mask.png
    x: 100
    y: 0
`)

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Len(t, spec.Tiles, 2)
	assert.Equal(t, "b-mask.png", spec.Tiles[1].Mask)
	assert.Equal(t, 4, spec.GridRows, "default grid rows")
	assert.Equal(t, 4, spec.GridCols, "default grid cols")

	cfg := spec.RefineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 64, cfg.Neighborhood)
	assert.Equal(t, 3, cfg.NumPasses)
	assert.True(t, cfg.KeepFirstTileFixed)
	assert.Equal(t, 2, cfg.NumThreads)
	assert.True(t, cfg.PrewarpTiles, "default prewarp")
	assert.InDelta(t, 0.25, cfg.MinimumOverlap, 1e-12, "default minimum overlap")
}

func TestLoadSpecRejectsBadInput(t *testing.T) {
	_, err := LoadSpec(writeSpec(t, "tiles: []\n"))
	assert.Error(t, err)

	_, err = LoadSpec(writeSpec(t, "tiles:\n  - x: 1\n    y: 2\n"))
	assert.Error(t, err)

	_, err = LoadSpec(writeSpec(t, "unknown_option: true\ntiles:\n  - image: a.png\n"))
	assert.Error(t, err, "strict decoding rejects unknown keys")

	_, err = LoadSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
