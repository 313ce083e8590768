package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBlockManifestParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.toml")
	contents := `
[[block]]
number = 245
name = "DBTC"
instances = 1

[[block]]
number = 248
name = "DBLQH"
instances = 4
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	manifest, err := LoadBlockManifest(path)
	require.NoError(t, err)
	require.Len(t, manifest.Blocks, 2)
	assert.Equal(t, uint16(245), manifest.Blocks[0].Number)
	assert.Equal(t, "DBTC", manifest.Blocks[0].Name)
	assert.Equal(t, uint16(4), manifest.Blocks[1].Instances)
}

func TestLoadBlockManifestRejectsReservedBlockNumberZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[block]]\nnumber = 0\nname = \"bad\"\n"), 0644))

	_, err := LoadBlockManifest(path)
	assert.Error(t, err)
}

func TestLoadBlockManifestMissingFileErrors(t *testing.T) {
	_, err := LoadBlockManifest("/nonexistent/blocks.toml")
	assert.Error(t, err)
}
