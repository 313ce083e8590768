package conf

import (
	"fmt"

	"github.com/pelletier/go-toml"
)

// BlockManifestEntry declares one block's static identity: its number,
// a human name for logging, and how many worker instances it runs (see
// spec §4.3: "instance 0 means any/singleton; non-zero routes to that
// exact worker").
type BlockManifestEntry struct {
	Number    uint16 `toml:"number"`
	Name      string `toml:"name"`
	Instances uint16 `toml:"instances"`
}

// BlockManifest is the declarative list of blocks a process-context
// registry initializes at startup.
type BlockManifest struct {
	Blocks []BlockManifestEntry `toml:"block"`
}

// LoadBlockManifest parses a TOML block manifest file of the form:
//
//	[[block]]
//	number = 245
//	name = "DBTC"
//	instances = 1
//
//	[[block]]
//	number = 248
//	name = "DBLQH"
//	instances = 4
func LoadBlockManifest(path string) (*BlockManifest, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conf: load block manifest %s: %w", path, err)
	}

	var manifest BlockManifest
	if err := tree.Unmarshal(&manifest); err != nil {
		return nil, fmt.Errorf("conf: parse block manifest %s: %w", path, err)
	}
	for _, b := range manifest.Blocks {
		if b.Number == 0 {
			return nil, fmt.Errorf("conf: block manifest: block %q has number 0, which is reserved", b.Name)
		}
	}
	return &manifest, nil
}
