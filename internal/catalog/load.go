package catalog

import (
	_ "embed"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

//go:embed default.yaml
var defaultCatalog []byte

// File is the on-disk catalog format.
type File struct {
	AdministrativeLayer string            `json:"administrativeLayer" yaml:"administrativeLayer"`
	Layers              []LayerDefinition `json:"layers" yaml:"layers"`
}

// Parse decodes a YAML catalog. A decode failure returns a nil catalog;
// validation failures return a catalog of the valid layers plus the error.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, maperr.Configuration("decode catalog: %v", err)
	}
	if len(f.Layers) == 0 {
		return nil, maperr.Configuration("catalog declares no layers")
	}
	return New(f.AdministrativeLayer, f.Layers)
}

// Load reads a catalog file, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, maperr.Configuration("read catalog %s: %v", path, err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// DefaultYAML returns the raw built-in catalog.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultCatalog...)
}
