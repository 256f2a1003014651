package memory

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-mapbridge/internal/style"
)

// Fixtures provides the features behind a source.
type Fixtures interface {
	// Collection returns the features of source id. A nil collection
	// means the source has no features.
	Collection(id string, src style.Source) (*geojson.FeatureCollection, error)
}

// Collections serves in-memory feature collections keyed by source id.
type Collections map[string]*geojson.FeatureCollection

func (c Collections) Collection(id string, _ style.Source) (*geojson.FeatureCollection, error) {
	return c[id], nil
}

// Dir reads <dir>/<source id>.geojson. Missing files yield empty sources.
type Dir string

func (d Dir) Collection(id string, _ style.Source) (*geojson.FeatureCollection, error) {
	if d == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(string(d), id+".geojson"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}
