package catalog

import (
	"errors"

	"github.com/joeblew999/plat-mapbridge/internal/maperr"
)

// DefaultAdministrativeLayer is the layer administrative unit filters target
// when the catalog does not name one.
const DefaultAdministrativeLayer = "iris"

// Catalog is the read-only set of layers, in declaration order.
type Catalog struct {
	admin    string
	order    []string
	layers   map[string]LayerDefinition
	rejected map[string]error
}

// New validates defs and builds a catalog. Invalid entries are left out
// of the catalog: Lookup reports their configuration error and they can
// never be materialized. The returned error joins every rejection; the
// catalog is usable even when it is non-nil.
func New(admin string, defs []LayerDefinition) (*Catalog, error) {
	if admin == "" {
		admin = DefaultAdministrativeLayer
	}
	c := &Catalog{
		admin:    admin,
		layers:   make(map[string]LayerDefinition, len(defs)),
		rejected: make(map[string]error),
	}

	var errs []error
	for _, d := range defs {
		d = d.withDefaults()
		if _, dup := c.layers[d.ID]; dup {
			err := maperr.Configuration("layer %q declared twice", d.ID)
			errs = append(errs, err)
			continue
		}
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			if d.ID != "" {
				c.rejected[d.ID] = err
			}
			continue
		}
		c.layers[d.ID] = d
		c.order = append(c.order, d.ID)
	}
	if _, ok := c.layers[c.admin]; !ok {
		if _, bad := c.rejected[c.admin]; !bad {
			errs = append(errs, maperr.Configuration("administrative layer %q is not in the catalog", c.admin))
		}
	}
	return c, errors.Join(errs...)
}

// Lookup returns the definition of id.
func (c *Catalog) Lookup(id string) (LayerDefinition, error) {
	if d, ok := c.layers[id]; ok {
		return d, nil
	}
	if err, ok := c.rejected[id]; ok {
		return LayerDefinition{}, err
	}
	return LayerDefinition{}, maperr.NotFound("layer %q is not in the catalog", id)
}

// IDs returns the valid layer ids in declaration order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Definitions returns the valid layers in declaration order.
func (c *Catalog) Definitions() []LayerDefinition {
	out := make([]LayerDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.layers[id])
	}
	return out
}

// Rejected returns the ids dropped at construction with their errors.
func (c *Catalog) Rejected() map[string]error {
	out := make(map[string]error, len(c.rejected))
	for k, v := range c.rejected {
		out[k] = v
	}
	return out
}

// AdministrativeLayer is the target of administrative unit filters.
func (c *Catalog) AdministrativeLayer() string {
	return c.admin
}

// Len returns the number of valid layers.
func (c *Catalog) Len() int {
	return len(c.order)
}
