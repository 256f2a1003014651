package style

// Layer types.
const (
	TypeFill   = "fill"
	TypeSymbol = "symbol"
)

// Visibility values of the layout "visibility" property.
const (
	Visible = "visible"
	None    = "none"
)

// Source is a vector tile source registration.
type Source struct {
	Type string `json:"type" doc:"Source type" example:"vector"`
	URL  string `json:"url" doc:"Tile source URL" example:"mapbox://hadrienleger.79g5r5gt"`
}

// Layer is one render primitive bound to a source.
type Layer struct {
	ID          string         `json:"id" doc:"Primitive ID"`
	Type        string         `json:"type" doc:"Primitive type" enum:"fill,symbol"`
	Source      string         `json:"source" doc:"Source ID"`
	SourceLayer string         `json:"source-layer,omitempty" doc:"Layer inside the vector source"`
	MinZoom     float64        `json:"minzoom,omitempty"`
	MaxZoom     float64        `json:"maxzoom,omitempty"`
	Filter      Expression     `json:"filter,omitempty" doc:"Feature filter expression"`
	Layout      map[string]any `json:"layout,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
}

// Visibility returns the layout visibility, defaulting to visible.
func (l Layer) Visibility() string {
	if v, ok := l.Layout["visibility"].(string); ok {
		return v
	}
	return Visible
}

// Document is a complete style: sources keyed by id plus ordered layers.
type Document struct {
	Version int               `json:"version"`
	Name    string            `json:"name,omitempty"`
	Center  []float64         `json:"center,omitempty"`
	Zoom    float64           `json:"zoom,omitempty"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
}
