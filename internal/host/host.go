// Package host is the callback boundary towards the embedding application.
package host

// Callbacks receives selection events. Implementations must not block:
// they run on the session's event loop.
type Callbacks interface {
	// MapClicked reports a single-select click.
	MapClicked(layerID, externalID string)
	// SelectedFeatures reports the ordered multi-select set of a group.
	SelectedFeatures(groupTag string, ids []string)
}

// Funcs adapts plain functions to Callbacks. Nil fields are skipped.
type Funcs struct {
	OnMapClicked       func(layerID, externalID string)
	OnSelectedFeatures func(groupTag string, ids []string)
}

func (f Funcs) MapClicked(layerID, externalID string) {
	if f.OnMapClicked != nil {
		f.OnMapClicked(layerID, externalID)
	}
}

func (f Funcs) SelectedFeatures(groupTag string, ids []string) {
	if f.OnSelectedFeatures != nil {
		f.OnSelectedFeatures(groupTag, ids)
	}
}

// Nop discards every callback.
var Nop Callbacks = Funcs{}

// Multi fans callbacks out to several receivers in order.
type Multi []Callbacks

func (m Multi) MapClicked(layerID, externalID string) {
	for _, cb := range m {
		cb.MapClicked(layerID, externalID)
	}
}

func (m Multi) SelectedFeatures(groupTag string, ids []string) {
	for _, cb := range m {
		cb.SelectedFeatures(groupTag, append([]string(nil), ids...))
	}
}
