// Package composer maintains the mapping from loaded datasets, submitted
// properties and the active layer mode to a concrete set of named map
// sources and layers on an abstract map surface. The surface offers only
// imperative add/remove primitives and rejects duplicate names, so the
// composer tracks the set of names it created and reconciles it fully on
// every input change.
package composer

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EventKind is a pointer-event category on a rendered layer.
type EventKind string

const (
	EventClick EventKind = "click"
	EventEnter EventKind = "mouseenter"
	EventLeave EventKind = "mouseleave"
)

// SourceSpec describes a GeoJSON source, optionally clustered.
type SourceSpec struct {
	Data           *geojson.FeatureCollection
	Cluster        bool
	ClusterRadius  int
	ClusterMaxZoom int
}

// LayerSpec describes a styled layer bound to a named source.
type LayerSpec struct {
	ID     string
	Type   string // fill, line, circle, heatmap, fill-extrusion, symbol
	Source string
	Filter []any
	Paint  map[string]any
	Layout map[string]any
}

// PointerEvent carries what the surface knows about a pointer interaction
// on a rendered feature.
type PointerEvent struct {
	Layer   string
	LngLat  orb.Point
	Feature *geojson.Feature
}

// MapSurface is the rendering capability the composer drives. Duplicate
// AddSource/AddLayer names are an error; removal of an unknown name is a
// no-op. Mutating calls are only valid once Ready reports true.
type MapSurface interface {
	Ready() bool

	AddSource(name string, spec SourceSpec) error
	AddLayer(spec LayerSpec) error
	RemoveLayer(name string)
	RemoveSource(name string)
	HasLayer(name string) bool
	HasSource(name string) bool

	On(event EventKind, layer string, handler func(PointerEvent))
	QueryRenderedFeatures(at orb.Point, layers []string) []*geojson.Feature
	ClusterExpansionZoom(source string, clusterID int) (float64, error)

	EaseTo(center orb.Point, zoom float64, duration time.Duration)
	Zoom() float64
	TriggerRepaint()
	SetCursor(cursor string)
}

// Popup is the single reused popup instance. At most one popup is visible
// at a time; Show repositions and re-renders it, Remove hides it.
type Popup interface {
	Show(at orb.Point, html string)
	Remove()
}
