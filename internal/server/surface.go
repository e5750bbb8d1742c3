package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/atxgeo/parcelmap/internal/composer"
)

// stateSurface is the server-side map surface. The composer materializes
// its source/layer set here and the map page pulls the snapshot and
// applies it client-side. Pointer events stay in the browser, so On is
// inert and feature queries return nothing.
type stateSurface struct {
	mu       sync.Mutex
	sources  map[string]composer.SourceSpec
	order    []string
	layers   []composer.LayerSpec
	revision int
}

func newStateSurface() *stateSurface {
	return &stateSurface{sources: make(map[string]composer.SourceSpec)}
}

func (s *stateSurface) Ready() bool { return true }

func (s *stateSurface) AddSource(name string, spec composer.SourceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[name]; exists {
		return fmt.Errorf("source %q already exists", name)
	}
	s.sources[name] = spec
	s.order = append(s.order, name)
	return nil
}

func (s *stateSurface) AddLayer(spec composer.LayerSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[spec.Source]; !exists {
		return fmt.Errorf("layer %q references unknown source %q", spec.ID, spec.Source)
	}
	for _, l := range s.layers {
		if l.ID == spec.ID {
			return fmt.Errorf("layer %q already exists", spec.ID)
		}
	}
	s.layers = append(s.layers, spec)
	return nil
}

func (s *stateSurface) RemoveLayer(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.layers {
		if l.ID == name {
			s.layers = append(s.layers[:i], s.layers[i+1:]...)
			return
		}
	}
}

func (s *stateSurface) RemoveSource(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[name]; !exists {
		return
	}
	delete(s.sources, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *stateSurface) HasLayer(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.layers {
		if l.ID == name {
			return true
		}
	}
	return false
}

func (s *stateSurface) HasSource(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sources[name]
	return ok
}

func (s *stateSurface) On(composer.EventKind, string, func(composer.PointerEvent)) {}

func (s *stateSurface) QueryRenderedFeatures(orb.Point, []string) []*geojson.Feature { return nil }

func (s *stateSurface) ClusterExpansionZoom(source string, clusterID int) (float64, error) {
	return 0, fmt.Errorf("source %q has no server-side cluster index", source)
}

func (s *stateSurface) EaseTo(orb.Point, float64, time.Duration) {}

func (s *stateSurface) Zoom() float64 { return 0 }

func (s *stateSurface) TriggerRepaint() {
	s.mu.Lock()
	s.revision++
	s.mu.Unlock()
}

func (s *stateSurface) SetCursor(string) {}

// SurfaceSource is one named source in a layer-state snapshot.
type SurfaceSource struct {
	Name           string                     `json:"name"`
	Cluster        bool                       `json:"cluster,omitempty"`
	ClusterRadius  int                        `json:"clusterRadius,omitempty"`
	ClusterMaxZoom int                        `json:"clusterMaxZoom,omitempty"`
	Data           *geojson.FeatureCollection `json:"data"`
}

// SurfaceLayer is one styled layer in a layer-state snapshot.
type SurfaceLayer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Filter []any          `json:"filter,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
}

// LayerState is the full materialized map state in add order. The map
// page polls the revision and re-applies the set when it moves.
type LayerState struct {
	Revision int             `json:"revision"`
	Sources  []SurfaceSource `json:"sources"`
	Layers   []SurfaceLayer  `json:"layers"`
}

func (s *stateSurface) snapshot() LayerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := LayerState{
		Revision: s.revision,
		Sources:  make([]SurfaceSource, 0, len(s.order)),
		Layers:   make([]SurfaceLayer, 0, len(s.layers)),
	}
	for _, name := range s.order {
		spec := s.sources[name]
		state.Sources = append(state.Sources, SurfaceSource{
			Name:           name,
			Cluster:        spec.Cluster,
			ClusterRadius:  spec.ClusterRadius,
			ClusterMaxZoom: spec.ClusterMaxZoom,
			Data:           spec.Data,
		})
	}
	for _, l := range s.layers {
		state.Layers = append(state.Layers, SurfaceLayer{
			ID: l.ID, Type: l.Type, Source: l.Source,
			Filter: l.Filter, Paint: l.Paint, Layout: l.Layout,
		})
	}
	return state
}
