package composer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/store"
)

// fakeSurface records source/layer mutations and enforces the real
// surface's duplicate-name error behavior.
type fakeSurface struct {
	ready   bool
	sources map[string]SourceSpec
	layers  map[string]LayerSpec

	handlers map[string]map[EventKind][]func(PointerEvent)
	cursor   string

	zoom           float64
	easeCenter     orb.Point
	easeZoom       float64
	easeCount      int
	repaints       int
	expansionZooms map[int]float64

	failLayers map[string]bool
	dupErrors  int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		ready:          true,
		sources:        make(map[string]SourceSpec),
		layers:         make(map[string]LayerSpec),
		handlers:       make(map[string]map[EventKind][]func(PointerEvent)),
		expansionZooms: make(map[int]float64),
		failLayers:     make(map[string]bool),
		zoom:           6,
	}
}

func (s *fakeSurface) Ready() bool { return s.ready }

func (s *fakeSurface) AddSource(name string, spec SourceSpec) error {
	if _, exists := s.sources[name]; exists {
		s.dupErrors++
		return fmt.Errorf("source %q already exists", name)
	}
	s.sources[name] = spec
	return nil
}

func (s *fakeSurface) AddLayer(spec LayerSpec) error {
	if s.failLayers[spec.ID] {
		return fmt.Errorf("layer %q rejected", spec.ID)
	}
	if _, exists := s.layers[spec.ID]; exists {
		s.dupErrors++
		return fmt.Errorf("layer %q already exists", spec.ID)
	}
	if _, ok := s.sources[spec.Source]; !ok {
		return fmt.Errorf("layer %q references unknown source %q", spec.ID, spec.Source)
	}
	s.layers[spec.ID] = spec
	return nil
}

func (s *fakeSurface) RemoveLayer(name string)  { delete(s.layers, name) }
func (s *fakeSurface) RemoveSource(name string) { delete(s.sources, name) }

func (s *fakeSurface) HasLayer(name string) bool {
	_, ok := s.layers[name]
	return ok
}

func (s *fakeSurface) HasSource(name string) bool {
	_, ok := s.sources[name]
	return ok
}

func (s *fakeSurface) On(event EventKind, layer string, handler func(PointerEvent)) {
	if s.handlers[layer] == nil {
		s.handlers[layer] = make(map[EventKind][]func(PointerEvent))
	}
	s.handlers[layer][event] = append(s.handlers[layer][event], handler)
}

func (s *fakeSurface) fire(event EventKind, layer string, ev PointerEvent) {
	ev.Layer = layer
	for _, h := range s.handlers[layer][event] {
		h(ev)
	}
}

func (s *fakeSurface) QueryRenderedFeatures(orb.Point, []string) []*geojson.Feature { return nil }

func (s *fakeSurface) ClusterExpansionZoom(source string, clusterID int) (float64, error) {
	if z, ok := s.expansionZooms[clusterID]; ok {
		return z, nil
	}
	return 0, fmt.Errorf("unknown cluster %d", clusterID)
}

func (s *fakeSurface) EaseTo(center orb.Point, zoom float64, _ time.Duration) {
	s.easeCenter = center
	s.easeZoom = zoom
	s.easeCount++
}

func (s *fakeSurface) Zoom() float64          { return s.zoom }
func (s *fakeSurface) TriggerRepaint()        { s.repaints++ }
func (s *fakeSurface) SetCursor(cursor string) { s.cursor = cursor }

type fakePopup struct {
	visible bool
	html    string
	at      orb.Point
}

func (p *fakePopup) Show(at orb.Point, html string) {
	p.visible = true
	p.at = at
	p.html = html
}

func (p *fakePopup) Remove() { p.visible = false }

// ----- fixtures -----

func testCollection() *dataset.Collection {
	ring := func(lng, lat float64) orb.Polygon {
		return orb.Polygon{{
			{lng, lat}, {lng + 0.001, lat}, {lng + 0.001, lat + 0.001}, {lng, lat},
		}}
	}
	return &dataset.Collection{
		Parcels: []dataset.Parcel{
			{ID: "p1", Address: "1 Main St", PropertyType: dataset.Residential, MarketValue: 400000, Geometry: ring(-97.75, 30.25)},
			{ID: "p2", Address: "2 Main St", PropertyType: dataset.Commercial, MarketValue: 900000, Geometry: ring(-97.74, 30.26)},
			{ID: "p3", Address: "3 Main St", PropertyType: dataset.Vacant, MarketValue: 120000, Geometry: ring(-97.73, 30.27)},
		},
		Addresses: []dataset.AddressPoint{
			{Address: "1 Main St", City: "Austin", Location: orb.Point{-97.75, 30.25}},
		},
		Counties: []dataset.Boundary{
			{ID: "48453", Name: "Travis", Geometry: ring(-98, 30)},
		},
		State: dataset.Boundary{ID: "48", Name: "Texas", Geometry: ring(-99, 29)},
		Buildings: dataset.BuildingSet{
			Features: []dataset.BuildingFootprint{
				{ID: "b1", Geometry: ring(-97.76, 30.24), Height: 10, Area: 1, Centroid: orb.Point{-97.7595, 30.2405}},
			},
			TotalCount: 1, LoadedCount: 1,
		},
	}
}

func testProperties() []store.Property {
	return []store.Property{
		{
			ID: "submitted-1-aaa", Address: "500 Test Ave",
			Coordinate: store.Coordinate{Lat: 30.26, Lng: -97.74},
			MarketValue: 350000, PropertyType: dataset.Residential, Status: store.StatusPending,
		},
		{
			ID: "submitted-2-bbb", Address: "700 Test Blvd",
			Coordinate: store.Coordinate{Lat: 30.27, Lng: -97.73},
			MarketValue: 650000, PropertyType: dataset.Commercial, Status: store.StatusApproved,
		},
	}
}

func newTestComposer(surface *fakeSurface, popup *fakePopup, onSelect func(Selection)) *Composer {
	return New(Config{Surface: surface, Popup: popup, OnSelect: onSelect, RepaintDelay: -1})
}

// ----- tests -----

func TestReconcileIdempotent(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModeAll)

	before := c.OwnedLayers()
	require.NotEmpty(t, before)

	c.Reconcile()
	c.Reconcile()

	assert.Zero(t, surface.dupErrors, "repeat reconciliation must not hit duplicate-name errors")
	assert.Equal(t, before, c.OwnedLayers())
	assert.Len(t, surface.layers, len(before))
}

func TestModeSwitchParcelsToHeatmap(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModeParcels)

	require.True(t, surface.HasLayer(lyrParcelFill))
	require.True(t, surface.HasLayer(lyrParcelOutline))
	require.True(t, surface.HasLayer(lyrPropertyCircle))

	c.SetMode(ModeHeatmap)

	assert.True(t, surface.HasLayer(lyrHeatmap))
	assert.True(t, surface.HasLayer(lyrHeatmapPoint))
	for name := range surface.layers {
		assert.NotContains(t, name, "parcels", "parcel layer %q survived the switch", name)
	}
	assert.False(t, surface.HasLayer(lyrPropertyCircle))
	assert.Zero(t, surface.dupErrors)
}

func TestClusterExpansion(t *testing.T) {
	surface := newFakeSurface()
	surface.zoom = 6
	surface.expansionZooms[42] = 9.5

	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModeClusters)

	require.True(t, surface.HasSource(srcClusters))
	spec := surface.sources[srcClusters]
	assert.True(t, spec.Cluster)
	assert.Equal(t, clusterRadius, spec.ClusterRadius)
	assert.Equal(t, clusterMaxZoom, spec.ClusterMaxZoom)

	clusterFeature := geojson.NewFeature(orb.Point{-97.74, 30.26})
	clusterFeature.Properties["cluster"] = true
	clusterFeature.Properties["cluster_id"] = 42
	clusterFeature.Properties["point_count"] = 3
	surface.fire(EventClick, lyrClusterCircle, PointerEvent{
		LngLat:  orb.Point{-97.74, 30.26},
		Feature: clusterFeature,
	})

	assert.Equal(t, 1, surface.easeCount)
	assert.Greater(t, surface.easeZoom, 6.0)
	assert.Equal(t, orb.Point{-97.74, 30.26}, surface.easeCenter)
}

func TestClusterExpansionFallbackZoom(t *testing.T) {
	surface := newFakeSurface()
	surface.zoom = 6
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModeClusters)

	f := geojson.NewFeature(orb.Point{-97.74, 30.26})
	f.Properties["cluster_id"] = 7 // not known to the surface
	surface.fire(EventClick, lyrClusterCircle, PointerEvent{Feature: f})

	assert.Equal(t, 7.0, surface.easeZoom)
}

func TestDemoFallbackWhenNoSubmissions(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetMode(ModePoints)

	require.True(t, surface.HasSource(srcProperties))
	demo := surface.sources[srcProperties].Data
	require.NotNil(t, demo)
	assert.NotEmpty(t, demo.Features)
	for _, f := range demo.Features {
		assert.True(t, f.Properties.MustBool("demo", false))
	}
}

func TestSubmittedBeatsDemoFallback(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModePoints)

	data := surface.sources[srcProperties].Data
	require.Len(t, data.Features, 2)
	assert.Equal(t, "submitted-1-aaa", data.Features[0].Properties.MustString("id", ""))
}

func TestPolygonSubmissionsRenderAsFills(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())

	props := testProperties()
	props[0].Polygon = orb.Polygon{{
		{-97.74, 30.26}, {-97.739, 30.26}, {-97.739, 30.261}, {-97.74, 30.26},
	}}
	c.SetProperties(props)
	c.SetMode(ModeAll)

	// Split is per entity geometry kind: one fill, one circle.
	require.True(t, surface.HasLayer(lyrPropertyFill))
	require.True(t, surface.HasLayer(lyrPropertyCircle))
	assert.Len(t, surface.sources[srcPropertyPolygons].Data.Features, 1)
	assert.Len(t, surface.sources[srcProperties].Data.Features, 1)
}

func TestPolygonSubmissionsFeedPointForegrounds(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())

	props := testProperties()
	props[0].Polygon = orb.Polygon{{
		{-97.74, 30.26}, {-97.739, 30.26}, {-97.739, 30.261}, {-97.74, 30.26},
	}}
	c.SetProperties(props)

	// A polygon listing still carries a coordinate, so it counts toward
	// clustering and heat weighting as a point.
	c.SetMode(ModeClusters)
	clusterData := surface.sources[srcClusters].Data
	require.Len(t, clusterData.Features, 2)
	for _, f := range clusterData.Features {
		_, isPoint := f.Geometry.(orb.Point)
		assert.True(t, isPoint)
	}

	c.SetMode(ModeHeatmap)
	heatData := surface.sources[srcHeatmap].Data
	require.Len(t, heatData.Features, 2)
}

func TestHeatmapWeights(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModeHeatmap)

	data := surface.sources[srcHeatmap].Data
	require.Len(t, data.Features, 2)
	// 350000 / 650000 ≈ 0.538, max normalizes to 1.
	assert.InDelta(t, 0.538, data.Features[0].Properties.MustFloat64("weight", 0), 0.001)
	assert.Equal(t, 1.0, data.Features[1].Properties.MustFloat64("weight", 0))
}

func TestHeatmapDefaultWeight(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Point{0, 0})
	fc.Append(f)
	attachHeatmapWeights(fc)
	assert.Equal(t, 0.5, f.Properties["weight"])
}

func TestNotReadySurfaceDefers(t *testing.T) {
	surface := newFakeSurface()
	surface.ready = false
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetMode(ModeAll)

	assert.Empty(t, surface.layers)
	assert.Empty(t, c.OwnedLayers())

	surface.ready = true
	c.Reconcile()
	assert.NotEmpty(t, surface.layers)
}

func TestPerLayerFailureDoesNotAbort(t *testing.T) {
	surface := newFakeSurface()
	surface.failLayers[lyrParcelFill] = true

	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModeAll)

	assert.False(t, surface.HasLayer(lyrParcelFill))
	// Later builders still ran.
	assert.True(t, surface.HasLayer(lyrBuildingFill))
	assert.True(t, surface.HasLayer(lyrPropertyCircle))
	assert.NotContains(t, c.OwnedLayers(), lyrParcelFill)
}

func TestHoverPopup(t *testing.T) {
	surface := newFakeSurface()
	popup := &fakePopup{}
	c := newTestComposer(surface, popup, nil)
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModePoints)

	f := geojson.NewFeature(orb.Point{-97.74, 30.26})
	f.Properties["id"] = "submitted-1-aaa"
	f.Properties["address"] = "500 Test Ave"
	f.Properties["type"] = "residential"
	f.Properties["value"] = 350000.0

	surface.fire(EventEnter, lyrPropertyCircle, PointerEvent{LngLat: orb.Point{-97.74, 30.26}, Feature: f})
	assert.True(t, popup.visible)
	assert.Equal(t, "pointer", surface.cursor)
	assert.Contains(t, popup.html, "500 Test Ave")
	assert.Contains(t, popup.html, "residential")
	assert.Contains(t, popup.html, "$350000")

	surface.fire(EventLeave, lyrPropertyCircle, PointerEvent{})
	assert.False(t, popup.visible)
	assert.Equal(t, "", surface.cursor)
}

func TestClickResolvesProperty(t *testing.T) {
	surface := newFakeSurface()
	var selected []Selection
	c := newTestComposer(surface, &fakePopup{}, func(s Selection) { selected = append(selected, s) })
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModePoints)

	f := geojson.NewFeature(orb.Point{-97.74, 30.26})
	f.Properties["id"] = "submitted-2-bbb"
	surface.fire(EventClick, lyrPropertyCircle, PointerEvent{Feature: f})

	require.Len(t, selected, 1)
	assert.Equal(t, "submitted-2-bbb", selected[0].PropertyID)
	assert.Equal(t, orb.Point{-97.73, 30.27}, selected[0].Coordinate)
}

func TestClickHandlersDoNotAccumulate(t *testing.T) {
	surface := newFakeSurface()
	var selected []Selection
	c := newTestComposer(surface, &fakePopup{}, func(s Selection) { selected = append(selected, s) })
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModePoints)
	c.Reconcile()
	c.Reconcile()

	// One surface registration per event regardless of pass count.
	assert.Len(t, surface.handlers[lyrPropertyCircle][EventClick], 1)
	assert.Len(t, surface.handlers[lyrPropertyCircle][EventEnter], 1)

	f := geojson.NewFeature(orb.Point{-97.73, 30.27})
	f.Properties["id"] = "submitted-2-bbb"
	surface.fire(EventClick, lyrPropertyCircle, PointerEvent{Feature: f})
	require.Len(t, selected, 1)
}

func TestStaleLayerStopsDispatching(t *testing.T) {
	surface := newFakeSurface()
	var selected []Selection
	c := newTestComposer(surface, &fakePopup{}, func(s Selection) { selected = append(selected, s) })
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModePoints)

	// Buildings mode drops the property circle layer; a click routed to
	// it afterwards must not select anything.
	c.SetMode(ModeBuildings)
	f := geojson.NewFeature(orb.Point{-97.73, 30.27})
	f.Properties["id"] = "submitted-2-bbb"
	surface.fire(EventClick, lyrPropertyCircle, PointerEvent{Feature: f})
	assert.Empty(t, selected)
}

func TestClickUnknownIDDoesNotSelect(t *testing.T) {
	surface := newFakeSurface()
	var selected []Selection
	c := newTestComposer(surface, &fakePopup{}, func(s Selection) { selected = append(selected, s) })
	c.SetData(testCollection())
	c.SetProperties(testProperties())
	c.SetMode(ModePoints)

	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties["id"] = "submitted-9-zzz"
	surface.fire(EventClick, lyrPropertyCircle, PointerEvent{Feature: f})
	assert.Empty(t, selected)
}

func TestFocus(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.Focus(orb.Point{-97.74, 30.26}, 16)
	assert.Equal(t, 1, surface.easeCount)
	assert.Equal(t, 16.0, surface.easeZoom)
}

func TestRepaintAfterReconcile(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	// SetData already reconciled once.
	assert.Equal(t, 1, surface.repaints)
	c.SetMode(ModeBuildings)
	assert.Equal(t, 2, surface.repaints)
}

func TestBuildingsModeLayers(t *testing.T) {
	surface := newFakeSurface()
	c := newTestComposer(surface, &fakePopup{}, nil)
	c.SetData(testCollection())
	c.SetMode(ModeBuildings)

	for _, name := range []string{lyrBuildingFill, lyrBuildingOutline, lyrBuildingExtrusion, lyrBuildingLabel} {
		assert.True(t, surface.HasLayer(name), "missing %s", name)
	}
	// Extrusion height comes from the resolved render height.
	paint := surface.layers[lyrBuildingExtrusion].Paint
	assert.Equal(t, []any{"get", "renderHeight"}, paint["fill-extrusion-height"])
}

func TestParseLayerMode(t *testing.T) {
	for _, mode := range Modes() {
		parsed, err := ParseLayerMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	_, err := ParseLayerMode("nope")
	assert.Error(t, err)

	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, m.String())
	}
	assert.Equal(t, "all,parcels,points,clusters,heatmap,buildings", strings.Join(names, ","))
}

func TestTypeColorPalette(t *testing.T) {
	seen := map[string]bool{}
	for _, pt := range []dataset.PropertyType{
		dataset.Residential, dataset.Commercial, dataset.Industrial,
		dataset.Agricultural, dataset.Vacant,
	} {
		color := TypeColor(pt)
		assert.False(t, seen[color], "palette color reused for %s", pt)
		seen[color] = true
	}
	assert.Equal(t, catchAllColor, TypeColor(dataset.MixedUse))
	assert.Equal(t, catchAllColor, TypeColor(dataset.PropertyType("mystery")))
}
