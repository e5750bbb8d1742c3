package composer

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/store"
)

// Source and layer names. Only the composer creates these; the owned-set
// bookkeeping in Reconcile is the sole removal authority.
const (
	srcState            = "state-boundary"
	srcCounties         = "county-boundaries"
	srcParcels          = "parcels"
	srcAddresses        = "address-points"
	srcBuildings        = "building-footprints"
	srcProperties       = "submitted-properties"
	srcPropertyPolygons = "submitted-property-polygons"
	srcClusters         = "property-clusters"
	srcHeatmap          = "property-heatmap"

	lyrStateLine         = "state-boundary-line"
	lyrCountyLine        = "county-boundaries-line"
	lyrParcelFill        = "parcels-fill"
	lyrParcelOutline     = "parcels-outline"
	lyrAddressCircle     = "address-points-circle"
	lyrBuildingFill      = "buildings-fill"
	lyrBuildingOutline   = "buildings-outline"
	lyrBuildingExtrusion = "buildings-extrusion"
	lyrBuildingLabel     = "buildings-label"
	lyrPropertyCircle    = "submitted-properties-circle"
	lyrPropertyFill      = "submitted-property-polygons-fill"
	lyrClusterCircle     = "property-clusters-circle"
	lyrClusterCount      = "property-clusters-count"
	lyrClusterPoint      = "property-clusters-point"
	lyrHeatmap           = "property-heatmap"
	lyrHeatmapPoint      = "property-heatmap-point"
)

// Clustered-source tuning.
const (
	clusterRadius  = 50
	clusterMaxZoom = 14
)

// typeColors is the fixed palette shared across every layer kind so a
// property type reads the same everywhere.
var typeColors = map[dataset.PropertyType]string{
	dataset.Residential:  "#4caf50",
	dataset.Commercial:   "#2196f3",
	dataset.Industrial:   "#ff5722",
	dataset.Agricultural: "#cddc39",
	dataset.Vacant:       "#9c27b0",
}

// catchAllColor styles unrecognized or mixed-use types.
const catchAllColor = "#9e9e9e"

// TypeColor returns the palette color for a property type.
func TypeColor(t dataset.PropertyType) string {
	if c, ok := typeColors[t]; ok {
		return c
	}
	return catchAllColor
}

// ----- background builders -----

func (c *Composer) buildStateBoundary() {
	if c.data.State.Geometry == nil {
		return
	}
	f := geojson.NewFeature(c.data.State.Geometry)
	f.Properties["name"] = c.data.State.Name
	fc := geojson.NewFeatureCollection()
	fc.Append(f)

	if !c.addSource(srcState, SourceSpec{Data: fc}) {
		return
	}
	c.addLayer(LayerSpec{
		ID: lyrStateLine, Type: "line", Source: srcState,
		Paint: map[string]any{"line-color": "#607d8b", "line-width": 2.0},
	})
}

func (c *Composer) buildCounties() {
	if len(c.data.Counties) == 0 {
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, county := range c.data.Counties {
		f := geojson.NewFeature(county.Geometry)
		f.Properties["id"] = county.ID
		f.Properties["name"] = county.Name
		fc.Append(f)
	}
	if !c.addSource(srcCounties, SourceSpec{Data: fc}) {
		return
	}
	c.addLayer(LayerSpec{
		ID: lyrCountyLine, Type: "line", Source: srcCounties,
		Paint: map[string]any{"line-color": "#90a4ae", "line-width": 1.0, "line-dasharray": []float64{2, 2}},
	})
}

func (c *Composer) buildAddresses() {
	if len(c.data.Addresses) == 0 {
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, a := range c.data.Addresses {
		f := geojson.NewFeature(a.Location)
		f.Properties["address"] = a.Address
		f.Properties["city"] = a.City
		fc.Append(f)
	}
	if !c.addSource(srcAddresses, SourceSpec{Data: fc}) {
		return
	}
	if !c.addLayer(LayerSpec{
		ID: lyrAddressCircle, Type: "circle", Source: srcAddresses,
		Paint: map[string]any{"circle-radius": 2.5, "circle-color": "#78909c", "circle-opacity": 0.6},
	}) {
		return
	}
	c.wireInteractions(lyrAddressCircle, addressPopupHTML, nil)
}

// ----- parcel builders -----

func (c *Composer) buildParcels() {
	if len(c.data.Parcels) == 0 {
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, p := range c.data.Parcels {
		f := geojson.NewFeature(p.Geometry)
		f.Properties["id"] = p.ID
		f.Properties["address"] = p.Address
		f.Properties["owner"] = p.Owner
		f.Properties["type"] = string(p.PropertyType)
		f.Properties["value"] = p.MarketValue
		f.Properties["color"] = TypeColor(p.PropertyType)
		fc.Append(f)
	}
	if !c.addSource(srcParcels, SourceSpec{Data: fc}) {
		return
	}
	if !c.addLayer(LayerSpec{
		ID: lyrParcelFill, Type: "fill", Source: srcParcels,
		Paint: map[string]any{"fill-color": []any{"get", "color"}, "fill-opacity": 0.45},
	}) {
		return
	}
	c.addLayer(LayerSpec{
		ID: lyrParcelOutline, Type: "line", Source: srcParcels,
		Paint: map[string]any{"line-color": "#37474f", "line-width": 0.5},
	})
	c.wireInteractions(lyrParcelFill, propertyPopupHTML, func(f *geojson.Feature) (Selection, bool) {
		id := f.Properties.MustString("id", "")
		if id == "" {
			return Selection{}, false
		}
		return Selection{ParcelID: id, Coordinate: f.Geometry.Bound().Center()}, true
	})
}

// ----- building builders -----

func (c *Composer) buildBuildings() {
	if len(c.data.Buildings.Features) == 0 {
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, b := range c.data.Buildings.Features {
		f := geojson.NewFeature(b.Geometry)
		f.Properties["id"] = b.ID
		f.Properties["height"] = b.Height
		f.Properties["renderHeight"] = b.ExtrusionHeight()
		f.Properties["area"] = b.Area
		f.Properties["confidence"] = b.Confidence
		if tag, ok := b.Tags["building"]; ok {
			f.Properties["tag"] = tag
		}
		fc.Append(f)
	}
	if !c.addSource(srcBuildings, SourceSpec{Data: fc}) {
		return
	}
	if !c.addLayer(LayerSpec{
		ID: lyrBuildingFill, Type: "fill", Source: srcBuildings,
		Paint: map[string]any{"fill-color": "#8d6e63", "fill-opacity": 0.5},
	}) {
		return
	}
	c.addLayer(LayerSpec{
		ID: lyrBuildingOutline, Type: "line", Source: srcBuildings,
		Paint: map[string]any{"line-color": "#5d4037", "line-width": 0.5},
	})
	c.addLayer(LayerSpec{
		ID: lyrBuildingExtrusion, Type: "fill-extrusion", Source: srcBuildings,
		Paint: map[string]any{
			"fill-extrusion-color":   "#8d6e63",
			"fill-extrusion-height":  []any{"get", "renderHeight"},
			"fill-extrusion-opacity": 0.7,
		},
	})
	c.addLayer(LayerSpec{
		ID: lyrBuildingLabel, Type: "symbol", Source: srcBuildings,
		Layout: map[string]any{"text-field": []any{"get", "tag"}, "text-size": 10.0},
	})
	c.wireInteractions(lyrBuildingFill, buildingPopupHTML, func(f *geojson.Feature) (Selection, bool) {
		id := f.Properties.MustString("id", "")
		if id == "" {
			return Selection{}, false
		}
		return Selection{BuildingID: id, Coordinate: f.Geometry.Bound().Center()}, true
	})
}

// ----- submitted-property builders -----

// propertyFeatures splits the submitted list by geometry kind: listings
// that carry a parcel polygon render as fills, the rest as circles.
// When nothing has been submitted the demo point set stands in for the
// point collection.
func (c *Composer) propertyFeatures() (points, polygons *geojson.FeatureCollection) {
	points = geojson.NewFeatureCollection()
	polygons = geojson.NewFeatureCollection()
	for _, p := range c.properties {
		if len(p.Polygon) > 0 {
			polygons.Append(submissionFeature(p.Polygon, p))
		} else {
			points.Append(submissionFeature(orb.Point{p.Coordinate.Lng, p.Coordinate.Lat}, p))
		}
	}
	if len(points.Features) == 0 && len(polygons.Features) == 0 {
		appendDemoPoints(points)
	}
	return points, polygons
}

// propertyPoints renders every submission as a point for the clustered
// and heatmap foregrounds. Polygon listings contribute their coordinate
// so they still count toward clustering and heat weighting.
func (c *Composer) propertyPoints() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range c.properties {
		fc.Append(submissionFeature(orb.Point{p.Coordinate.Lng, p.Coordinate.Lat}, p))
	}
	if len(fc.Features) == 0 {
		appendDemoPoints(fc)
	}
	return fc
}

func submissionFeature(g orb.Geometry, p store.Property) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["id"] = p.ID
	f.Properties["address"] = p.Address
	f.Properties["type"] = string(p.PropertyType)
	f.Properties["value"] = p.MarketValue
	f.Properties["status"] = string(p.Status)
	f.Properties["color"] = TypeColor(p.PropertyType)
	return f
}

func appendDemoPoints(fc *geojson.FeatureCollection) {
	for _, d := range dataset.DemoPoints() {
		f := geojson.NewFeature(d.Location)
		f.Properties["address"] = d.Address
		f.Properties["type"] = string(dataset.Residential)
		f.Properties["demo"] = true
		f.Properties["color"] = TypeColor(dataset.Residential)
		fc.Append(f)
	}
}

func (c *Composer) buildPropertyMarkers() {
	points, polygons := c.propertyFeatures()

	if len(polygons.Features) > 0 {
		if c.addSource(srcPropertyPolygons, SourceSpec{Data: polygons}) {
			if c.addLayer(LayerSpec{
				ID: lyrPropertyFill, Type: "fill", Source: srcPropertyPolygons,
				Paint: map[string]any{"fill-color": []any{"get", "color"}, "fill-opacity": 0.6},
			}) {
				c.wireInteractions(lyrPropertyFill, propertyPopupHTML, c.resolveProperty)
			}
		}
	}

	if len(points.Features) == 0 {
		return
	}
	if !c.addSource(srcProperties, SourceSpec{Data: points}) {
		return
	}
	if !c.addLayer(LayerSpec{
		ID: lyrPropertyCircle, Type: "circle", Source: srcProperties,
		Paint: map[string]any{
			"circle-radius":       7.0,
			"circle-color":        []any{"get", "color"},
			"circle-stroke-color": "#ffffff",
			"circle-stroke-width": 1.5,
		},
	}) {
		return
	}
	c.wireInteractions(lyrPropertyCircle, propertyPopupHTML, c.resolveProperty)
}

func (c *Composer) buildClusters() {
	points := c.propertyPoints()
	if len(points.Features) == 0 {
		return
	}
	if !c.addSource(srcClusters, SourceSpec{
		Data:           points,
		Cluster:        true,
		ClusterRadius:  clusterRadius,
		ClusterMaxZoom: clusterMaxZoom,
	}) {
		return
	}
	if !c.addLayer(LayerSpec{
		ID: lyrClusterCircle, Type: "circle", Source: srcClusters,
		Filter: []any{"has", "point_count"},
		Paint: map[string]any{
			"circle-color":  "#1976d2",
			"circle-radius": []any{"step", []any{"get", "point_count"}, 14.0, 10, 20.0, 50, 26.0},
		},
	}) {
		return
	}
	c.addLayer(LayerSpec{
		ID: lyrClusterCount, Type: "symbol", Source: srcClusters,
		Filter: []any{"has", "point_count"},
		Layout: map[string]any{"text-field": []any{"get", "point_count_abbreviated"}, "text-size": 12.0},
	})
	c.addLayer(LayerSpec{
		ID: lyrClusterPoint, Type: "circle", Source: srcClusters,
		Filter: []any{"!", []any{"has", "point_count"}},
		Paint:  map[string]any{"circle-radius": 6.0, "circle-color": []any{"get", "color"}},
	})

	c.wireOn(EventClick, lyrClusterCircle, c.handleClusterClick)
	c.wireInteractions(lyrClusterPoint, propertyPopupHTML, c.resolveProperty)
}

// handleClusterClick eases the viewport to a cluster's expansion zoom so
// the cluster splits into its constituents.
func (c *Composer) handleClusterClick(ev PointerEvent) {
	if ev.Feature == nil {
		return
	}
	clusterID := ev.Feature.Properties.MustInt("cluster_id", -1)
	if clusterID < 0 {
		return
	}
	zoom, err := c.surface.ClusterExpansionZoom(srcClusters, clusterID)
	if err != nil {
		c.log.Warn("cluster expansion zoom failed", "error", err)
		zoom = c.surface.Zoom() + 1
	}
	if current := c.surface.Zoom(); zoom <= current {
		zoom = current + 1
	}
	center := ev.LngLat
	if pt, ok := ev.Feature.Geometry.(orb.Point); ok {
		center = pt
	}
	c.surface.EaseTo(center, zoom, 500*time.Millisecond)
}

func (c *Composer) buildHeatmap() {
	points := c.propertyPoints()
	if len(points.Features) == 0 {
		return
	}
	attachHeatmapWeights(points)

	if !c.addSource(srcHeatmap, SourceSpec{Data: points}) {
		return
	}
	if !c.addLayer(LayerSpec{
		ID: lyrHeatmap, Type: "heatmap", Source: srcHeatmap,
		Paint: map[string]any{
			"heatmap-weight":    []any{"get", "weight"},
			"heatmap-intensity": 1.2,
			"heatmap-radius":    30.0,
		},
	}) {
		return
	}
	// Invisible proxy circles keep hover and click working over the
	// heatmap, which is not itself queryable per feature.
	if !c.addLayer(LayerSpec{
		ID: lyrHeatmapPoint, Type: "circle", Source: srcHeatmap,
		Paint: map[string]any{"circle-radius": 8.0, "circle-opacity": 0.0},
	}) {
		return
	}
	c.wireInteractions(lyrHeatmapPoint, propertyPopupHTML, c.resolveProperty)
}

// attachHeatmapWeights normalizes market value into a 0-1 weight. Points
// without a value get the fixed default 0.5.
func attachHeatmapWeights(fc *geojson.FeatureCollection) {
	var max float64
	for _, f := range fc.Features {
		if v := f.Properties.MustFloat64("value", 0); v > max {
			max = v
		}
	}
	for _, f := range fc.Features {
		v := f.Properties.MustFloat64("value", 0)
		if v <= 0 || max <= 0 {
			f.Properties["weight"] = 0.5
			continue
		}
		f.Properties["weight"] = v / max
	}
}

// ----- interaction wiring -----

// wireInteractions registers the standard hover/click set on a layer:
// pointer-enter shows the reused popup and a pointer cursor, leave
// removes both, click resolves the feature to a domain entity.
func (c *Composer) wireInteractions(layer string, render func(*geojson.Feature) string, resolve func(*geojson.Feature) (Selection, bool)) {
	c.wireOn(EventEnter, layer, func(ev PointerEvent) {
		if ev.Feature == nil {
			return
		}
		c.surface.SetCursor("pointer")
		if c.popup != nil {
			c.popup.Show(ev.LngLat, render(ev.Feature))
		}
	})
	c.wireOn(EventLeave, layer, func(ev PointerEvent) {
		c.surface.SetCursor("")
		if c.popup != nil {
			c.popup.Remove()
		}
	})
	if resolve == nil {
		return
	}
	c.wireOn(EventClick, layer, func(ev PointerEvent) {
		if ev.Feature == nil || c.onSelect == nil {
			return
		}
		if sel, ok := resolve(ev.Feature); ok {
			c.onSelect(sel)
		}
	})
}

// resolveProperty maps a clicked feature back to the submitted property
// it was built from. Demo fallback points carry no id and do not resolve.
func (c *Composer) resolveProperty(f *geojson.Feature) (Selection, bool) {
	id := f.Properties.MustString("id", "")
	if id == "" {
		return Selection{}, false
	}
	for _, p := range c.properties {
		if p.ID == id {
			return Selection{
				PropertyID: id,
				Coordinate: orb.Point{p.Coordinate.Lng, p.Coordinate.Lat},
			}, true
		}
	}
	return Selection{}, false
}

// ----- popup rendering -----

func propertyPopupHTML(f *geojson.Feature) string {
	address := f.Properties.MustString("address", "Unknown Address")
	ptype := f.Properties.MustString("type", "")
	value := f.Properties.MustFloat64("value", 0)
	owner := f.Properties.MustString("owner", "")

	html := fmt.Sprintf(`<div class="map-popup"><strong>%s</strong>`, address)
	if ptype != "" {
		html += fmt.Sprintf(`<br><span class="popup-type">%s</span>`, ptype)
	}
	if value > 0 {
		html += fmt.Sprintf(`<br>$%.0f`, value)
	}
	if owner != "" {
		html += fmt.Sprintf(`<br><span class="popup-owner">%s</span>`, owner)
	}
	return html + `</div>`
}

func buildingPopupHTML(f *geojson.Feature) string {
	html := `<div class="map-popup"><strong>Building</strong>`
	if tag := f.Properties.MustString("tag", ""); tag != "" {
		html += fmt.Sprintf(`<br>%s`, tag)
	}
	if h := f.Properties.MustFloat64("height", dataset.UnknownHeight); h > 0 {
		html += fmt.Sprintf(`<br>Height: %.1f m`, h)
	}
	if a := f.Properties.MustFloat64("area", 0); a > 0 {
		html += fmt.Sprintf(`<br>Area: %g`, a)
	}
	return html + `</div>`
}

func addressPopupHTML(f *geojson.Feature) string {
	address := f.Properties.MustString("address", "Unknown Address")
	city := f.Properties.MustString("city", "")
	if city != "" {
		return fmt.Sprintf(`<div class="map-popup">%s<br>%s</div>`, address, city)
	}
	return fmt.Sprintf(`<div class="map-popup">%s</div>`, address)
}
