package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/atxgeo/parcelmap/internal/geom"
)

// maxSyntheticBuildings caps the fallback footprint generator.
const maxSyntheticBuildings = 500

// defaultExtrusionHeight is the 3D extrusion height in meters applied to
// buildings whose source height is the UnknownHeight sentinel. Rendering
// a small constant keeps the extrusion layer visually continuous instead
// of leaving holes where the extract lacked height data.
const defaultExtrusionHeight = 8.0

// LoadBuildings returns the building-footprint layer. The primary path
// reads the pre-extracted, pre-bounded collection produced by the extract
// tool; when that file is absent or unreadable the loader synthesizes
// footprints inside the Travis County bounding box instead.
func (l *Loader) LoadBuildings() BuildingSet {
	set, err := l.buildingsFromGeoJSON(filepath.Join(l.dataDir, "travis-buildings.json"))
	if err == nil {
		return set
	}
	l.log.Warn("building extract unavailable, synthesizing footprints", "error", err)
	return syntheticBuildings(maxSyntheticBuildings)
}

func (l *Loader) buildingsFromGeoJSON(path string) (BuildingSet, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return BuildingSet{}, err
	}
	var (
		features []BuildingFootprint
		skipped  int
	)
	for i, f := range fc.Features {
		g := geom.NormalizeGeometry(f.Geometry)
		centroid, ok := footprintCentroid(g)
		if !ok {
			skipped++
			continue
		}
		b := BuildingFootprint{
			ID:         "building-" + strconv.Itoa(i),
			Geometry:   g,
			Height:     UnknownHeight,
			Area:       footprintArea(g),
			Centroid:   centroid,
			Confidence: propFloat(f.Properties, "confidence"),
			Tags:       propTags(f.Properties),
		}
		if h := propFloat(f.Properties, "height"); h > 0 {
			b.Height = h
		}
		features = append(features, b)
	}
	if skipped > 0 {
		l.log.Info("skipped malformed building features", "count", skipped)
	}
	return BuildingSet{
		Features:    features,
		TotalCount:  len(fc.Features),
		LoadedCount: len(features),
	}, nil
}

// ExtrusionHeight resolves the rendered 3D height for a footprint,
// substituting the default for the unknown sentinel.
func (b BuildingFootprint) ExtrusionHeight() float64 {
	if b.Height <= 0 {
		return defaultExtrusionHeight
	}
	return b.Height
}

// footprintArea is the absolute planar (shoelace) area of a footprint.
// Never negative; unsupported geometry kinds read as 0.
func footprintArea(g orb.Geometry) float64 {
	switch geometry := g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return math.Abs(planar.Area(geometry))
	default:
		return 0
	}
}

// footprintCentroid is the unweighted mean of the outer-ring vertices,
// matching how the extract tool tests features against the county bounds.
func footprintCentroid(g orb.Geometry) (orb.Point, bool) {
	var pts []orb.Point
	switch geometry := g.(type) {
	case orb.Polygon:
		if len(geometry) > 0 {
			pts = geometry[0]
		}
	case orb.MultiPolygon:
		for _, poly := range geometry {
			if len(poly) > 0 {
				pts = append(pts, poly[0]...)
			}
		}
	}
	if len(pts) == 0 {
		return orb.Point{}, false
	}
	var sx, sy float64
	for _, p := range pts {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(pts))
	return orb.Point{sx / n, sy / n}, true
}

// syntheticBuildings generates small square footprints at uniformly random
// positions inside the Travis County bounding box, with randomized height,
// confidence and tag attributes.
func syntheticBuildings(count int) BuildingSet {
	if count > maxSyntheticBuildings {
		count = maxSyntheticBuildings
	}
	tags := []string{"house", "apartments", "commercial", "garage", "shed"}
	features := make([]BuildingFootprint, 0, count)
	for i := 0; i < count; i++ {
		lng := TravisBounds.Min[0] + rand.Float64()*(TravisBounds.Max[0]-TravisBounds.Min[0])
		lat := TravisBounds.Min[1] + rand.Float64()*(TravisBounds.Max[1]-TravisBounds.Min[1])
		const half = 0.0001 // roughly a 20m square
		poly := orb.Polygon{{
			{lng - half, lat - half}, {lng + half, lat - half},
			{lng + half, lat + half}, {lng - half, lat + half},
			{lng - half, lat - half},
		}}
		height := UnknownHeight
		if rand.Float64() > 0.3 {
			height = 3 + rand.Float64()*30
		}
		features = append(features, BuildingFootprint{
			ID:         fmt.Sprintf("synthetic-%d", i),
			Geometry:   poly,
			Height:     height,
			Confidence: 0.5 + rand.Float64()*0.5,
			Area:       math.Abs(planar.Area(poly)),
			Centroid:   orb.Point{lng, lat},
			Tags:       map[string]string{"building": tags[rand.IntN(len(tags))]},
		})
	}
	return BuildingSet{
		Features:    features,
		TotalCount:  count,
		LoadedCount: count,
		Synthetic:   true,
	}
}

func propFloat(props map[string]interface{}, key string) float64 {
	if v, ok := props[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}

func propTags(props map[string]interface{}) map[string]string {
	var tags map[string]string
	for k, v := range props {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if tags == nil {
			tags = make(map[string]string)
		}
		tags[k] = s
	}
	return tags
}
