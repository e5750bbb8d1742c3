// Package geom normalizes source geometries into geographic degrees.
//
// County GIS exports arrive in a mix of coordinate systems: the shapefile
// layers carry projected Web-Mercator meters while the GeoJSON layers are
// already WGS84 degrees. Everything downstream (the layer composer, the
// map surface, bounding-box tests) assumes degrees, so loaders push every
// geometry through NormalizeGeometry before handing it out.
package geom

import (
	"math"

	"github.com/paulmach/orb"
)

// earthRadius is the spherical Web-Mercator radius in meters (EPSG:3857).
const earthRadius = 6378137.0

// projectedThreshold flags a coordinate component as projected meters.
// Valid degrees never exceed 180 in magnitude, so anything past 10,000
// is definitively not geographic.
const projectedThreshold = 10000.0

// IsProjected reports whether a sample ring looks like projected meters
// rather than geographic degrees. Empty rings are not projected.
func IsProjected(ring []orb.Point) bool {
	for _, p := range ring {
		if math.Abs(p[0]) > projectedThreshold || math.Abs(p[1]) > projectedThreshold {
			return true
		}
	}
	return false
}

// IsProjectedPoint reports whether a single point looks projected.
func IsProjectedPoint(p orb.Point) bool {
	return math.Abs(p[0]) > projectedThreshold || math.Abs(p[1]) > projectedThreshold
}

// toGeographicPoint applies the closed-form inverse spherical-Mercator
// transform. Not idempotent: callers must gate on IsProjected first.
func toGeographicPoint(p orb.Point) orb.Point {
	lng := p[0] / earthRadius * (180 / math.Pi)
	lat := (2*math.Atan(math.Exp(p[1]/earthRadius)) - math.Pi/2) * (180 / math.Pi)
	return orb.Point{lng, lat}
}

// ToGeographic converts a projected geometry to geographic degrees.
// Point, Ring, Polygon and MultiPolygon are transformed; any other
// geometry kind (or a nil geometry) passes through unchanged.
func ToGeographic(g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Point:
		return toGeographicPoint(geom)

	case orb.Ring:
		out := make(orb.Ring, len(geom))
		for i, p := range geom {
			out[i] = toGeographicPoint(p)
		}
		return out

	case orb.Polygon:
		out := make(orb.Polygon, len(geom))
		for i, ring := range geom {
			out[i] = make(orb.Ring, len(ring))
			for j, p := range ring {
				out[i][j] = toGeographicPoint(p)
			}
		}
		return out

	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			out[i] = make(orb.Polygon, len(poly))
			for j, ring := range poly {
				out[i][j] = make(orb.Ring, len(ring))
				for k, p := range ring {
					out[i][j][k] = toGeographicPoint(p)
				}
			}
		}
		return out

	default:
		return g
	}
}

// NormalizeGeometry converts a geometry to geographic degrees only when
// a sample of its coordinates looks projected. Already-geographic input
// is returned unchanged, which makes the call safe to repeat.
func NormalizeGeometry(g orb.Geometry) orb.Geometry {
	if g == nil {
		return g
	}
	if !IsProjected(sampleRing(g)) {
		return g
	}
	return ToGeographic(g)
}

// sampleRing extracts a representative coordinate run from a geometry
// for the projection heuristic. Unrecognized kinds yield an empty sample,
// which reads as already-geographic.
func sampleRing(g orb.Geometry) []orb.Point {
	switch geom := g.(type) {
	case orb.Point:
		return []orb.Point{geom}
	case orb.Ring:
		return geom
	case orb.Polygon:
		if len(geom) > 0 {
			return geom[0]
		}
	case orb.MultiPolygon:
		if len(geom) > 0 && len(geom[0]) > 0 {
			return geom[0][0]
		}
	}
	return nil
}
