package geom

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Austin city center in EPSG:3857 meters and WGS84 degrees.
var (
	austinMercator = orb.Point{-10880571.0, 3537942.0}
	austinLng      = -97.7431
	austinLat      = 30.2672
)

func TestIsProjected(t *testing.T) {
	tests := []struct {
		name string
		ring []orb.Point
		want bool
	}{
		{"empty", nil, false},
		{"geographic", []orb.Point{{-97.74, 30.26}, {-97.73, 30.27}}, false},
		{"projected", []orb.Point{austinMercator}, true},
		{"mixed first geographic", []orb.Point{{-97.74, 30.26}, austinMercator}, true},
		{"boundary value", []orb.Point{{10000, 0}}, false},
		{"just past boundary", []orb.Point{{10000.1, 0}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProjected(tt.ring))
		})
	}
}

func TestToGeographicPoint(t *testing.T) {
	got := ToGeographic(austinMercator)
	p, ok := got.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, austinLng, p[0], 0.01)
	assert.InDelta(t, austinLat, p[1], 0.01)
}

func TestToGeographicRangeInvariant(t *testing.T) {
	// Any large-magnitude input must land inside valid degree range.
	points := []orb.Point{
		{-20037508, 20037508},
		{20037508, -20037508},
		{1e7, 1e6},
		{-12345.6, 54321.0},
	}
	for _, in := range points {
		out := ToGeographic(in).(orb.Point)
		assert.GreaterOrEqual(t, out[0], -180.0)
		assert.LessOrEqual(t, out[0], 180.0)
		assert.GreaterOrEqual(t, out[1], -90.0)
		assert.LessOrEqual(t, out[1], 90.0)
	}
}

func TestToGeographicPolygon(t *testing.T) {
	poly := orb.Polygon{{
		austinMercator,
		{austinMercator[0] + 100, austinMercator[1]},
		{austinMercator[0] + 100, austinMercator[1] + 100},
		austinMercator,
	}}
	out := ToGeographic(poly).(orb.Polygon)
	require.Len(t, out, 1)
	require.Len(t, out[0], 4)
	for _, p := range out[0] {
		assert.InDelta(t, austinLng, p[0], 0.01)
		assert.InDelta(t, austinLat, p[1], 0.01)
	}
	// Original must not be mutated.
	assert.Equal(t, austinMercator, poly[0][0])
}

func TestToGeographicMultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{{{austinMercator, austinMercator, austinMercator, austinMercator}}}
	out := ToGeographic(mp).(orb.MultiPolygon)
	require.Len(t, out, 1)
	assert.InDelta(t, austinLat, out[0][0][0][1], 0.01)
}

func TestToGeographicPassThrough(t *testing.T) {
	// Unrecognized geometry kinds are returned unmodified.
	ls := orb.LineString{{1, 2}, {3, 4}}
	assert.Equal(t, orb.Geometry(ls), ToGeographic(ls))

	var empty orb.Polygon
	assert.Equal(t, orb.Geometry(empty), ToGeographic(empty))
}

func TestNormalizeGeometry(t *testing.T) {
	t.Run("projected input converted", func(t *testing.T) {
		out := NormalizeGeometry(austinMercator).(orb.Point)
		assert.InDelta(t, austinLat, out[1], 0.01)
	})

	t.Run("geographic input untouched", func(t *testing.T) {
		in := orb.Point{austinLng, austinLat}
		out := NormalizeGeometry(in).(orb.Point)
		assert.Equal(t, in, out)
	})

	t.Run("repeat application is stable", func(t *testing.T) {
		once := NormalizeGeometry(austinMercator)
		twice := NormalizeGeometry(once)
		assert.Equal(t, once, twice)
	})

	t.Run("nil passes through", func(t *testing.T) {
		assert.Nil(t, NormalizeGeometry(nil))
	})
}
