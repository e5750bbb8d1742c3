package enrich

import (
	"context"
	"fmt"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atxgeo/parcelmap/internal/dataset"
)

func samplePoints(n int) []dataset.AddressPoint {
	points := make([]dataset.AddressPoint, n)
	for i := range points {
		points[i] = dataset.AddressPoint{
			Address:  fmt.Sprintf("%d Guadalupe St", 100+i),
			City:     "Austin",
			Location: orb.Point{-97.74 + float64(i)*0.0001, 30.27},
		}
	}
	return points
}

func TestEnrichCapsSample(t *testing.T) {
	s := newSeededSampler(nil, 1)
	out := s.Enrich(context.Background(), samplePoints(120))
	assert.Len(t, out, sampleCap)
	// Original order is preserved up to the cap.
	assert.Equal(t, "100 Guadalupe St", out[0].Address)
	assert.Equal(t, "149 Guadalupe St", out[49].Address)
}

func TestEnrichWithoutGeocoder(t *testing.T) {
	s := newSeededSampler(nil, 2)
	points := samplePoints(3)
	out := s.Enrich(context.Background(), points)

	require.Len(t, out, 3)
	for i, e := range out {
		assert.Equal(t, points[i].Location, e.Coordinate)
		assert.False(t, e.Geocoded)
	}
}

func TestEnrichUsesGeocodedCenter(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern, austinResponder())

	s := newSeededSampler(g, 3)
	out := s.Enrich(context.Background(), samplePoints(2))

	require.Len(t, out, 2)
	for _, e := range out {
		assert.True(t, e.Geocoded)
		assert.Equal(t, orb.Point{-97.7403, 30.2747}, e.Coordinate)
	}
}

func TestEnrichGeocodeFailureIsPerItem(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		httpmock.NewStringResponder(503, `unavailable`))

	s := newSeededSampler(g, 4)
	points := samplePoints(5)
	out := s.Enrich(context.Background(), points)

	// Every item still came through with its original coordinate and
	// synthesized attributes.
	require.Len(t, out, 5)
	for i, e := range out {
		assert.Equal(t, points[i].Location, e.Coordinate)
		assert.False(t, e.Geocoded)
		assert.NotEmpty(t, e.PropertyType)
		assert.Positive(t, e.MarketValue)
	}
}

func TestEnrichNoMatchKeepsOriginal(t *testing.T) {
	g := newTestGeocoder(t)
	httpmock.RegisterResponder("GET", geocodeURLPattern,
		httpmock.NewStringResponder(200, `{"features": []}`))

	s := newSeededSampler(g, 5)
	points := samplePoints(1)
	out := s.Enrich(context.Background(), points)

	require.Len(t, out, 1)
	assert.Equal(t, points[0].Location, out[0].Coordinate)
	assert.False(t, out[0].Geocoded)
}

func TestSynthesizedAttributesWithinBands(t *testing.T) {
	s := newSeededSampler(nil, 6)
	out := s.Enrich(context.Background(), samplePoints(sampleCap))

	for _, e := range out {
		band, ok := valueRanges[e.PropertyType]
		require.True(t, ok, "unexpected type %q", e.PropertyType)
		assert.GreaterOrEqual(t, e.MarketValue, band[0])
		assert.Less(t, e.MarketValue, band[1])

		if e.PropertyType == dataset.Residential {
			assert.GreaterOrEqual(t, e.Bedrooms, 1)
			assert.LessOrEqual(t, e.Bedrooms, 5)
			assert.GreaterOrEqual(t, e.Bathrooms, 1)
			assert.LessOrEqual(t, e.Bathrooms, 3)
		} else {
			assert.Zero(t, e.Bedrooms)
			assert.Zero(t, e.Bathrooms)
		}

		assert.LessOrEqual(t, len(e.SaleHistory), 3)
		for _, sale := range e.SaleHistory {
			assert.Less(t, sale.Price, e.MarketValue)
			assert.Positive(t, sale.Price)
		}
	}
}

func TestSynthesizedTypeDistribution(t *testing.T) {
	s := newSeededSampler(nil, 7)
	counts := map[dataset.PropertyType]int{}
	for i := 0; i < 40; i++ {
		out := s.Enrich(context.Background(), samplePoints(sampleCap))
		for _, e := range out {
			counts[e.PropertyType]++
		}
	}
	// 2000 draws: residential dominates at weight 0.55, and all five
	// weighted types appear.
	assert.Greater(t, counts[dataset.Residential], counts[dataset.Commercial])
	for _, pt := range []dataset.PropertyType{
		dataset.Residential, dataset.Commercial, dataset.Industrial,
		dataset.Agricultural, dataset.Vacant,
	} {
		assert.Positive(t, counts[pt], "type %q never drawn", pt)
	}
}

func TestEnrichCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newSeededSampler(nil, 8)
	out := s.Enrich(ctx, samplePoints(10))
	assert.Empty(t, out)
}
