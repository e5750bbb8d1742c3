package enrich

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/paulmach/orb"

	"github.com/atxgeo/parcelmap/internal/dataset"
)

// sampleCap bounds how many address points one enrichment pass touches.
const sampleCap = 50

// Sale is one entry in a synthesized sale history.
type Sale struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// EnrichedAddress is an address point with geocoded-or-original
// coordinates and synthesized listing attributes for display.
type EnrichedAddress struct {
	dataset.AddressPoint

	Coordinate   orb.Point            `json:"coordinate"`
	Geocoded     bool                 `json:"geocoded"`
	PropertyType dataset.PropertyType `json:"propertyType"`
	MarketValue  float64              `json:"marketValue"`
	Bedrooms     int                  `json:"bedrooms"`
	Bathrooms    int                  `json:"bathrooms"`
	SaleHistory  []Sale               `json:"saleHistory,omitempty"`
}

// typeWeights drives the weighted-random property-type draw. Values are
// cumulative thresholds over [0, 1).
var typeWeights = []struct {
	threshold float64
	ptype     dataset.PropertyType
}{
	{0.55, dataset.Residential},
	{0.75, dataset.Commercial},
	{0.85, dataset.Vacant},
	{0.93, dataset.Industrial},
	{1.00, dataset.Agricultural},
}

// valueRanges gives the synthesized market-value band per type.
var valueRanges = map[dataset.PropertyType][2]float64{
	dataset.Residential:  {150_000, 900_000},
	dataset.Commercial:   {300_000, 5_000_000},
	dataset.Industrial:   {250_000, 2_000_000},
	dataset.Agricultural: {80_000, 600_000},
	dataset.Vacant:       {20_000, 150_000},
}

// Sampler attaches display-only attributes to a bounded sample of
// address points. It is cosmetic: the rest of the system does not depend
// on its output, and every failure is per-item and non-fatal.
type Sampler struct {
	geocoder *Geocoder
	rng      *rand.Rand
	log      *slog.Logger
}

// NewSampler creates a sampler over a geocoder. A nil geocoder skips
// geocoding entirely and only synthesizes.
func NewSampler(geocoder *Geocoder) *Sampler {
	return &Sampler{
		geocoder: geocoder,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:      slog.Default().With("component", "sampler"),
	}
}

// newSeededSampler pins the random stream for deterministic tests.
func newSeededSampler(geocoder *Geocoder, seed uint64) *Sampler {
	s := NewSampler(geocoder)
	s.rng = rand.New(rand.NewPCG(seed, seed))
	return s
}

// Enrich processes up to sampleCap of the given address points. Each
// point is geocoded when a geocoder is configured; on any geocoding
// failure the point keeps its original coordinate and still gets
// synthesized attributes.
func (s *Sampler) Enrich(ctx context.Context, points []dataset.AddressPoint) []EnrichedAddress {
	if len(points) > sampleCap {
		points = points[:sampleCap]
	}

	out := make([]EnrichedAddress, 0, len(points))
	for _, p := range points {
		if err := ctx.Err(); err != nil {
			s.log.Warn("enrichment pass cancelled", "enriched", len(out), "error", err)
			return out
		}

		e := EnrichedAddress{AddressPoint: p, Coordinate: p.Location}
		if s.geocoder != nil && p.Address != "" {
			match, err := s.geocoder.Forward(ctx, p.Address)
			switch {
			case err == nil:
				e.Coordinate = match.Center
				e.Geocoded = true
			case errors.Is(err, ErrNoMatch):
				// Keep the original coordinate.
			default:
				s.log.Warn("geocoding failed, keeping original coordinate",
					"address", p.Address, "error", err)
			}
		}
		s.synthesize(&e)
		out = append(out, e)
	}
	return out
}

// synthesize fills the cosmetic attributes: weighted-random type, a
// value drawn from that type's band, bed/bath counts for residential,
// and up to three historical sales at a discount from the current value.
func (s *Sampler) synthesize(e *EnrichedAddress) {
	draw := s.rng.Float64()
	for _, w := range typeWeights {
		if draw < w.threshold {
			e.PropertyType = w.ptype
			break
		}
	}

	band := valueRanges[e.PropertyType]
	e.MarketValue = band[0] + s.rng.Float64()*(band[1]-band[0])

	if e.PropertyType == dataset.Residential {
		e.Bedrooms = 1 + s.rng.IntN(5)
		e.Bathrooms = 1 + s.rng.IntN(3)
	}

	sales := s.rng.IntN(4)
	now := time.Now()
	for i := 0; i < sales; i++ {
		yearsBack := 1 + s.rng.IntN(15)
		e.SaleHistory = append(e.SaleHistory, Sale{
			Date:  now.AddDate(-yearsBack, 0, 0),
			Price: e.MarketValue * (0.6 + s.rng.Float64()*0.35),
		})
	}
}
