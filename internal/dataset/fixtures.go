package dataset

import "github.com/paulmach/orb"

// Fallback fixtures, used whenever a dataset cannot be loaded from disk.
// A handful of hand-placed records around central Austin keeps the map
// usable without any data files present.

func fixtureParcels() []Parcel {
	ring := func(lng, lat float64) orb.Polygon {
		const d = 0.0008
		return orb.Polygon{{
			{lng, lat}, {lng + d, lat}, {lng + d, lat + d}, {lng, lat + d}, {lng, lat},
		}}
	}
	return []Parcel{
		{
			ID: "fixture-1", Address: "1100 Congress Ave", Owner: "State of Texas",
			MarketValue: 1250000, LandValue: 800000, ImprovementValue: 450000,
			YearBuilt: 1888, Area: 9200, PropertyType: Commercial,
			Geometry: ring(-97.7403, 30.2747),
		},
		{
			ID: "fixture-2", Address: "2400 E 6th St", Owner: "Hargrove Family Trust",
			MarketValue: 685000, LandValue: 410000, ImprovementValue: 275000,
			YearBuilt: 1948, Area: 6400, Bedrooms: 3, Bathrooms: 2,
			PropertyType: Residential, Geometry: ring(-97.7167, 30.2597),
		},
		{
			ID: "fixture-3", Address: "5001 Burleson Rd", Owner: "Capitol Logistics LLC",
			MarketValue: 2100000, LandValue: 950000, ImprovementValue: 1150000,
			YearBuilt: 1996, Area: 48000, PropertyType: Industrial,
			Geometry: ring(-97.7094, 30.2091),
		},
		{
			ID: "fixture-4", Address: "9800 FM 969", Owner: "Colorado River Ranch LP",
			MarketValue: 540000, LandValue: 540000, ImprovementValue: 0,
			Area: 870000, PropertyType: Agricultural,
			Geometry: ring(-97.6212, 30.2889),
		},
		{
			ID: "fixture-5", Address: "Unknown Address", Owner: "",
			MarketValue: 95000, LandValue: 95000, ImprovementValue: 0,
			Area: 7100, PropertyType: Vacant,
			Geometry: ring(-97.7689, 30.3412),
		},
	}
}

func fixtureAddresses() []AddressPoint {
	return []AddressPoint{
		{Address: "1100 Congress Ave", City: "Austin", State: "TX", Zip: "78701", Location: orb.Point{-97.7403, 30.2747}},
		{Address: "2400 E 6th St", City: "Austin", State: "TX", Zip: "78702", Location: orb.Point{-97.7167, 30.2597}},
		{Address: "1600 Barton Springs Rd", City: "Austin", State: "TX", Zip: "78704", Location: orb.Point{-97.7606, 30.2602}},
		{Address: "7500 N Lamar Blvd", City: "Austin", State: "TX", Zip: "78752", Location: orb.Point{-97.7122, 30.3418}},
		{Address: "3800 S Congress Ave", City: "Austin", State: "TX", Zip: "78704", Location: orb.Point{-97.7535, 30.2275}},
	}
}

func fixtureCounties() []Boundary {
	travis := orb.Polygon{{
		{-98.2, 30.0}, {-97.4, 30.0}, {-97.4, 30.8}, {-98.2, 30.8}, {-98.2, 30.0},
	}}
	williamson := orb.Polygon{{
		{-98.05, 30.5}, {-97.25, 30.5}, {-97.25, 30.9}, {-98.05, 30.9}, {-98.05, 30.5},
	}}
	return []Boundary{
		{ID: "48453", Name: "Travis", Geometry: travis},
		{ID: "48491", Name: "Williamson", Geometry: williamson},
	}
}

func fixtureState() Boundary {
	// Coarse Texas outline, enough for a background silhouette.
	outline := orb.Polygon{{
		{-106.65, 31.90}, {-103.06, 31.90}, {-103.06, 36.50}, {-100.00, 36.50},
		{-100.00, 34.56}, {-96.92, 33.95}, {-94.04, 33.55}, {-93.51, 30.28},
		{-96.77, 28.42}, {-97.16, 26.07}, {-99.21, 26.41}, {-100.96, 29.35},
		{-104.98, 30.64}, {-106.65, 31.90},
	}}
	return Boundary{ID: "48", Name: "Texas", Geometry: outline}
}

// DemoPoints are shown as the points-layer fallback when no user
// submissions exist yet.
func DemoPoints() []AddressPoint {
	return fixtureAddresses()
}
