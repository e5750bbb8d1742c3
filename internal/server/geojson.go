package server

import (
	"github.com/paulmach/orb/geojson"

	"github.com/atxgeo/parcelmap/internal/dataset"
)

// Feature collections served to the map page. These mirror the
// attributes the layer composer puts on its sources so client-side and
// composed rendering read the same properties.

func parcelsFeatureCollection(data *dataset.Collection) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if data == nil {
		return fc
	}
	for _, p := range data.Parcels {
		f := geojson.NewFeature(p.Geometry)
		f.Properties["id"] = p.ID
		f.Properties["address"] = p.Address
		f.Properties["owner"] = p.Owner
		f.Properties["type"] = string(p.PropertyType)
		f.Properties["value"] = p.MarketValue
		f.Properties["yearBuilt"] = p.YearBuilt
		fc.Append(f)
	}
	return fc
}

func addressesFeatureCollection(data *dataset.Collection) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if data == nil {
		return fc
	}
	for _, a := range data.Addresses {
		f := geojson.NewFeature(a.Location)
		f.Properties["address"] = a.Address
		f.Properties["city"] = a.City
		fc.Append(f)
	}
	return fc
}

func buildingsFeatureCollection(data *dataset.Collection) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if data == nil {
		return fc
	}
	for _, b := range data.Buildings.Features {
		f := geojson.NewFeature(b.Geometry)
		f.Properties["id"] = b.ID
		f.Properties["height"] = b.Height
		f.Properties["renderHeight"] = b.ExtrusionHeight()
		f.Properties["area"] = b.Area
		fc.Append(f)
	}
	return fc
}
