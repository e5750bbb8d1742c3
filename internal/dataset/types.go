// Package dataset loads and normalizes the geospatial sources behind the
// parcel map: parcel and address layers from paired .shp/.dbf files with
// GeoJSON fallbacks, administrative boundaries, and the pre-extracted
// building-footprint collection. Every geometry leaving this package is in
// geographic degrees.
package dataset

import (
	"strings"

	"github.com/paulmach/orb"
)

// PropertyType classifies a parcel's land use.
type PropertyType string

const (
	Residential  PropertyType = "residential"
	Commercial   PropertyType = "commercial"
	Industrial   PropertyType = "industrial"
	Agricultural PropertyType = "agricultural"
	Vacant       PropertyType = "vacant"
	MixedUse     PropertyType = "mixed-use"
)

// classifyRules maps land-use keywords to a property type. Order matters:
// the first matching rule wins, so "light industrial park" classifies as
// industrial even though "park" alone would read agricultural. The keyword
// lists are heuristic, tuned against Travis CAD descriptions.
var classifyRules = []struct {
	keywords []string
	ptype    PropertyType
}{
	{[]string{"residential", "single family", "duplex", "condo", "townhome", "apartment"}, Residential},
	{[]string{"industrial", "warehouse", "manufacturing"}, Industrial},
	{[]string{"commercial", "retail", "office", "business"}, Commercial},
	{[]string{"agricultural", "farm", "ranch", "crop"}, Agricultural},
	{[]string{"vacant", "undeveloped", "unimproved"}, Vacant},
	{[]string{"mixed"}, MixedUse},
}

// ClassifyPropertyType maps a free-form land-use description to a
// PropertyType. Unrecognized descriptions default to residential, which
// is the dominant class in the county roll.
func ClassifyPropertyType(desc string) PropertyType {
	lower := strings.ToLower(desc)
	for _, rule := range classifyRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.ptype
			}
		}
	}
	return Residential
}

// Parcel is a normalized land-parcel record.
type Parcel struct {
	ID               string       `json:"id"`
	Address          string       `json:"address"`
	Owner            string       `json:"owner,omitempty"`
	MarketValue      float64      `json:"marketValue"`
	LandValue        float64      `json:"landValue"`
	ImprovementValue float64      `json:"improvementValue"`
	YearBuilt        int          `json:"yearBuilt,omitempty"`
	Area             float64      `json:"area,omitempty"`
	Bedrooms         int          `json:"bedrooms,omitempty"`
	Bathrooms        float64      `json:"bathrooms,omitempty"`
	PropertyType     PropertyType `json:"propertyType"`
	Geometry         orb.Polygon  `json:"-"`
}

// AddressPoint is a geocoded situs address.
type AddressPoint struct {
	Address  string    `json:"address"`
	City     string    `json:"city,omitempty"`
	State    string    `json:"state,omitempty"`
	Zip      string    `json:"zip,omitempty"`
	Location orb.Point `json:"-"`
}

// Boundary is an administrative polygon (county or state outline).
type Boundary struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Geometry orb.Geometry `json:"-"`
}

// UnknownHeight is the sentinel for building footprints without height data.
const UnknownHeight = -1.0

// BuildingFootprint is a structure outline with derived attributes.
type BuildingFootprint struct {
	ID         string            `json:"id"`
	Geometry   orb.Geometry      `json:"-"`
	Height     float64           `json:"height"`
	Confidence float64           `json:"confidence,omitempty"`
	Area       float64           `json:"area"`
	Centroid   orb.Point         `json:"centroid"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// BuildingSet is the result of a building-footprint load.
type BuildingSet struct {
	Features    []BuildingFootprint
	TotalCount  int
	LoadedCount int
	Synthetic   bool
}

// Collection holds every normalized dataset for a session. Built once at
// startup and treated as immutable afterward.
type Collection struct {
	Parcels   []Parcel
	Addresses []AddressPoint
	Counties  []Boundary
	State     Boundary
	Buildings BuildingSet
}

// TravisBounds is the Travis County bounding box used for the building
// extract and for synthetic footprint placement.
var TravisBounds = orb.Bound{
	Min: orb.Point{-98.2, 30.0},
	Max: orb.Point{-97.4, 30.8},
}
