package dataset

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/atxgeo/parcelmap/internal/geom"
)

// maxDatasetRecords caps parcel and address ingestion for responsiveness.
// The cap is a truncation, not a sample: the first N records in source
// order are kept.
const maxDatasetRecords = 1000

// Loader reads the county datasets from a data directory. Each dataset
// kind tries its shapefile first, then a GeoJSON of the same base name,
// then the embedded fixture. Load methods never fail: a bad or missing
// dataset logs and substitutes its fallback.
type Loader struct {
	dataDir    string
	maxRecords int
	log        *slog.Logger
}

// NewLoader creates a loader rooted at dataDir.
func NewLoader(dataDir string) *Loader {
	return &Loader{
		dataDir:    dataDir,
		maxRecords: maxDatasetRecords,
		log:        slog.Default().With("component", "dataset"),
	}
}

// LoadAll fetches every dataset concurrently and joins. Individual
// failures are isolated: one bad dataset never affects the others. A
// cancelled context skips whichever loads have not started yet and
// returns the collection as-is.
func (l *Loader) LoadAll(ctx context.Context) *Collection {
	c := &Collection{}
	var wg sync.WaitGroup
	load := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			fn()
		}()
	}
	load(func() { c.Parcels = l.LoadParcels() })
	load(func() { c.Addresses = l.LoadAddresses() })
	load(func() { c.Counties = l.LoadCounties() })
	load(func() { c.State = l.LoadState() })
	load(func() { c.Buildings = l.LoadBuildings() })
	wg.Wait()
	return c
}

// LoadParcels returns the parcel layer, capped at maxRecords.
func (l *Loader) LoadParcels() []Parcel {
	if parcels, err := l.parcelsFromShapefile(filepath.Join(l.dataDir, "parcels.shp")); err == nil {
		return parcels
	} else {
		l.log.Warn("parcel shapefile unavailable", "error", err)
	}
	if parcels, err := l.parcelsFromGeoJSON(filepath.Join(l.dataDir, "parcels.geojson")); err == nil {
		return parcels
	} else {
		l.log.Warn("parcel geojson unavailable, using fixtures", "error", err)
	}
	return fixtureParcels()
}

// LoadAddresses returns the address-point layer, capped at maxRecords.
func (l *Loader) LoadAddresses() []AddressPoint {
	if addrs, err := l.addressesFromShapefile(filepath.Join(l.dataDir, "addresses.shp")); err == nil {
		return addrs
	} else {
		l.log.Warn("address shapefile unavailable", "error", err)
	}
	if addrs, err := l.addressesFromGeoJSON(filepath.Join(l.dataDir, "addresses.geojson")); err == nil {
		return addrs
	} else {
		l.log.Warn("address geojson unavailable, using fixtures", "error", err)
	}
	return fixtureAddresses()
}

// LoadCounties returns the county-boundary layer.
func (l *Loader) LoadCounties() []Boundary {
	if counties, err := l.boundariesFromShapefile(filepath.Join(l.dataDir, "counties.shp")); err == nil {
		return counties
	} else {
		l.log.Warn("county shapefile unavailable", "error", err)
	}
	if counties, err := l.boundariesFromGeoJSON(filepath.Join(l.dataDir, "counties.geojson")); err == nil {
		return counties
	} else {
		l.log.Warn("county geojson unavailable, using fixtures", "error", err)
	}
	return fixtureCounties()
}

// LoadState returns the state outline. The state boundary ships as plain
// GeoJSON only.
func (l *Loader) LoadState() Boundary {
	if states, err := l.boundariesFromGeoJSON(filepath.Join(l.dataDir, "state.geojson")); err == nil && len(states) > 0 {
		return states[0]
	} else if err != nil {
		l.log.Warn("state geojson unavailable, using fixture", "error", err)
	}
	return fixtureState()
}

// ----- shapefile readers -----

func (l *Loader) parcelsFromShapefile(path string) ([]Parcel, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	fields := r.Fields()
	var (
		parcels []Parcel
		skipped int
	)
	for row := 0; r.Next() && len(parcels) < l.maxRecords; row++ {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		geometry, ok := polygonFromShape(poly)
		if !ok {
			skipped++
			continue
		}
		attrs := readAttributes(r, fields, idx)
		parcels = append(parcels, normalizeParcel(attrs, geometry, row))
	}
	if skipped > 0 {
		l.log.Info("skipped malformed parcel records", "count", skipped)
	}
	return parcels, nil
}

func (l *Loader) addressesFromShapefile(path string) ([]AddressPoint, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	fields := r.Fields()
	var (
		addrs   []AddressPoint
		skipped int
	)
	for r.Next() && len(addrs) < l.maxRecords {
		idx, shape := r.Shape()
		pt, ok := shape.(*shp.Point)
		if !ok {
			skipped++
			continue
		}
		attrs := readAttributes(r, fields, idx)
		loc := geom.NormalizeGeometry(orb.Point{pt.X, pt.Y}).(orb.Point)
		addrs = append(addrs, AddressPoint{
			Address:  buildAddress(attrs),
			City:     firstAttr(attrs, "city", "situs_city"),
			State:    firstAttr(attrs, "state", "situs_stat"),
			Zip:      firstAttr(attrs, "zip", "zipcode", "situs_zip"),
			Location: loc,
		})
	}
	if skipped > 0 {
		l.log.Info("skipped malformed address records", "count", skipped)
	}
	return addrs, nil
}

func (l *Loader) boundariesFromShapefile(path string) ([]Boundary, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	fields := r.Fields()
	var bounds []Boundary
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		geometry, ok := polygonFromShape(poly)
		if !ok {
			continue
		}
		attrs := readAttributes(r, fields, idx)
		bounds = append(bounds, Boundary{
			ID:       firstAttr(attrs, "fips", "geoid", "id"),
			Name:     firstAttr(attrs, "name", "county", "cnty_nm"),
			Geometry: geometry,
		})
	}
	return bounds, nil
}

// polygonFromShape converts a shapefile polygon (flat point list with part
// offsets) into a normalized orb.Polygon. Rings with fewer than 3 points
// are dropped; a polygon with no usable ring is rejected.
func polygonFromShape(p *shp.Polygon) (orb.Polygon, bool) {
	numParts := len(p.Parts)
	if numParts == 0 || len(p.Points) == 0 {
		return nil, false
	}
	var poly orb.Polygon
	for part := 0; part < numParts; part++ {
		start := int(p.Parts[part])
		end := len(p.Points)
		if part+1 < numParts {
			end = int(p.Parts[part+1])
		}
		if end-start < 3 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		poly = append(poly, ring)
	}
	if len(poly) == 0 {
		return nil, false
	}
	return geom.NormalizeGeometry(poly).(orb.Polygon), true
}

// readAttributes returns the DBF attribute row keyed by lowercased field
// name.
func readAttributes(r *shp.Reader, fields []shp.Field, row int) map[string]string {
	attrs := make(map[string]string, len(fields))
	for i, f := range fields {
		attrs[strings.ToLower(f.String())] = strings.TrimSpace(r.ReadAttribute(row, i))
	}
	return attrs
}

// ----- GeoJSON readers -----

func (l *Loader) parcelsFromGeoJSON(path string) ([]Parcel, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	var (
		parcels []Parcel
		skipped int
	)
	for i, f := range fc.Features {
		if len(parcels) >= l.maxRecords {
			break
		}
		poly, ok := polygonFromGeometry(f.Geometry)
		if !ok {
			skipped++
			continue
		}
		parcels = append(parcels, normalizeParcel(propsToAttrs(f.Properties), poly, i))
	}
	if skipped > 0 {
		l.log.Info("skipped malformed parcel features", "count", skipped)
	}
	return parcels, nil
}

func (l *Loader) addressesFromGeoJSON(path string) ([]AddressPoint, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	var (
		addrs   []AddressPoint
		skipped int
	)
	for _, f := range fc.Features {
		if len(addrs) >= l.maxRecords {
			break
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			skipped++
			continue
		}
		attrs := propsToAttrs(f.Properties)
		addrs = append(addrs, AddressPoint{
			Address:  buildAddress(attrs),
			City:     firstAttr(attrs, "city"),
			State:    firstAttr(attrs, "state"),
			Zip:      firstAttr(attrs, "zip", "zipcode"),
			Location: geom.NormalizeGeometry(pt).(orb.Point),
		})
	}
	if skipped > 0 {
		l.log.Info("skipped malformed address features", "count", skipped)
	}
	return addrs, nil
}

func (l *Loader) boundariesFromGeoJSON(path string) ([]Boundary, error) {
	fc, err := readFeatureCollection(path)
	if err != nil {
		return nil, err
	}
	var bounds []Boundary
	for _, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		attrs := propsToAttrs(f.Properties)
		bounds = append(bounds, Boundary{
			ID:       firstAttr(attrs, "fips", "geoid", "id"),
			Name:     firstAttr(attrs, "name", "county"),
			Geometry: geom.NormalizeGeometry(f.Geometry),
		})
	}
	return bounds, nil
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}

func polygonFromGeometry(g orb.Geometry) (orb.Polygon, bool) {
	switch geometry := g.(type) {
	case orb.Polygon:
		if len(geometry) == 0 || len(geometry[0]) < 3 {
			return nil, false
		}
		return geom.NormalizeGeometry(geometry).(orb.Polygon), true
	case orb.MultiPolygon:
		if len(geometry) == 0 || len(geometry[0]) == 0 || len(geometry[0][0]) < 3 {
			return nil, false
		}
		// Keep the first polygon; parcel multi-polygons are rare enough
		// that the largest-part refinement has not been worth it.
		return geom.NormalizeGeometry(geometry[0]).(orb.Polygon), true
	default:
		return nil, false
	}
}

// ----- record normalization -----

// normalizeParcel builds a Parcel from a raw attribute row. An
// unparsable numeric value becomes 0, never an error.
func normalizeParcel(attrs map[string]string, geometry orb.Polygon, row int) Parcel {
	id := firstAttr(attrs, "prop_id", "geo_id", "objectid", "id")
	if id == "" {
		id = "parcel-" + strconv.Itoa(row)
	}
	return Parcel{
		ID:               id,
		Address:          buildAddress(attrs),
		Owner:            firstAttr(attrs, "owner_name", "owner", "py_owner_n"),
		MarketValue:      coerceFloat(firstAttr(attrs, "market_val", "market", "total_val", "appraised")),
		LandValue:        coerceFloat(firstAttr(attrs, "land_val", "land_value")),
		ImprovementValue: coerceFloat(firstAttr(attrs, "imprv_val", "imp_val", "improvement_value")),
		YearBuilt:        coerceInt(firstAttr(attrs, "yr_built", "year_built")),
		Area:             coerceFloat(firstAttr(attrs, "shape_area", "gis_area", "land_sqft", "area")),
		Bedrooms:         coerceInt(firstAttr(attrs, "bedrooms", "num_bedrooms")),
		Bathrooms:        coerceFloat(firstAttr(attrs, "bathrooms", "num_bathrooms")),
		PropertyType:     ClassifyPropertyType(firstAttr(attrs, "land_use", "state_cd", "land_type", "property_type")),
		Geometry:         geometry,
	}
}

// buildAddress assembles a situs address with a fixed precedence: an
// explicit full-address field, then number + street + suffix parts, then
// the literal "Unknown Address".
func buildAddress(attrs map[string]string) string {
	if full := firstAttr(attrs, "situs_addr", "full_addre", "full_address", "address"); full != "" {
		return full
	}
	parts := []string{
		firstAttr(attrs, "situs_num", "street_num", "number"),
		firstAttr(attrs, "situs_stre", "street_nam", "street"),
		firstAttr(attrs, "situs_st_1", "street_suf", "suffix"),
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return "Unknown Address"
	}
	return strings.Join(nonEmpty, " ")
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := attrs[k]; v != "" {
			return v
		}
	}
	return ""
}

func propsToAttrs(props geojson.Properties) map[string]string {
	attrs := make(map[string]string, len(props))
	for k, v := range props {
		switch val := v.(type) {
		case string:
			attrs[strings.ToLower(k)] = strings.TrimSpace(val)
		case float64:
			attrs[strings.ToLower(k)] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}
	return attrs
}

func coerceFloat(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func coerceInt(s string) int {
	return int(coerceFloat(s))
}
