// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/enrich"
	"github.com/atxgeo/parcelmap/internal/store"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Properties *store.PropertyService
	Geocoder   *enrich.Geocoder
	Sampler    *enrich.Sampler
	Data       *dataset.Collection
	Mode       *ModeState
	DB         *sql.DB
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Property ID" example:"submitted-1756500000000-a1b2c3d4e"`
}

type PropertyOutput struct {
	Body store.Property
}

type PropertiesOutput struct {
	Body struct {
		Properties []store.Property `json:"properties" doc:"Matching properties"`
		Count      int              `json:"count" doc:"Number of properties returned"`
	}
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every handler group onto the API.
func RegisterRoutes(humaAPI huma.API, svc *Services) {
	huma.AutoRegister(humaAPI, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterProperties registers the submitted-property routes.
func (h *APIHandler) RegisterProperties(api huma.API) {
	huma.Get(api, "/api/v1/properties", h.QueryProperties, huma.OperationTags("properties"))
	huma.Post(api, "/api/v1/properties", h.SubmitProperty, huma.OperationTags("properties"))
	huma.Delete(api, "/api/v1/properties", h.ClearProperties, huma.OperationTags("properties"))
	huma.Get(api, "/api/v1/properties/statistics", h.GetStatistics, huma.OperationTags("properties"))
	huma.Get(api, "/api/v1/properties/export", h.ExportProperties, huma.OperationTags("properties"))
	huma.Post(api, "/api/v1/properties/import", h.ImportProperties, huma.OperationTags("properties"))
	huma.Get(api, "/api/v1/properties/{id}", h.GetProperty, huma.OperationTags("properties"))
	huma.Patch(api, "/api/v1/properties/{id}", h.PatchProperty, huma.OperationTags("properties"))
	huma.Delete(api, "/api/v1/properties/{id}", h.DeleteProperty, huma.OperationTags("properties"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

// PropertyQueryInput carries the optional property filters as query
// parameters.
type PropertyQueryInput struct {
	Address      string  `query:"address" doc:"Case-insensitive address substring"`
	City         string  `query:"city" doc:"Case-insensitive city substring"`
	PropertyType string  `query:"propertyType" doc:"Property type" enum:"residential,commercial,industrial,agricultural,vacant,mixed-use,"`
	Status       string  `query:"status" doc:"Lifecycle status" enum:"pending,approved,rejected,"`
	MinPrice     float64 `query:"minPrice" doc:"Minimum market value, inclusive"`
	MaxPrice     float64 `query:"maxPrice" doc:"Maximum market value, inclusive"`
}

func (h *APIHandler) QueryProperties(ctx context.Context, input *PropertyQueryInput) (*PropertiesOutput, error) {
	filter := store.QueryFilter{
		Address: input.Address,
		City:    input.City,
	}
	if input.PropertyType != "" {
		pt := dataset.PropertyType(input.PropertyType)
		filter.PropertyType = &pt
	}
	if input.Status != "" {
		st := store.Status(input.Status)
		filter.Status = &st
	}
	if input.MinPrice > 0 {
		filter.MinPrice = &input.MinPrice
	}
	if input.MaxPrice > 0 {
		filter.MaxPrice = &input.MaxPrice
	}

	props := h.svc.Properties.Query(filter)
	out := &PropertiesOutput{}
	out.Body.Properties = props
	out.Body.Count = len(props)
	return out, nil
}

// SubmissionBody is the user-facing submission shape. The coordinate is
// optional: when absent the address is geocoded, and a geocoding miss
// rejects the submission.
type SubmissionBody struct {
	Address      string  `json:"address" required:"true" doc:"Street address"`
	City         string  `json:"city,omitempty" doc:"City"`
	State        string  `json:"state,omitempty" doc:"State"`
	Zip          string  `json:"zip,omitempty" doc:"ZIP code"`
	Lat          float64 `json:"lat,omitempty" doc:"Latitude; omit to geocode the address"`
	Lng          float64 `json:"lng,omitempty" doc:"Longitude; omit to geocode the address"`
	MarketValue  float64 `json:"marketValue,omitempty" doc:"Asking or assessed value"`
	PropertyType string  `json:"propertyType,omitempty" doc:"Property type" enum:"residential,commercial,industrial,agricultural,vacant,mixed-use,"`
	Bedrooms     int     `json:"bedrooms,omitempty"`
	Bathrooms    float64 `json:"bathrooms,omitempty"`
	Acreage      float64 `json:"acreage,omitempty"`
	Description  string  `json:"description,omitempty"`
}

func (h *APIHandler) SubmitProperty(ctx context.Context, input *struct{ Body SubmissionBody }) (*PropertyOutput, error) {
	b := input.Body

	coord := store.Coordinate{Lat: b.Lat, Lng: b.Lng}
	if coord == (store.Coordinate{}) {
		if h.svc.Geocoder == nil {
			return nil, huma.Error400BadRequest("a coordinate is required when geocoding is not configured")
		}
		match, err := h.svc.Geocoder.Forward(ctx, b.Address)
		if err != nil {
			if errors.Is(err, enrich.ErrNoMatch) {
				return nil, huma.Error422UnprocessableEntity("address could not be geocoded: " + b.Address)
			}
			return nil, huma.Error502BadGateway("geocoding failed", err)
		}
		coord = store.Coordinate{Lat: match.Center[1], Lng: match.Center[0]}
	}

	sub := store.Submission{
		Address:      b.Address,
		City:         b.City,
		State:        b.State,
		Zip:          b.Zip,
		Coordinate:   coord,
		MarketValue:  b.MarketValue,
		PropertyType: dataset.PropertyType(b.PropertyType),
		Bedrooms:     b.Bedrooms,
		Bathrooms:    b.Bathrooms,
		Acreage:      b.Acreage,
		Description:  b.Description,
	}
	if poly, ok := h.matchParcelPolygon(coord); ok {
		sub.Polygon = poly
	}

	created, err := h.svc.Properties.Add(sub)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &PropertyOutput{Body: created}, nil
}

func (h *APIHandler) GetProperty(ctx context.Context, input *IDInput) (*PropertyOutput, error) {
	p, err := h.svc.Properties.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound("property not found")
	}
	return &PropertyOutput{Body: p}, nil
}

func (h *APIHandler) PatchProperty(ctx context.Context, input *struct {
	IDInput
	Body store.Patch
}) (*PropertyOutput, error) {
	updated, err := h.svc.Properties.Update(input.ID, input.Body)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound("property not found")
		}
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &PropertyOutput{Body: updated}, nil
}

func (h *APIHandler) DeleteProperty(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if !h.svc.Properties.Remove(input.ID) {
		return nil, huma.Error404NotFound("property not found")
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Property deleted"}}, nil
}

func (h *APIHandler) ClearProperties(ctx context.Context, input *struct{}) (*struct{ Body MessageBody }, error) {
	h.svc.Properties.Clear()
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "All properties cleared"}}, nil
}

func (h *APIHandler) GetStatistics(ctx context.Context, input *struct{}) (*struct{ Body store.Statistics }, error) {
	return &struct{ Body store.Statistics }{Body: h.svc.Properties.Statistics()}, nil
}

type ExportInput struct {
	Format string `query:"format" doc:"Export format" enum:"json,csv" default:"json"`
}

type ExportOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

func (h *APIHandler) ExportProperties(ctx context.Context, input *ExportInput) (*ExportOutput, error) {
	if input.Format == "csv" {
		return &ExportOutput{
			ContentType: "text/csv",
			Body:        []byte(h.svc.Properties.ExportCSV()),
		}, nil
	}
	data, err := h.svc.Properties.ExportJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("export failed", err)
	}
	return &ExportOutput{ContentType: "application/json", Body: []byte(data)}, nil
}

type ImportInput struct {
	RawBody []byte
}

func (h *APIHandler) ImportProperties(ctx context.Context, input *ImportInput) (*struct{ Body MessageBody }, error) {
	if err := h.svc.Properties.Import(string(input.RawBody)); err != nil {
		return nil, huma.Error400BadRequest("import failed: " + err.Error())
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Properties imported"}}, nil
}

// matchParcelPolygon finds a loaded parcel whose outline contains the
// coordinate so the listing renders as a filled polygon. Linear scan is
// fine at the loader's record cap.
func (h *APIHandler) matchParcelPolygon(coord store.Coordinate) (orb.Polygon, bool) {
	if h.svc.Data == nil {
		return nil, false
	}
	pt := orb.Point{coord.Lng, coord.Lat}
	for _, p := range h.svc.Data.Parcels {
		if planar.PolygonContains(p.Geometry, pt) {
			return p.Geometry, true
		}
	}
	return nil, false
}
