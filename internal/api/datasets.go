package api

import (
	"context"
	"sync"

	"github.com/danielgtaylor/huma/v2"

	"github.com/atxgeo/parcelmap/internal/composer"
	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/enrich"
	"github.com/atxgeo/parcelmap/internal/store"
)

// modeChangedEvent lets bus subscribers (the live stream) react to mode
// switches the same way they react to property mutations.
func modeChangedEvent(mode composer.LayerMode) store.Event {
	return store.Event{Action: "mode-changed", ID: mode.String()}
}

// ModeState holds the active layer mode shared between the REST surface
// and the live UI stream.
type ModeState struct {
	mu   sync.Mutex
	mode composer.LayerMode
}

// Get returns the active mode.
func (m *ModeState) Get() composer.LayerMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Set stores the active mode.
func (m *ModeState) Set(mode composer.LayerMode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}

// RegisterDatasets registers the dataset summary and enrichment routes.
func (h *APIHandler) RegisterDatasets(api huma.API) {
	huma.Get(api, "/api/v1/datasets", h.GetDatasets, huma.OperationTags("datasets"))
	huma.Get(api, "/api/v1/datasets/enriched", h.GetEnrichedSample, huma.OperationTags("datasets"))
}

// RegisterLayerMode registers the layer-mode control routes.
func (h *APIHandler) RegisterLayerMode(api huma.API) {
	huma.Get(api, "/api/v1/layer-mode", h.GetLayerMode, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layer-mode", h.SetLayerMode, huma.OperationTags("layers"))
}

type DatasetSummaryBody struct {
	Parcels            int    `json:"parcels" doc:"Loaded parcel count"`
	Addresses          int    `json:"addresses" doc:"Loaded address-point count"`
	Counties           int    `json:"counties" doc:"Loaded county-boundary count"`
	State              string `json:"state" doc:"State boundary name"`
	Buildings          int    `json:"buildings" doc:"Loaded building-footprint count"`
	BuildingsTotal     int    `json:"buildingsTotal" doc:"Footprints present in the source extract"`
	BuildingsSynthetic bool   `json:"buildingsSynthetic" doc:"True when footprints are synthetic fallbacks"`
	// Bounds is [west, south, east, north] in degrees.
	Bounds [4]float64 `json:"bounds" doc:"Coverage box as [west, south, east, north]"`
}

func (h *APIHandler) GetDatasets(ctx context.Context, input *struct{}) (*struct{ Body DatasetSummaryBody }, error) {
	body := DatasetSummaryBody{}
	if d := h.svc.Data; d != nil {
		body.Parcels = len(d.Parcels)
		body.Addresses = len(d.Addresses)
		body.Counties = len(d.Counties)
		body.State = d.State.Name
		body.Buildings = d.Buildings.LoadedCount
		body.BuildingsTotal = d.Buildings.TotalCount
		body.BuildingsSynthetic = d.Buildings.Synthetic
	}
	b := dataset.TravisBounds
	body.Bounds = [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	return &struct{ Body DatasetSummaryBody }{Body: body}, nil
}

type EnrichedSampleOutput struct {
	Body struct {
		Addresses []enrich.EnrichedAddress `json:"addresses" doc:"Enriched address sample"`
		Count     int                      `json:"count" doc:"Number of sampled addresses"`
	}
}

func (h *APIHandler) GetEnrichedSample(ctx context.Context, input *struct{}) (*EnrichedSampleOutput, error) {
	out := &EnrichedSampleOutput{}
	out.Body.Addresses = []enrich.EnrichedAddress{}
	if h.svc.Sampler != nil && h.svc.Data != nil {
		out.Body.Addresses = h.svc.Sampler.Enrich(ctx, h.svc.Data.Addresses)
	}
	out.Body.Count = len(out.Body.Addresses)
	return out, nil
}

type LayerModeBody struct {
	Mode  string   `json:"mode" doc:"Active layer mode" enum:"all,parcels,points,clusters,heatmap,buildings"`
	Modes []string `json:"modes,omitempty" doc:"All selectable modes"`
}

func (h *APIHandler) GetLayerMode(ctx context.Context, input *struct{}) (*struct{ Body LayerModeBody }, error) {
	names := make([]string, 0, len(composer.Modes()))
	for _, m := range composer.Modes() {
		names = append(names, m.String())
	}
	return &struct{ Body LayerModeBody }{Body: LayerModeBody{
		Mode:  h.svc.Mode.Get().String(),
		Modes: names,
	}}, nil
}

func (h *APIHandler) SetLayerMode(ctx context.Context, input *struct {
	Body struct {
		Mode string `json:"mode" required:"true" doc:"Layer mode to activate" enum:"all,parcels,points,clusters,heatmap,buildings"`
	}
}) (*struct{ Body LayerModeBody }, error) {
	mode, err := composer.ParseLayerMode(input.Body.Mode)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	h.svc.Mode.Set(mode)
	h.svc.Properties.Bus().Publish(modeChangedEvent(mode))
	return &struct{ Body LayerModeBody }{Body: LayerModeBody{Mode: mode.String()}}, nil
}
