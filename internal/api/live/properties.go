package live

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/atxgeo/parcelmap/internal/api"
	"github.com/atxgeo/parcelmap/internal/composer"
	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/enrich"
	"github.com/atxgeo/parcelmap/internal/store"
	"github.com/atxgeo/parcelmap/internal/templates"
)

// PropertyHandler streams property-list, statistics, and layer-mode
// fragments to the Datastar UI.
type PropertyHandler struct {
	properties *store.PropertyService
	geocoder   *enrich.Geocoder
	mode       *api.ModeState
	renderer   *templates.Renderer
}

// NewPropertyHandler creates the live property handler.
func NewPropertyHandler(properties *store.PropertyService, geocoder *enrich.Geocoder, mode *api.ModeState, renderer *templates.Renderer) *PropertyHandler {
	return &PropertyHandler{
		properties: properties,
		geocoder:   geocoder,
		mode:       mode,
		renderer:   renderer,
	}
}

func (h *PropertyHandler) RegisterRoutes(humaAPI huma.API) {
	huma.Get(humaAPI, "/api/v1/live/events", h.Events, huma.OperationTags("live"))
	huma.Get(humaAPI, "/api/v1/live/properties", h.ListProperties, huma.OperationTags("live"))
	huma.Post(humaAPI, "/api/v1/live/properties", h.SubmitProperty, huma.OperationTags("live"))
	huma.Patch(humaAPI, "/api/v1/live/properties/{id}/approve", h.ApproveProperty, huma.OperationTags("live"))
	huma.Patch(humaAPI, "/api/v1/live/properties/{id}/reject", h.RejectProperty, huma.OperationTags("live"))
	huma.Delete(humaAPI, "/api/v1/live/properties/{id}", h.DeleteProperty, huma.OperationTags("live"))
	huma.Post(humaAPI, "/api/v1/live/focus/{id}", h.FocusProperty, huma.OperationTags("live"))
	huma.Get(humaAPI, "/api/v1/live/modes", h.ListModes, huma.OperationTags("live"))
}

// Events streams store mutations to the UI: each bus event re-renders
// the property list and statistics panel and dispatches a custom event
// the map page listens for.
func (h *PropertyHandler) Events(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			ch := h.properties.Bus().Subscribe()
			defer h.properties.Bus().Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					h.patchAll(sse)
					sse.DispatchCustomEvent("properties-changed", map[string]any{
						"action": ev.Action,
						"id":     ev.ID,
					})
				}
			}
		},
	}, nil
}

func (h *PropertyHandler) ListProperties(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			h.patchAll(NewSSE(humaCtx))
		},
	}, nil
}

// SubmitProperty creates a listing from form signals. Signals without a
// coordinate go through the geocoder; a geocoding miss rejects the
// submission with an error signal.
func (h *PropertyHandler) SubmitProperty(ctx context.Context, input *SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}

	address := signals.String("address")
	if address == "" {
		return nil, huma.Error400BadRequest("Address is required")
	}

	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)

			coord := store.Coordinate{
				Lat: signals.Float("lat"),
				Lng: signals.Float("lng"),
			}
			if coord == (store.Coordinate{}) {
				if h.geocoder == nil {
					sse.Error("No coordinate given and geocoding is not configured")
					return
				}
				match, err := h.geocoder.Forward(ctx, address)
				if err != nil {
					if errors.Is(err, enrich.ErrNoMatch) {
						sse.Error("Address could not be found: " + address)
					} else {
						sse.Error("Geocoding failed, try again")
					}
					return
				}
				coord = store.Coordinate{Lat: match.Center[1], Lng: match.Center[0]}
			}

			created, err := h.properties.Add(store.Submission{
				Address:      address,
				City:         signals.String("city"),
				State:        signals.String("state"),
				Zip:          signals.String("zip"),
				Coordinate:   coord,
				MarketValue:  signals.Float("marketvalue"),
				PropertyType: dataset.PropertyType(signals.String("propertytype")),
				Bedrooms:     signals.Int("bedrooms"),
				Bathrooms:    signals.Float("bathrooms"),
				Acreage:      signals.Float("acreage"),
				Description:  signals.String("description"),
			})
			if err != nil {
				sse.Error(err.Error())
				return
			}

			sse.Signals(map[string]any{
				"address": "", "city": "", "state": "", "zip": "",
				"marketvalue": 0, "description": "",
				"success": fmt.Sprintf("Property '%s' submitted", created.Address),
			})
		},
	}, nil
}

type liveIDInput struct {
	ID string `path:"id" doc:"Property ID"`
}

func (h *PropertyHandler) ApproveProperty(ctx context.Context, input *liveIDInput) (*huma.StreamResponse, error) {
	return h.setStatus(input.ID, store.StatusApproved), nil
}

func (h *PropertyHandler) RejectProperty(ctx context.Context, input *liveIDInput) (*huma.StreamResponse, error) {
	return h.setStatus(input.ID, store.StatusRejected), nil
}

func (h *PropertyHandler) setStatus(id string, status store.Status) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			if _, err := h.properties.Update(id, store.Patch{Status: &status}); err != nil {
				sse.Error(err.Error())
				return
			}
			sse.Success(fmt.Sprintf("Property %s", status))
		},
	}
}

func (h *PropertyHandler) DeleteProperty(ctx context.Context, input *liveIDInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			if !h.properties.Remove(input.ID) {
				sse.Error("Property not found")
				return
			}
			sse.RemoveElementByID("property-" + input.ID)
			sse.Success("Property deleted")
		},
	}, nil
}

// FocusProperty tells the map page to ease its viewport to a listing.
func (h *PropertyHandler) FocusProperty(ctx context.Context, input *liveIDInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			p, err := h.properties.Get(input.ID)
			if err != nil {
				sse.Error("Property not found")
				return
			}
			sse.DispatchCustomEvent("focus-property", map[string]any{
				"id":  p.ID,
				"lat": p.Coordinate.Lat,
				"lng": p.Coordinate.Lng,
			})
		},
	}, nil
}

func (h *PropertyHandler) ListModes(ctx context.Context, input *EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := NewSSE(humaCtx)
			sse.Patch(h.renderModeList(), "#mode-list")
		},
	}, nil
}

type modeOptionData struct {
	Mode   string
	Label  string
	Active bool
}

func (h *PropertyHandler) renderModeList() string {
	active := h.mode.Get()
	var buf bytes.Buffer
	for _, m := range composer.Modes() {
		h.renderer.RenderToBuffer(&buf, "mode-option", modeOptionData{
			Mode:   m.String(),
			Label:  m.String(),
			Active: m == active,
		})
	}
	return buf.String()
}

func (h *PropertyHandler) patchAll(sse SSE) {
	sse.Patch(h.renderPropertyList(), "#property-list")
	sse.Patch(h.renderStats(), "#property-stats")
}

func (h *PropertyHandler) renderPropertyList() string {
	props := h.properties.List()
	var buf bytes.Buffer
	if len(props) == 0 {
		h.renderer.RenderToBuffer(&buf, "empty-state", map[string]string{
			"Title": "No properties submitted", "Message": "Submit a listing to see it on the map",
		})
		return buf.String()
	}
	for _, p := range props {
		h.renderer.RenderToBuffer(&buf, "property-card", p)
	}
	return buf.String()
}

func (h *PropertyHandler) renderStats() string {
	var buf bytes.Buffer
	h.renderer.RenderToBuffer(&buf, "stats-panel", h.properties.Statistics())
	return buf.String()
}
