package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/atxgeo/parcelmap/internal/dataset"
)

// storageKey is the single blob-store key holding the whole collection.
const storageKey = "submitted-properties"

// ErrNotFound signals an absent property ID.
var ErrNotFound = errors.New("property not found")

// Status is a submitted listing's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Coordinate is a geographic point in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Property is a user-submitted listing. This struct is the canonical
// persisted JSON shape; older records missing newer fields get defaults
// backfilled at load.
type Property struct {
	ID           string               `json:"id"`
	Address      string               `json:"address"`
	City         string               `json:"city,omitempty"`
	State        string               `json:"state,omitempty"`
	Zip          string               `json:"zip,omitempty"`
	Coordinate   Coordinate           `json:"coordinate"`
	MarketValue  float64              `json:"marketValue"`
	PropertyType dataset.PropertyType `json:"propertyType"`
	Bedrooms     int                  `json:"bedrooms,omitempty"`
	Bathrooms    float64              `json:"bathrooms,omitempty"`
	Acreage      float64              `json:"acreage,omitempty"`
	Description  string               `json:"description,omitempty"`
	Status       Status               `json:"status"`
	SubmittedAt  time.Time            `json:"submittedAt"`
	// Polygon is set when the submission matched a parcel outline; such
	// listings render as filled polygons instead of circle markers.
	Polygon orb.Polygon `json:"polygon,omitempty"`
}

// Submission carries the fields a user provides when listing a property.
// The coordinate must already be resolved (geocoded) by the caller.
type Submission struct {
	Address      string               `json:"address"`
	City         string               `json:"city,omitempty"`
	State        string               `json:"state,omitempty"`
	Zip          string               `json:"zip,omitempty"`
	Coordinate   Coordinate           `json:"coordinate"`
	MarketValue  float64              `json:"marketValue"`
	PropertyType dataset.PropertyType `json:"propertyType"`
	Bedrooms     int                  `json:"bedrooms,omitempty"`
	Bathrooms    float64              `json:"bathrooms,omitempty"`
	Acreage      float64              `json:"acreage,omitempty"`
	Description  string               `json:"description,omitempty"`
	Polygon      orb.Polygon          `json:"polygon,omitempty"`
}

// QueryFilter selects properties. All fields are optional and
// AND-combined.
type QueryFilter struct {
	Address      string                `json:"address,omitempty"`
	City         string                `json:"city,omitempty"`
	PropertyType *dataset.PropertyType `json:"propertyType,omitempty"`
	MinPrice     *float64              `json:"minPrice,omitempty"`
	MaxPrice     *float64              `json:"maxPrice,omitempty"`
	Status       *Status               `json:"status,omitempty"`
}

// Statistics summarizes the collection.
type Statistics struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	TotalValue   float64 `json:"totalValue"`
	AverageValue float64 `json:"averageValue"`
}

// PropertyService owns the submitted-property collection. Every mutation
// reads the full collection from the blob store, applies the change, and
// rewrites the whole collection under the single storage key.
type PropertyService struct {
	blob BlobStore
	bus  *EventBus
	mu   sync.Mutex
	log  *slog.Logger
}

// NewPropertyService creates a property service over a blob store.
func NewPropertyService(blob BlobStore) *PropertyService {
	return &PropertyService{
		blob: blob,
		bus:  NewEventBus(),
		log:  slog.Default().With("component", "store"),
	}
}

// Bus exposes the mutation event bus for subscribers.
func (s *PropertyService) Bus() *EventBus {
	return s.bus
}

// List returns every stored property.
func (s *PropertyService) List() []Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns a property by ID.
func (s *PropertyService) Get(id string) (Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.load() {
		if p.ID == id {
			return p, nil
		}
	}
	return Property{}, ErrNotFound
}

// Add stores a new listing. The submission's coordinate is required; a
// zero coordinate means the caller skipped geocoding and the listing is
// rejected.
func (s *PropertyService) Add(sub Submission) (Property, error) {
	if sub.Coordinate == (Coordinate{}) {
		return Property{}, fmt.Errorf("submission requires a resolved coordinate")
	}
	if sub.Address == "" {
		return Property{}, fmt.Errorf("submission requires an address")
	}

	s.mu.Lock()
	p := Property{
		ID:           newPropertyID(),
		Address:      sub.Address,
		City:         sub.City,
		State:        sub.State,
		Zip:          sub.Zip,
		Coordinate:   sub.Coordinate,
		MarketValue:  sub.MarketValue,
		PropertyType: sub.PropertyType,
		Bedrooms:     sub.Bedrooms,
		Bathrooms:    sub.Bathrooms,
		Acreage:      sub.Acreage,
		Description:  sub.Description,
		Status:       StatusPending,
		SubmittedAt:  time.Now().UTC(),
		Polygon:      sub.Polygon,
	}
	if p.PropertyType == "" {
		p.PropertyType = dataset.Residential
	}
	props := append(s.load(), p)
	err := s.save(props)
	s.mu.Unlock()
	if err != nil {
		return Property{}, err
	}

	s.bus.Publish(Event{Action: "created", ID: p.ID})
	return p, nil
}

// Update applies a partial update to a property. Nil fields in the patch
// leave the stored value untouched.
type Patch struct {
	Address     *string  `json:"address,omitempty"`
	MarketValue *float64 `json:"marketValue,omitempty"`
	Status      *Status  `json:"status,omitempty"`
	Description *string  `json:"description,omitempty"`
}

// Update patches a property by ID. Returns ErrNotFound for absent IDs.
func (s *PropertyService) Update(id string, patch Patch) (Property, error) {
	s.mu.Lock()
	props := s.load()
	idx := -1
	for i, p := range props {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return Property{}, ErrNotFound
	}
	p := &props[idx]
	if patch.Address != nil {
		p.Address = *patch.Address
	}
	if patch.MarketValue != nil {
		p.MarketValue = *patch.MarketValue
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	updated := *p
	err := s.save(props)
	s.mu.Unlock()
	if err != nil {
		return Property{}, err
	}

	s.bus.Publish(Event{Action: "updated", ID: id})
	return updated, nil
}

// Remove deletes a property by ID. Returns false for absent IDs.
func (s *PropertyService) Remove(id string) bool {
	s.mu.Lock()
	props := s.load()
	kept := props[:0]
	found := false
	for _, p := range props {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if found {
		if err := s.save(kept); err != nil {
			s.mu.Unlock()
			return false
		}
	}
	s.mu.Unlock()

	if found {
		s.bus.Publish(Event{Action: "deleted", ID: id})
	}
	return found
}

// Query returns the properties matching a filter. Address and city match
// case-insensitively on substring; type and status match exactly; price
// bounds are inclusive.
func (s *PropertyService) Query(filter QueryFilter) []Property {
	var out []Property
	for _, p := range s.List() {
		if filter.Address != "" && !strings.Contains(strings.ToLower(p.Address), strings.ToLower(filter.Address)) {
			continue
		}
		if filter.City != "" && !strings.Contains(strings.ToLower(p.City), strings.ToLower(filter.City)) {
			continue
		}
		if filter.PropertyType != nil && p.PropertyType != *filter.PropertyType {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.MinPrice != nil && p.MarketValue < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && p.MarketValue > *filter.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Statistics summarizes the stored collection.
func (s *PropertyService) Statistics() Statistics {
	props := s.List()
	stats := Statistics{Total: len(props)}
	for _, p := range props {
		switch p.Status {
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		default:
			stats.Pending++
		}
		stats.TotalValue += p.MarketValue
	}
	if stats.Total > 0 {
		stats.AverageValue = stats.TotalValue / float64(stats.Total)
	}
	return stats
}

// Import replaces the collection with a JSON array of properties.
func (s *PropertyService) Import(data string) error {
	var props []Property
	if err := json.Unmarshal([]byte(data), &props); err != nil {
		return fmt.Errorf("parsing import: %w", err)
	}
	for i := range props {
		backfill(&props[i])
	}

	s.mu.Lock()
	err := s.save(props)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.bus.Publish(Event{Action: "imported"})
	return nil
}

// Clear removes the whole collection.
func (s *PropertyService) Clear() {
	s.mu.Lock()
	s.blob.RemoveItem(storageKey)
	s.mu.Unlock()
	s.bus.Publish(Event{Action: "cleared"})
}

// load reads the collection. Malformed persisted JSON logs and reads as
// an empty collection, never an error.
func (s *PropertyService) load() []Property {
	raw, ok := s.blob.GetItem(storageKey)
	if !ok {
		return nil
	}
	var props []Property
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		s.log.Warn("stored property collection is corrupt, starting empty", "error", err)
		return nil
	}
	for i := range props {
		backfill(&props[i])
	}
	return props
}

func (s *PropertyService) save(props []Property) error {
	data, err := json.MarshalIndent(props, "", "  ")
	if err != nil {
		return err
	}
	return s.blob.SetItem(storageKey, string(data))
}

// backfill supplies defaults for fields added after a record was
// persisted.
func backfill(p *Property) {
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.PropertyType == "" {
		p.PropertyType = dataset.Residential
	}
}

// newPropertyID generates a unique submission ID.
func newPropertyID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "submitted-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + token
}
