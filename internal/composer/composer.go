package composer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/atxgeo/parcelmap/internal/dataset"
	"github.com/atxgeo/parcelmap/internal/store"
)

// defaultRepaintDelay is the pause before the forced repaint that follows
// a reconciliation pass. The delay lets the surface finish ingesting the
// swapped sources so the repaint does not capture stale tiles.
const defaultRepaintDelay = 150 * time.Millisecond

// Selection identifies the domain entity behind a clicked feature.
type Selection struct {
	PropertyID string
	BuildingID string
	ParcelID   string
	Coordinate orb.Point
}

// Config wires a Composer.
type Config struct {
	Surface MapSurface
	Popup   Popup
	// OnSelect receives click selections resolved back to domain
	// entities. Optional.
	OnSelect func(Selection)
	// RepaintDelay overrides the post-reconciliation repaint pause.
	// Zero means the default; negative repaints synchronously (tests).
	RepaintDelay time.Duration
}

// Composer owns the currently materialized set of map source and layer
// names. It holds no persistent state: datasets and the property list are
// supplied externally.
type Composer struct {
	surface  MapSurface
	popup    Popup
	onSelect func(Selection)
	log      *slog.Logger

	repaintDelay time.Duration

	mu         sync.Mutex
	mode       LayerMode
	data       *dataset.Collection
	properties []store.Property

	// ownedSources/ownedLayers are the names created by the previous
	// reconciliation pass. Each new pass removes exactly these, so the
	// removal list can never drift from what was actually added.
	ownedSources []string
	ownedLayers  []string

	// handlers holds the current pass's interaction handlers. The
	// surface has registration but no removal, so each (event, layer)
	// pair gets exactly one surface registration, which dispatches
	// through this table; the removal pass clears it, silencing
	// handlers from superseded passes.
	handlers map[handlerKey]func(PointerEvent)
	wired    map[handlerKey]bool
}

// handlerKey identifies one interaction registration on the surface.
type handlerKey struct {
	event EventKind
	layer string
}

// New creates a Composer over a map surface.
func New(cfg Config) *Composer {
	delay := cfg.RepaintDelay
	if delay == 0 {
		delay = defaultRepaintDelay
	}
	return &Composer{
		surface:      cfg.Surface,
		popup:        cfg.Popup,
		onSelect:     cfg.OnSelect,
		repaintDelay: delay,
		handlers:     make(map[handlerKey]func(PointerEvent)),
		wired:        make(map[handlerKey]bool),
		log:          slog.Default().With("component", "composer"),
	}
}

// Mode returns the active layer mode.
func (c *Composer) Mode() LayerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the active visualization and reconciles.
func (c *Composer) SetMode(mode LayerMode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
	c.Reconcile()
}

// SetData supplies the normalized datasets and reconciles.
func (c *Composer) SetData(data *dataset.Collection) {
	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
	c.Reconcile()
}

// SetProperties supplies the submitted-property list and reconciles.
func (c *Composer) SetProperties(props []store.Property) {
	c.mu.Lock()
	c.properties = props
	c.mu.Unlock()
	c.Reconcile()
}

// Focus eases the viewport to a coordinate. This is the typed command
// the owning application calls for "zoom to property".
func (c *Composer) Focus(center orb.Point, zoom float64) {
	if !c.surface.Ready() {
		return
	}
	c.surface.EaseTo(center, zoom, 800*time.Millisecond)
}

// modePlan maps each layer mode to its ordered builder list. Background
// builders come first; the foreground visualization last. Collapsing the
// per-mode branching into this table keeps every mode's layer set in one
// place.
var modePlan = map[LayerMode][]func(*Composer){
	ModeAll: {
		(*Composer).buildStateBoundary,
		(*Composer).buildCounties,
		(*Composer).buildParcels,
		(*Composer).buildAddresses,
		(*Composer).buildBuildings,
		(*Composer).buildPropertyMarkers,
	},
	ModeParcels: {
		(*Composer).buildStateBoundary,
		(*Composer).buildCounties,
		(*Composer).buildAddresses,
		(*Composer).buildParcels,
		(*Composer).buildPropertyMarkers,
	},
	ModePoints: {
		(*Composer).buildStateBoundary,
		(*Composer).buildCounties,
		(*Composer).buildAddresses,
		(*Composer).buildPropertyMarkers,
	},
	ModeClusters: {
		(*Composer).buildStateBoundary,
		(*Composer).buildCounties,
		(*Composer).buildAddresses,
		(*Composer).buildClusters,
	},
	ModeHeatmap: {
		(*Composer).buildStateBoundary,
		(*Composer).buildCounties,
		(*Composer).buildAddresses,
		(*Composer).buildHeatmap,
	},
	ModeBuildings: {
		(*Composer).buildStateBoundary,
		(*Composer).buildCounties,
		(*Composer).buildAddresses,
		(*Composer).buildBuildings,
	},
}

// Reconcile rebuilds the materialized source/layer set for the current
// inputs. Safe to call repeatedly: every pass starts by removing exactly
// the names the previous pass created, so a superseded pass is simply
// overwritten. Skips silently when the surface is not ready yet; the
// surface-ready event must re-trigger it.
func (c *Composer) Reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.surface.Ready() {
		c.log.Debug("surface not ready, deferring reconciliation")
		return
	}

	// Removal pass: layers first (layers reference sources), then
	// sources. Removing an already-absent name is a surface no-op.
	for i := len(c.ownedLayers) - 1; i >= 0; i-- {
		c.surface.RemoveLayer(c.ownedLayers[i])
	}
	for i := len(c.ownedSources) - 1; i >= 0; i-- {
		c.surface.RemoveSource(c.ownedSources[i])
	}
	c.ownedLayers = c.ownedLayers[:0]
	c.ownedSources = c.ownedSources[:0]
	clear(c.handlers)

	if c.popup != nil {
		c.popup.Remove()
	}

	if c.data == nil {
		return
	}

	for _, build := range modePlan[c.mode] {
		build(c)
	}

	c.scheduleRepaint()
}

// addSource registers a source with the surface and records ownership.
// Failures log and do not abort the pass: a partial render beats a blank
// map.
func (c *Composer) addSource(name string, spec SourceSpec) bool {
	if err := c.surface.AddSource(name, spec); err != nil {
		c.log.Error("adding source failed", "source", name, "error", err)
		return false
	}
	c.ownedSources = append(c.ownedSources, name)
	return true
}

// addLayer registers a layer with the surface and records ownership.
func (c *Composer) addLayer(spec LayerSpec) bool {
	if err := c.surface.AddLayer(spec); err != nil {
		c.log.Error("adding layer failed", "layer", spec.ID, "error", err)
		return false
	}
	c.ownedLayers = append(c.ownedLayers, spec.ID)
	return true
}

// wireOn installs an interaction handler for the current pass. The
// surface registration happens at most once per (event, layer) pair and
// dispatches through the handler table, so repeat passes never stack
// handlers and a layer dropped by a later pass stops dispatching.
func (c *Composer) wireOn(event EventKind, layer string, handler func(PointerEvent)) {
	key := handlerKey{event: event, layer: layer}
	c.handlers[key] = handler
	if c.wired[key] {
		return
	}
	c.wired[key] = true
	c.surface.On(event, layer, func(ev PointerEvent) {
		c.mu.Lock()
		h := c.handlers[key]
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	})
}

func (c *Composer) scheduleRepaint() {
	if c.repaintDelay < 0 {
		c.surface.TriggerRepaint()
		return
	}
	time.AfterFunc(c.repaintDelay, c.surface.TriggerRepaint)
}

// OwnedLayers returns the layer names materialized by the last pass.
func (c *Composer) OwnedLayers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ownedLayers))
	copy(out, c.ownedLayers)
	return out
}

// OwnedSources returns the source names materialized by the last pass.
func (c *Composer) OwnedSources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.ownedSources))
	copy(out, c.ownedSources)
	return out
}
