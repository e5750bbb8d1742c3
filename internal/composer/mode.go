package composer

import "fmt"

// LayerMode selects the active map visualization. Exactly one mode is
// active at a time.
type LayerMode int

const (
	ModeAll LayerMode = iota
	ModeParcels
	ModePoints
	ModeClusters
	ModeHeatmap
	ModeBuildings
)

var modeNames = map[LayerMode]string{
	ModeAll:       "all",
	ModeParcels:   "parcels",
	ModePoints:    "points",
	ModeClusters:  "clusters",
	ModeHeatmap:   "heatmap",
	ModeBuildings: "buildings",
}

// String returns the mode's wire name.
func (m LayerMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "all"
}

// ParseLayerMode maps a wire name to a LayerMode.
func ParseLayerMode(s string) (LayerMode, error) {
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}
	return ModeAll, fmt.Errorf("unknown layer mode %q", s)
}

// Modes lists every mode in display order.
func Modes() []LayerMode {
	return []LayerMode{ModeAll, ModeParcels, ModePoints, ModeClusters, ModeHeatmap, ModeBuildings}
}
