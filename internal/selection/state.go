// Package selection models the map view state as one immutable record and
// a pure reducer over UI events.
package selection

import (
	"sort"

	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/internal/network"
)

// Mode is the current view.
type Mode string

const (
	ModeOverview Mode = "overview"
	ModeSingle   Mode = "single"
	ModeMulti    Mode = "multi"
)

// EventType names a state transition.
type EventType string

const (
	EventSelect      EventType = "select"
	EventDoubleClick EventType = "double_click"
	EventHover       EventType = "hover"
	EventBack        EventType = "back"
	EventSetYear     EventType = "set_year"
	EventSetOpacity  EventType = "set_opacity"
	EventToggleLayer EventType = "toggle_layer"
)

// Opacity targets.
const (
	TargetImagery = "imagery"
	TargetNetwork = "network"
)

// State is the view state. Values are never modified in place; Reduce
// returns a new State.
type State struct {
	Mode           Mode         `json:"mode"`
	ActiveTile     string       `json:"active_tile,omitempty"`
	Start          string       `json:"start,omitempty"`
	Hover          string       `json:"hover,omitempty"`
	Preview        []string     `json:"preview,omitempty"`
	Selection      []string     `json:"selection,omitempty"`
	Layout         *grid.Layout `json:"layout,omitempty"`
	Year           int          `json:"year"`
	ImageryOpacity float64      `json:"imagery_opacity"`
	NetworkOpacity float64      `json:"network_opacity"`
	Layers         []string     `json:"layers"`
	Notice         string       `json:"notice,omitempty"`
}

// Event is one UI interaction.
type Event struct {
	Type    EventType `json:"type"`
	TileID  string    `json:"tile_id,omitempty"`
	Year    int       `json:"year,omitempty"`
	Target  string    `json:"target,omitempty"`
	Opacity float64   `json:"opacity,omitempty"`
	Layer   string    `json:"layer,omitempty"`
}

// Initial returns the overview state on the latest year with every layer
// visible.
func Initial() State {
	layers := make([]string, 0, len(network.Types))
	for _, t := range network.Types {
		layers = append(layers, string(t))
	}
	sort.Strings(layers)
	return State{
		Mode:           ModeOverview,
		Year:           tiles.Years[len(tiles.Years)-1],
		ImageryOpacity: 1,
		NetworkOpacity: 0.8,
		Layers:         layers,
	}
}

// LayerVisible reports whether a layer is shown.
func (s State) LayerVisible(layer string) bool {
	for _, l := range s.Layers {
		if l == layer {
			return true
		}
	}
	return false
}

// clone copies the slices and the layout so the result shares nothing
// with s.
func (s State) clone() State {
	out := s
	out.Preview = cloneStrings(s.Preview)
	out.Selection = cloneStrings(s.Selection)
	out.Layers = cloneStrings(s.Layers)
	if s.Layout != nil {
		l := *s.Layout
		out.Layout = &l
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
