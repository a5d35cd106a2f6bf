package selection

import (
	"fmt"
	"sort"

	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/internal/network"
)

// Reduce applies ev to s. s is left untouched. Rejected events return a
// state carrying a Notice; Reduce never fails.
func Reduce(s State, ev Event, idx *grid.Index) State {
	next := s.clone()
	next.Notice = ""

	switch ev.Type {
	case EventSelect:
		if !idx.Has(ev.TileID) {
			next.Notice = fmt.Sprintf("unknown tile %q", ev.TileID)
			return next
		}
		layout, _ := grid.Validate([]string{ev.TileID}, idx)
		next.Mode = ModeSingle
		next.ActiveTile = ev.TileID
		next.Selection = []string{ev.TileID}
		next.Layout = &layout
		next.Start, next.Hover, next.Preview = "", "", nil

	case EventDoubleClick:
		if !idx.Has(ev.TileID) {
			next.Notice = fmt.Sprintf("unknown tile %q", ev.TileID)
			return next
		}
		if next.Start == "" {
			next.Start = ev.TileID
			next.Preview = []string{ev.TileID}
			return next
		}
		return commit(next, grid.Expand(next.Start, ev.TileID, idx), idx)

	case EventHover:
		next.Hover = ev.TileID
		if next.Start != "" && idx.Has(ev.TileID) {
			next.Preview = grid.Expand(next.Start, ev.TileID, idx)
		}

	case EventBack:
		next.Mode = ModeOverview
		next.ActiveTile = ""
		next.Start, next.Hover, next.Preview = "", "", nil
		next.Selection = nil
		next.Layout = nil

	case EventSetYear:
		if !tiles.IsYear(ev.Year) {
			next.Notice = fmt.Sprintf("no data for year %d", ev.Year)
			return next
		}
		next.Year = ev.Year

	case EventSetOpacity:
		v := clamp01(ev.Opacity)
		switch ev.Target {
		case TargetImagery:
			next.ImageryOpacity = v
		case TargetNetwork:
			next.NetworkOpacity = v
		default:
			next.Notice = fmt.Sprintf("unknown opacity target %q", ev.Target)
		}

	case EventToggleLayer:
		if len(network.ParseTypes([]string{ev.Layer})) == 0 {
			next.Notice = fmt.Sprintf("unknown layer %q", ev.Layer)
			return next
		}
		next.Layers = toggle(next.Layers, ev.Layer)

	default:
		next.Notice = fmt.Sprintf("unknown event %q", ev.Type)
	}
	return next
}

// commit validates the preview. On rejection the start tile is cleared and
// the reason is reported.
func commit(s State, ids []string, idx *grid.Index) State {
	layout, err := grid.Validate(ids, idx)
	s.Start, s.Preview = "", nil
	if err != nil {
		s.Notice = err.Error()
		return s
	}

	s.Selection = ids
	s.Layout = &layout
	if len(ids) == 1 {
		s.Mode = ModeSingle
		s.ActiveTile = ids[0]
	} else {
		s.Mode = ModeMulti
		s.ActiveTile = ""
	}
	return s
}

func toggle(layers []string, layer string) []string {
	out := make([]string, 0, len(layers)+1)
	found := false
	for _, l := range layers {
		if l == layer {
			found = true
			continue
		}
		out = append(out, l)
	}
	if !found {
		out = append(out, layer)
		sort.Strings(out)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
