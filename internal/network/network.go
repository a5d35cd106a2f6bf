// Package network works with the per-tile sidewalk/road/crosswalk feature
// collections: merging tiles, aligning a tile to its imagery, filtering
// layers and summarizing them for the statistics view.
package network

import (
	"github.com/paulmach/orb/geojson"

	"github.com/sidewalk-timeline/server/internal/geo"
)

// Type is the value of a feature's f_type property.
type Type string

const (
	Sidewalk  Type = "sidewalk"
	Road      Type = "road"
	Crosswalk Type = "crosswalk"
)

// TypeProperty is the feature property holding the network type.
const TypeProperty = "f_type"

// Types lists the known network types in display order.
var Types = []Type{Sidewalk, Road, Crosswalk}

// ParseTypes converts layer names to types, ignoring unknown names.
func ParseTypes(names []string) []Type {
	var out []Type
	for _, n := range names {
		for _, t := range Types {
			if string(t) == n {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// FeatureType returns the network type of f. Features without an f_type
// property are sidewalks.
func FeatureType(f *geojson.Feature) Type {
	if f == nil || f.Properties == nil {
		return Sidewalk
	}
	s := f.Properties.MustString(TypeProperty, "")
	if s == "" {
		return Sidewalk
	}
	return Type(s)
}

// TileNetworks holds every loaded year of one tile. Collections are shared
// with the cache and must be treated as read-only.
type TileNetworks struct {
	TileID string
	ByYear map[int]*geojson.FeatureCollection
}

// Year returns the collection for a year, if loaded.
func (t *TileNetworks) Year(year int) (*geojson.FeatureCollection, bool) {
	if t == nil || t.ByYear == nil {
		return nil, false
	}
	fc, ok := t.ByYear[year]
	return fc, ok && fc != nil
}

// Years returns the number of years with data.
func (t *TileNetworks) Years() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, fc := range t.ByYear {
		if fc != nil {
			n++
		}
	}
	return n
}

// Merge concatenates the features of each tile for one year, in ids order.
// Coordinates are not transformed; tiles without data for the year add
// nothing.
func Merge(ids []string, year int, data map[string]*TileNetworks) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, id := range ids {
		fc, ok := data[id].Year(year)
		if !ok {
			continue
		}
		out.Features = append(out.Features, fc.Features...)
	}
	return out
}

// RemapCollection returns a deep copy of fc with every geometry moved from
// the src frame into the dst frame. fc is not modified.
func RemapCollection(fc *geojson.FeatureCollection, src, dst geo.Bounds) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		nf := geojson.NewFeature(geo.RemapGeometry(f.Geometry, src, dst))
		nf.ID = f.ID
		nf.Properties = f.Properties.Clone()
		out.Features = append(out.Features, nf)
	}
	return out
}

// FilterLayers returns a collection holding only features of the given
// types. An empty types list keeps everything.
func FilterLayers(fc *geojson.FeatureCollection, types []Type) *geojson.FeatureCollection {
	if fc == nil {
		return geojson.NewFeatureCollection()
	}
	if len(types) == 0 {
		return fc
	}
	keep := make(map[Type]bool, len(types))
	for _, t := range types {
		keep[t] = true
	}
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if keep[FeatureType(f)] {
			out.Features = append(out.Features, f)
		}
	}
	return out
}
