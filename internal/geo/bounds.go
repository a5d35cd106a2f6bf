// Package geo holds the bounding-box arithmetic used to align network features
// with tile imagery.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Bounds is a geographic bounding box in decimal degrees.
type Bounds struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	West  float64 `json:"west" yaml:"west"`
}

// Valid reports whether the box has positive extent on both axes.
func (b Bounds) Valid() bool {
	return b.North > b.South && b.East > b.West
}

// Width returns the east-west extent in degrees.
func (b Bounds) Width() float64 { return b.East - b.West }

// Height returns the north-south extent in degrees.
func (b Bounds) Height() float64 { return b.North - b.South }

// Center returns the midpoint as lon/lat.
func (b Bounds) Center() orb.Point {
	return orb.Point{(b.West + b.East) / 2, (b.South + b.North) / 2}
}

// ToOrb converts to an orb.Bound (Min = south-west, Max = north-east).
func (b Bounds) ToOrb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// FromOrb converts an orb.Bound back into Bounds.
func FromOrb(b orb.Bound) Bounds {
	return Bounds{North: b.Max[1], South: b.Min[1], East: b.Max[0], West: b.Min[0]}
}

// AreaKm2 approximates the surface area of the box using an equirectangular
// projection at the box's mid latitude. Accurate enough for city-scale tiles.
func (b Bounds) AreaKm2() float64 {
	if !b.Valid() {
		return 0
	}
	midLat := (b.North + b.South) / 2 * math.Pi / 180
	widthKm := b.Width() * 111.320 * math.Cos(midLat)
	heightKm := b.Height() * 110.574
	return widthKm * heightKm
}

func (b Bounds) String() string {
	return fmt.Sprintf("[N %.6f S %.6f E %.6f W %.6f]", b.North, b.South, b.East, b.West)
}

// Combine returns the union of the given boxes. ok is false when no boxes
// are given.
func Combine(boxes ...Bounds) (union Bounds, ok bool) {
	if len(boxes) == 0 {
		return Bounds{}, false
	}
	union = boxes[0]
	for _, b := range boxes[1:] {
		union.South = math.Min(union.South, b.South)
		union.North = math.Max(union.North, b.North)
		union.West = math.Min(union.West, b.West)
		union.East = math.Max(union.East, b.East)
	}
	return union, true
}
