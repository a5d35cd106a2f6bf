package geo

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	imageryBox = Bounds{North: 40.7551, South: 40.7500, East: -73.9979, West: -74.0034}
	networkBox = Bounds{North: 40.7560, South: 40.7495, East: -73.9970, West: -74.0040}
)

func TestRemapPoint_Corners(t *testing.T) {
	sw := RemapPoint(orb.Point{networkBox.West, networkBox.South}, networkBox, imageryBox)
	ne := RemapPoint(orb.Point{networkBox.East, networkBox.North}, networkBox, imageryBox)

	assert.InDelta(t, imageryBox.West, sw[0], 1e-12)
	assert.InDelta(t, imageryBox.South, sw[1], 1e-12)
	assert.InDelta(t, imageryBox.East, ne[0], 1e-12)
	assert.InDelta(t, imageryBox.North, ne[1], 1e-12)
}

func TestRemapPoint_Midpoint(t *testing.T) {
	src := Bounds{North: 10, South: 0, East: 10, West: 0}
	dst := Bounds{North: 2, South: 1, East: 30, West: 20}

	got := RemapPoint(orb.Point{5, 5}, src, dst)
	assert.Equal(t, orb.Point{25, 1.5}, got)
}

func TestRemapPoint_DegenerateSource(t *testing.T) {
	src := Bounds{North: 5, South: 5, East: 3, West: 3}
	dst := Bounds{North: 2, South: 1, East: 30, West: 20}

	got := RemapPoint(orb.Point{3, 5}, src, dst)
	assert.Equal(t, orb.Point{20, 1}, got, "zero-extent source normalizes to the origin")
}

func TestRemapPoint_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomBox := func() Bounds {
		west := -180 + rng.Float64()*300
		south := -80 + rng.Float64()*120
		return Bounds{
			West:  west,
			East:  west + 0.001 + rng.Float64()*10,
			South: south,
			North: south + 0.001 + rng.Float64()*10,
		}
	}

	for i := 0; i < 200; i++ {
		a, b := randomBox(), randomBox()
		p := orb.Point{
			a.West + rng.Float64()*a.Width(),
			a.South + rng.Float64()*a.Height(),
		}
		back := RemapPoint(RemapPoint(p, a, b), b, a)
		require.InDelta(t, p[0], back[0], 1e-9, "case %d lon", i)
		require.InDelta(t, p[1], back[1], 1e-9, "case %d lat", i)
	}
}

func TestRemapGeometry_DoesNotMutate(t *testing.T) {
	line := orb.LineString{{-74.0040, 40.7495}, {-73.9970, 40.7560}}
	orig := orb.Clone(line).(orb.LineString)

	out := RemapGeometry(line, networkBox, imageryBox)

	assert.Equal(t, orig, line)
	remapped, ok := out.(orb.LineString)
	require.True(t, ok)
	assert.InDelta(t, imageryBox.West, remapped[0][0], 1e-12)
	assert.InDelta(t, imageryBox.North, remapped[1][1], 1e-12)
}

func TestRemapGeometry_Variants(t *testing.T) {
	src := Bounds{North: 1, South: 0, East: 1, West: 0}
	dst := Bounds{North: 2, South: 0, East: 2, West: 0}
	ring := orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}

	tests := []struct {
		name string
		in   orb.Geometry
		want orb.Geometry
	}{
		{"point", orb.Point{0.5, 0.25}, orb.Point{1, 0.5}},
		{"multipoint", orb.MultiPoint{{1, 1}}, orb.MultiPoint{{2, 2}}},
		{"multilinestring", orb.MultiLineString{{{0, 0}, {1, 1}}}, orb.MultiLineString{{{0, 0}, {2, 2}}}},
		{"polygon", orb.Polygon{ring}, orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 0}}}},
		{"multipolygon", orb.MultiPolygon{{ring}}, orb.MultiPolygon{{{{0, 0}, {2, 0}, {2, 2}, {0, 0}}}}},
		{"collection", orb.Collection{orb.Point{1, 0}}, orb.Collection{orb.Point{2, 0}}},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RemapGeometry(tt.in, src, dst))
		})
	}
}

func TestNeedsRemap(t *testing.T) {
	base := Bounds{North: 40.76, South: 40.75, East: -73.99, West: -74.00}

	tests := []struct {
		name string
		dst  Bounds
		want bool
	}{
		{"identical", base, false},
		{"tiny origin shift", Bounds{North: 40.76005, South: 40.75005, East: -73.98995, West: -73.99995}, false},
		{"origin shift", Bounds{North: 40.7602, South: 40.7502, East: -73.9898, West: -73.9998}, true},
		{"half percent wider", Bounds{North: 40.76, South: 40.75, East: -73.98995, West: -74.00}, false},
		{"five percent taller", Bounds{North: 40.7605, South: 40.75, East: -73.99, West: -74.00}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsRemap(base, tt.dst))
		})
	}
}

func TestCombine(t *testing.T) {
	_, ok := Combine()
	assert.False(t, ok)

	a := Bounds{North: 2, South: 1, East: 2, West: 1}
	b := Bounds{North: 3, South: 0.5, East: 1.5, West: 0}
	got, ok := Combine(a, b)
	require.True(t, ok)
	assert.Equal(t, Bounds{North: 3, South: 0.5, East: 2, West: 0}, got)
}

func TestBounds_AreaKm2(t *testing.T) {
	assert.Zero(t, Bounds{}.AreaKm2())

	// 0.01 x 0.01 degrees near the equator is roughly 1.23 km².
	b := Bounds{North: 0.005, South: -0.005, East: 0.005, West: -0.005}
	assert.InDelta(t, 1.231, b.AreaKm2(), 0.01)
}

func TestBounds_OrbRoundTrip(t *testing.T) {
	assert.Equal(t, imageryBox, FromOrb(imageryBox.ToOrb()))
}
