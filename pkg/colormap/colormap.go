// Package colormap provides the colors used to draw network layers and
// per-year chart series.
package colormap

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Palette maps a layer name to a color.
type Palette map[string]color.RGBA

// Layers is the default network layer palette.
var Layers = Palette{
	"sidewalk":  MustHex("#4A90E2"),
	"road":      MustHex("#FF6B6B"),
	"crosswalk": MustHex("#4ECDC4"),
}

// fallback is used for layers missing from a palette.
var fallback = color.RGBA{127, 127, 127, 255}

// Color returns the color for a layer.
func (p Palette) Color(layer string) color.RGBA {
	if c, ok := p[layer]; ok {
		return c
	}
	return fallback
}

// WithAlpha returns c with its alpha scaled by opacity (0-1), premultiplied.
func WithAlpha(c color.RGBA, opacity float64) color.RGBA {
	if opacity >= 1 {
		return c
	}
	if opacity <= 0 {
		return color.RGBA{}
	}
	return color.RGBA{
		R: uint8(float64(c.R) * opacity),
		G: uint8(float64(c.G) * opacity),
		B: uint8(float64(c.B) * opacity),
		A: uint8(float64(c.A) * opacity),
	}
}

// ParseHex parses #RGB or #RRGGBB.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("colormap: invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colormap: invalid hex color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// MustHex is ParseHex for package-level literals.
func MustHex(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats c as #RRGGBB.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Ramp is a linear interpolation colormap.
type Ramp struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (r Ramp) At(t float64) color.RGBA {
	if t <= 0 {
		return r.colors[0]
	}
	if t >= 1 {
		return r.colors[len(r.colors)-1]
	}

	idx := t * float64(len(r.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(r.colors) {
		upper = len(r.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(r.colors[lower], r.colors[upper], frac)
}

// Series returns n evenly spaced colors along the ramp.
func (r Ramp) Series(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		if n == 1 {
			out[i] = r.At(1)
			continue
		}
		out[i] = r.At(float64(i) / float64(n-1))
	}
	return out
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

// Viridis colormap (matplotlib viridis), used for year series.
var Viridis = Ramp{
	colors: []color.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 144, 140, 255},
		{34, 167, 132, 255},
		{68, 190, 112, 255},
		{121, 209, 81, 255},
		{189, 222, 38, 255},
		{253, 231, 37, 255},
	},
}
