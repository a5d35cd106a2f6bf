package render

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/sidewalk-timeline/server/internal/geo"
	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/pkg/colormap"
)

// OverlayOptions controls how network features are drawn.
// A nil Opacity draws features fully opaque.
type OverlayOptions struct {
	LineWidth float64
	Opacity   *float64
	Palette   colormap.Palette
}

// OverlayRenderer draws network features on top of imagery.
type OverlayRenderer struct {
	lineWidth float64
}

// NewOverlayRenderer creates an overlay renderer with a default line width.
func NewOverlayRenderer(cfg Config) *OverlayRenderer {
	lw := cfg.LineWidth
	if lw <= 0 {
		lw = 2
	}
	return &OverlayRenderer{lineWidth: lw}
}

// Render draws fc over base. frame is the geographic extent base covers.
// Features are drawn in palette order so crosswalks end up above roads and
// sidewalks.
func (o *OverlayRenderer) Render(base image.Image, fc *geojson.FeatureCollection, frame geo.Bounds, opts OverlayOptions) image.Image {
	b := base.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(base, -b.Min.X, -b.Min.Y)
	if fc == nil || !frame.Valid() {
		return dc.Image()
	}

	lw := opts.LineWidth
	if lw <= 0 {
		lw = o.lineWidth
	}
	opacity := 1.0
	if opts.Opacity != nil {
		opacity = min(max(*opts.Opacity, 0), 1)
	}
	palette := opts.Palette
	if palette == nil {
		palette = colormap.Layers
	}

	proj := projector{frame: frame, w: float64(b.Dx()), h: float64(b.Dy())}
	dc.SetLineWidth(lw)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, t := range network.Types {
		dc.SetColor(colormap.WithAlpha(palette.Color(string(t)), opacity))
		for _, f := range fc.Features {
			if f == nil || network.FeatureType(f) != t {
				continue
			}
			drawGeometry(dc, proj, f.Geometry, lw)
		}
	}
	return dc.Image()
}

type projector struct {
	frame geo.Bounds
	w, h  float64
}

func (p projector) xy(pt orb.Point) (float64, float64) {
	x := (pt.Lon() - p.frame.West) / p.frame.Width() * p.w
	y := (p.frame.North - pt.Lat()) / p.frame.Height() * p.h
	return x, y
}

func drawGeometry(dc *gg.Context, p projector, g orb.Geometry, lw float64) {
	switch g := g.(type) {
	case orb.Point:
		x, y := p.xy(g)
		dc.DrawCircle(x, y, lw)
		dc.Fill()
	case orb.MultiPoint:
		for _, pt := range g {
			drawGeometry(dc, p, pt, lw)
		}
	case orb.LineString:
		tracePath(dc, p, g)
		dc.Stroke()
	case orb.MultiLineString:
		for _, ls := range g {
			drawGeometry(dc, p, ls, lw)
		}
	case orb.Polygon:
		for _, ring := range g {
			tracePath(dc, p, ring)
			dc.ClosePath()
		}
		dc.SetFillRuleEvenOdd()
		dc.FillPreserve()
		dc.Stroke()
	case orb.MultiPolygon:
		for _, poly := range g {
			drawGeometry(dc, p, poly, lw)
		}
	case orb.Collection:
		for _, sub := range g {
			drawGeometry(dc, p, sub, lw)
		}
	}
}

func tracePath(dc *gg.Context, p projector, pts []orb.Point) {
	dc.NewSubPath()
	for i, pt := range pts {
		x, y := p.xy(pt)
		if i == 0 {
			dc.MoveTo(x, y)
			continue
		}
		dc.LineTo(x, y)
	}
}
