package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	// ScaleTolerance is the relative width/height mismatch below which two
	// boxes are treated as the same frame.
	ScaleTolerance = 0.01
	// OriginTolerance is the south-west corner offset, in degrees, below which
	// two boxes are treated as the same frame.
	OriginTolerance = 1e-4
)

// NeedsRemap reports whether src and dst differ enough that coordinates in
// src should be remapped into dst.
func NeedsRemap(src, dst Bounds) bool {
	if math.Abs(src.West-dst.West) > OriginTolerance || math.Abs(src.South-dst.South) > OriginTolerance {
		return true
	}
	return scaleDiffers(src.Width(), dst.Width()) || scaleDiffers(src.Height(), dst.Height())
}

func scaleDiffers(a, b float64) bool {
	if a == b {
		return false
	}
	if b == 0 {
		return true
	}
	return math.Abs(a/b-1) > ScaleTolerance
}

// normalize maps v into [0,1] relative to [lo, lo+span]. A zero span yields 0.
func normalize(v, lo, span float64) float64 {
	if span == 0 {
		return 0
	}
	return (v - lo) / span
}

// RemapPoint maps a lon/lat pair from the src frame into the dst frame.
func RemapPoint(p orb.Point, src, dst Bounds) orb.Point {
	nx := normalize(p[0], src.West, src.Width())
	ny := normalize(p[1], src.South, src.Height())
	return orb.Point{
		dst.West + nx*dst.Width(),
		dst.South + ny*dst.Height(),
	}
}

func remapPoints(pts []orb.Point, src, dst Bounds) []orb.Point {
	if pts == nil {
		return nil
	}
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = RemapPoint(p, src, dst)
	}
	return out
}

func remapPolygon(p orb.Polygon, src, dst Bounds) orb.Polygon {
	if p == nil {
		return nil
	}
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = orb.Ring(remapPoints(r, src, dst))
	}
	return out
}

// RemapGeometry returns a copy of g with every coordinate mapped from src to
// dst. g is never modified.
func RemapGeometry(g orb.Geometry, src, dst Bounds) orb.Geometry {
	switch g := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return RemapPoint(g, src, dst)
	case orb.MultiPoint:
		return orb.MultiPoint(remapPoints(g, src, dst))
	case orb.LineString:
		return orb.LineString(remapPoints(g, src, dst))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			out[i] = orb.LineString(remapPoints(ls, src, dst))
		}
		return out
	case orb.Ring:
		return orb.Ring(remapPoints(g, src, dst))
	case orb.Polygon:
		return remapPolygon(g, src, dst)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, p := range g {
			out[i] = remapPolygon(p, src, dst)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, child := range g {
			out[i] = RemapGeometry(child, src, dst)
		}
		return out
	case orb.Bound:
		return orb.Bound{
			Min: RemapPoint(g.Min, src, dst),
			Max: RemapPoint(g.Max, src, dst),
		}
	default:
		return orb.Clone(g)
	}
}
