package network

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/stat"
)

// LayerSummary aggregates the features of one type.
type LayerSummary struct {
	Count       int     `json:"count"`
	LengthM     float64 `json:"length_m"`
	AreaM2      float64 `json:"area_m2"`
	MeanLengthM float64 `json:"mean_length_m"`
	LengthPerKm float64 `json:"length_m_per_km2"`
}

// Summary aggregates a feature collection by network type.
type Summary struct {
	Features int                   `json:"features"`
	AreaKm2  float64               `json:"area_km2"`
	Layers   map[Type]LayerSummary `json:"layers"`
}

// Summarize computes per-type counts, geodesic lengths (lineal geometries)
// and areas (polygonal geometries). areaKm2 is the extent the collection
// covers and is used for densities; pass 0 to skip them.
func Summarize(fc *geojson.FeatureCollection, areaKm2 float64) Summary {
	s := Summary{AreaKm2: areaKm2, Layers: make(map[Type]LayerSummary, len(Types))}
	for _, t := range Types {
		s.Layers[t] = LayerSummary{}
	}
	if fc == nil {
		return s
	}

	lengths := make(map[Type][]float64)
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		t := FeatureType(f)
		ls := s.Layers[t]
		ls.Count++

		switch f.Geometry.(type) {
		case orb.LineString, orb.MultiLineString:
			l := geo.Length(f.Geometry)
			ls.LengthM += l
			lengths[t] = append(lengths[t], l)
		case orb.Polygon, orb.MultiPolygon:
			ls.AreaM2 += geo.Area(f.Geometry)
		}

		s.Layers[t] = ls
		s.Features++
	}

	for t, ls := range s.Layers {
		if v := lengths[t]; len(v) > 0 {
			ls.MeanLengthM = stat.Mean(v, nil)
		}
		if areaKm2 > 0 {
			ls.LengthPerKm = ls.LengthM / areaKm2
		}
		s.Layers[t] = ls
	}
	return s
}
