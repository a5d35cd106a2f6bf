package service

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sidewalk-timeline/server/internal/cache"
	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/pkg/colormap"
)

// YearStatistics summarizes the merged selection network for one year.
type YearStatistics struct {
	Year      int    `json:"year"`
	Color     string `json:"color"`
	Available bool   `json:"available"`
	network.Summary
}

// SelectionStatistics is the timeline of network statistics for a selection.
type SelectionStatistics struct {
	Tiles   []string         `json:"tiles"`
	AreaKm2 float64          `json:"area_km2"`
	Years   []YearStatistics `json:"years"`

	complete bool
}

// Statistics summarizes the selection network for every survey year.
func (s *TimelineService) Statistics(ctx context.Context, ids []string) (*SelectionStatistics, error) {
	if _, err := s.Validate(ids); err != nil {
		return nil, err
	}
	frame, err := s.CombinedBounds(ids)
	if err != nil {
		return nil, err
	}

	ordered := canonical(ids)
	data, complete, err := s.LoadNetworks(ctx, ordered)
	if err != nil {
		return nil, err
	}
	area := frame.AreaKm2()
	colors := colormap.Viridis.Series(len(tiles.Years))

	out := &SelectionStatistics{
		Tiles:    ordered,
		AreaKm2:  area,
		Years:    make([]YearStatistics, 0, len(tiles.Years)),
		complete: complete,
	}
	for i, year := range tiles.Years {
		ys := YearStatistics{Year: year, Color: colormap.Hex(colors[i])}
		for _, id := range ordered {
			if _, ok := data[id].Year(year); ok {
				ys.Available = true
				break
			}
		}
		ys.Summary = network.Summarize(network.Merge(ordered, year, data), area)
		out.Years = append(out.Years, ys)
	}
	return out, nil
}

// StatisticsJSON is Statistics encoded as JSON and cached.
func (s *TimelineService) StatisticsJSON(ctx context.Context, ids []string) ([]byte, error) {
	key := cache.QueryKey("stats", ids)
	if data, ok := s.cache.GetQuery(key); ok {
		return data, nil
	}
	st, err := s.Statistics(ctx, ids)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, eris.Wrap(err, "service: encode statistics")
	}
	if st.complete {
		s.cache.SetQuery(key, data)
	}
	return data, nil
}
