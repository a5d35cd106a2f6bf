// Package service provides business logic for the tile server.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sidewalk-timeline/server/internal/cache"
	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/fanout"
	"github.com/sidewalk-timeline/server/internal/geo"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/internal/metrics"
	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/internal/render"
	"github.com/sidewalk-timeline/server/internal/selection"
)

var (
	ErrUnknownTile = eris.New("unknown tile")
	ErrUnknownYear = eris.New("no data for year")
	ErrBadFormat   = eris.New("unsupported image format")
)

// TimelineServiceConfig contains timeline service configuration.
type TimelineServiceConfig struct {
	Reader      *tiles.Reader
	Cache       *cache.Manager
	Stitcher    *render.Stitcher
	Overlay     *render.OverlayRenderer
	Concurrency int
}

// TimelineService serves tiles, selections and the artifacts derived from
// them. The catalog is read-only; every derived result is cached per key.
type TimelineService struct {
	reader      *tiles.Reader
	cache       *cache.Manager
	stitcher    *render.Stitcher
	overlay     *render.OverlayRenderer
	concurrency int

	networkLoads singleflight.Group
	imageBuilds  singleflight.Group
}

// NewTimelineService creates a new timeline service.
func NewTimelineService(cfg TimelineServiceConfig) *TimelineService {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &TimelineService{
		reader:      cfg.Reader,
		cache:       cfg.Cache,
		stitcher:    cfg.Stitcher,
		overlay:     cfg.Overlay,
		concurrency: concurrency,
	}
}

// Tiles returns the catalog ordered by ID.
func (s *TimelineService) Tiles() []*tiles.Tile {
	return s.reader.Tiles()
}

// Tile returns one catalog entry.
func (s *TimelineService) Tile(id string) (*tiles.Tile, error) {
	t, ok := s.reader.Tile(id)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownTile, "tile %s", id)
	}
	return t, nil
}

// Years returns the survey years.
func (s *TimelineService) Years() []int {
	return append([]int(nil), tiles.Years...)
}

// Index returns the grid index.
func (s *TimelineService) Index() *grid.Index {
	return s.reader.Index()
}

// CacheStats returns cache statistics.
func (s *TimelineService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}

func (s *TimelineService) checkTiles(ids []string) error {
	for _, id := range ids {
		if _, ok := s.reader.Tile(id); !ok {
			return eris.Wrapf(ErrUnknownTile, "tile %s", id)
		}
	}
	return nil
}

func checkYear(year int) error {
	if !tiles.IsYear(year) {
		return eris.Wrapf(ErrUnknownYear, "year %d", year)
	}
	return nil
}

// Validate checks that ids form a complete rectangle of 1-16 known tiles.
func (s *TimelineService) Validate(ids []string) (grid.Layout, error) {
	if err := s.checkTiles(ids); err != nil {
		return grid.Layout{}, err
	}
	layout, err := grid.Validate(ids, s.reader.Index())
	if err != nil {
		metrics.SelectionRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		return grid.Layout{}, err
	}
	return layout, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, grid.ErrTileCount):
		return "count"
	case errors.Is(err, grid.ErrUnparseable):
		return "unparseable"
	case errors.Is(err, grid.ErrNotRectangle):
		return "not_rectangle"
	case errors.Is(err, grid.ErrMissingTile):
		return "missing_tile"
	default:
		return "other"
	}
}

// Expand returns the preview tiles between start and end.
func (s *TimelineService) Expand(startID, endID string) ([]string, error) {
	if err := s.checkTiles([]string{startID, endID}); err != nil {
		return nil, err
	}
	return grid.Expand(startID, endID, s.reader.Index()), nil
}

// Reduce applies a UI event to a view state.
func (s *TimelineService) Reduce(state selection.State, ev selection.Event) selection.State {
	return selection.Reduce(state, ev, s.reader.Index())
}

// CombinedBounds returns the union of the network frames of ids.
func (s *TimelineService) CombinedBounds(ids []string) (geo.Bounds, error) {
	if len(ids) == 0 {
		return geo.Bounds{}, grid.ErrTileCount
	}
	boxes := make([]geo.Bounds, 0, len(ids))
	for _, id := range ids {
		t, err := s.Tile(id)
		if err != nil {
			return geo.Bounds{}, err
		}
		boxes = append(boxes, t.Network())
	}
	b, _ := geo.Combine(boxes...)
	return b, nil
}

// shared runs fn once per key. The work runs detached from the caller's
// cancellation so that a load in flight still completes and fills the cache
// after the request that started it goes away; a cancelled caller stops
// waiting and gets ctx.Err().
func shared(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

type tileLoad struct {
	tn       *network.TileNetworks
	complete bool
}

// LoadNetworks loads the networks of every tile. A tile that fails to load
// is absent from the result and complete is false; so is a tile with a year
// that failed for a reason other than a missing file. The only error is
// ctx.Err().
func (s *TimelineService) LoadNetworks(ctx context.Context, ids []string) (byTile map[string]*network.TileNetworks, complete bool, err error) {
	results := fanout.Settle(ctx, len(ids), s.concurrency, func(ctx context.Context, i int) (tileLoad, error) {
		tn, ok, err := s.tileNetworks(ctx, ids[i])
		return tileLoad{tn: tn, complete: ok}, err
	})
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	byTile = make(map[string]*network.TileNetworks, len(ids))
	complete = true
	for _, r := range results {
		if !r.OK() {
			zap.L().Warn("tile networks unavailable", zap.String("tile", ids[r.Index]), zap.Error(r.Err))
			complete = false
			continue
		}
		byTile[ids[r.Index]] = r.Value.tn
		complete = complete && r.Value.complete
	}
	return byTile, complete, nil
}

// tileNetworks returns every available year of one tile, loading it once.
// complete is false when some year failed to load; such results are not
// cached.
func (s *TimelineService) tileNetworks(ctx context.Context, id string) (*network.TileNetworks, bool, error) {
	if tn, ok := s.cache.GetNetworks(id); ok {
		return tn, true, nil
	}
	t, err := s.Tile(id)
	if err != nil {
		return nil, false, err
	}

	v, err := shared(ctx, &s.networkLoads, id, func(ctx context.Context) (interface{}, error) {
		years := make([]int, 0, len(t.Availability))
		for y, a := range t.Availability {
			if a.Network {
				years = append(years, y)
			}
		}
		sort.Ints(years)

		results := fanout.Settle(ctx, len(years), 0, func(ctx context.Context, i int) (*geojson.FeatureCollection, error) {
			return s.reader.LoadNetwork(ctx, id, years[i])
		})

		tn := &network.TileNetworks{TileID: id, ByYear: make(map[int]*geojson.FeatureCollection, len(years))}
		complete := true
		for _, r := range results {
			if r.OK() {
				tn.ByYear[years[r.Index]] = r.Value
				continue
			}
			if errors.Is(r.Err, tiles.ErrNotFound) {
				continue
			}
			complete = false
			metrics.NetworkLoadFailuresTotal.Inc()
			zap.L().Warn("load network",
				zap.String("tile", id), zap.Int("year", years[r.Index]), zap.Error(r.Err))
		}
		// Transient failures are retried on the next request.
		if complete {
			s.cache.SetNetworks(tn)
		}
		return tileLoad{tn: tn, complete: complete}, nil
	})
	if err != nil {
		return nil, false, err
	}
	l := v.(tileLoad)
	return l.tn, l.complete, nil
}

// TileNetwork returns one tile's network for a year, aligned to the tile's
// imagery frame. available is false when the tile has no network that year.
func (s *TimelineService) TileNetwork(ctx context.Context, id string, year int, layers []network.Type) (fc *geojson.FeatureCollection, available bool, err error) {
	t, err := s.Tile(id)
	if err != nil {
		return nil, false, err
	}
	if err := checkYear(year); err != nil {
		return nil, false, err
	}

	tn, _, err := s.tileNetworks(ctx, id)
	if err != nil {
		return nil, false, err
	}
	src, ok := tn.Year(year)
	if !ok {
		return geojson.NewFeatureCollection(), false, nil
	}
	if geo.NeedsRemap(t.Network(), t.Bounds) {
		src = network.RemapCollection(src, t.Network(), t.Bounds)
	}
	return network.FilterLayers(src, layers), true, nil
}

// SelectionNetwork merges the networks of a validated selection for a year.
// Coordinates are left in the shared geographic frame.
func (s *TimelineService) SelectionNetwork(ctx context.Context, ids []string, year int, layers []network.Type) (fc *geojson.FeatureCollection, available bool, err error) {
	fc, available, _, err = s.selectionNetwork(ctx, ids, year, layers)
	return fc, available, err
}

func (s *TimelineService) selectionNetwork(ctx context.Context, ids []string, year int, layers []network.Type) (fc *geojson.FeatureCollection, available, complete bool, err error) {
	if _, err := s.Validate(ids); err != nil {
		return nil, false, false, err
	}
	if err := checkYear(year); err != nil {
		return nil, false, false, err
	}

	ordered := canonical(ids)
	data, complete, err := s.LoadNetworks(ctx, ordered)
	if err != nil {
		return nil, false, false, err
	}
	for _, id := range ordered {
		if _, ok := data[id].Year(year); ok {
			available = true
			break
		}
	}
	merged := network.Merge(ordered, year, data)
	return network.FilterLayers(merged, layers), available, complete, nil
}

// SelectionNetworkJSON is SelectionNetwork encoded as GeoJSON and cached.
func (s *TimelineService) SelectionNetworkJSON(ctx context.Context, ids []string, year int, layers []network.Type) ([]byte, bool, error) {
	key := cache.QueryKey("network", ids, strconv.Itoa(year), layerKey(layers))
	// only complete selections with data for the year are cached
	if data, ok := s.cache.GetQuery(key); ok {
		return data, true, nil
	}

	fc, available, complete, err := s.selectionNetwork(ctx, ids, year, layers)
	if err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, false, eris.Wrap(err, "service: encode network")
	}
	if available && complete {
		s.cache.SetQuery(key, data)
	}
	return data, available, nil
}

// canonical returns a sorted copy so that every ordering of a selection
// shares one cached result.
func canonical(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func layerKey(layers []network.Type) string {
	if len(layers) == 0 {
		return "all"
	}
	names := make([]string, len(layers))
	for i, l := range layers {
		names[i] = string(l)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
