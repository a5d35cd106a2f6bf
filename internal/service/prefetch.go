package service

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/fanout"
)

var errIncompleteNetworks = eris.New("some network years failed to load")

// PrefetchRequest names the artifacts to warm. Empty years mean every
// survey year; empty formats mean the default output format.
type PrefetchRequest struct {
	Tiles   []string
	Years   []int
	Formats []string
}

// PrefetchProgress reports how far a prefetch has come.
type PrefetchProgress struct {
	Phase  string `json:"phase"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
}

// Normalize fills defaults and rejects unknown tiles, years or formats.
func (s *TimelineService) Normalize(req PrefetchRequest) (PrefetchRequest, error) {
	if err := s.checkTiles(req.Tiles); err != nil {
		return req, err
	}
	out := PrefetchRequest{
		Tiles:   canonical(req.Tiles),
		Years:   append([]int(nil), req.Years...),
		Formats: append([]string(nil), req.Formats...),
	}
	if len(out.Tiles) == 0 {
		out.Tiles = make([]string, 0, len(s.reader.Tiles()))
		for _, t := range s.reader.Tiles() {
			out.Tiles = append(out.Tiles, t.ID)
		}
	}
	if len(out.Years) == 0 {
		out.Years = s.Years()
	}
	for _, y := range out.Years {
		if err := checkYear(y); err != nil {
			return req, err
		}
	}
	if len(out.Formats) == 0 {
		out.Formats = []string{s.stitcher.Format()}
	}
	for i, f := range out.Formats {
		f, err := s.format(f)
		if err != nil {
			return req, err
		}
		out.Formats[i] = f
	}
	return out, nil
}

// Total returns the number of work items a normalized request produces.
func (r PrefetchRequest) Total() int {
	return len(r.Tiles) + len(r.Tiles)*len(r.Years)*len(r.Formats)
}

// Prefetch loads the networks of every tile and renders its imagery for
// each year and format into the cache. Individual failures are counted,
// not returned; the error is ctx.Err() when the run was cancelled.
func (s *TimelineService) Prefetch(ctx context.Context, req PrefetchRequest, progress func(PrefetchProgress)) (PrefetchProgress, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return PrefetchProgress{}, err
	}

	var mu sync.Mutex
	p := PrefetchProgress{Phase: "networks", Total: req.Total()}
	step := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		p.Done++
		if err != nil {
			p.Failed++
		}
		if progress != nil {
			progress(p)
		}
	}

	fanout.Settle(ctx, len(req.Tiles), s.concurrency, func(ctx context.Context, i int) (struct{}, error) {
		_, complete, err := s.tileNetworks(ctx, req.Tiles[i])
		if err == nil && !complete {
			err = errIncompleteNetworks
		}
		step(err)
		return struct{}{}, err
	})
	if err := ctx.Err(); err != nil {
		return p, err
	}

	mu.Lock()
	p.Phase = "imagery"
	mu.Unlock()

	type item struct {
		id     string
		year   int
		format string
	}
	items := make([]item, 0, p.Total-len(req.Tiles))
	for _, id := range req.Tiles {
		for _, y := range req.Years {
			for _, f := range req.Formats {
				items = append(items, item{id, y, f})
			}
		}
	}

	fanout.Settle(ctx, len(items), s.concurrency, func(ctx context.Context, i int) (struct{}, error) {
		it := items[i]
		_, _, err := s.StitchedImagery(ctx, []string{it.id}, it.year, it.format)
		if err != nil {
			zap.L().Debug("prefetch imagery", zap.String("tile", it.id), zap.Int("year", it.year), zap.Error(err))
		}
		step(err)
		return struct{}{}, err
	})
	if err := ctx.Err(); err != nil {
		return p, err
	}

	mu.Lock()
	defer mu.Unlock()
	p.Phase = "done"
	return p, nil
}
