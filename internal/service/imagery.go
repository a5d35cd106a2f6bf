package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/cache"
	"github.com/sidewalk-timeline/server/internal/data/tiles"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/internal/network"
	"github.com/sidewalk-timeline/server/internal/render"
	"github.com/sidewalk-timeline/server/pkg/colormap"
)

// TileImageryPath returns the imagery file of one tile for pass-through
// serving.
func (s *TimelineService) TileImageryPath(id string, year int) (string, error) {
	if _, err := s.Tile(id); err != nil {
		return "", err
	}
	if err := checkYear(year); err != nil {
		return "", err
	}
	path := s.reader.ImageryPath(id, year)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", eris.Wrapf(tiles.ErrNotFound, "imagery %s/%d", id, year)
	}
	return path, nil
}

func (s *TimelineService) format(format string) (string, error) {
	if format == "" {
		return s.stitcher.Format(), nil
	}
	if format != render.FormatPNG && format != render.FormatWebP {
		return "", eris.Wrapf(ErrBadFormat, "format %q", format)
	}
	return format, nil
}

// cells resolves the grid cells of a validated selection. A single tile
// without a grid marker sits at the layout origin.
func (s *TimelineService) cells(ids []string, layout grid.Layout) []render.Cell {
	idx := s.reader.Index()
	out := make([]render.Cell, 0, len(ids))
	for _, id := range canonical(ids) {
		pos, ok := idx.Position(id)
		if !ok {
			pos = grid.Position{Row: layout.MaxRow, Col: layout.MinCol}
		}
		out = append(out, render.Cell{TileID: id, Position: pos})
	}
	return out
}

// composite validates ids and stitches their imagery for year.
func (s *TimelineService) composite(ctx context.Context, ids []string, year int) (*render.Composite, error) {
	layout, err := s.Validate(ids)
	if err != nil {
		return nil, err
	}
	if err := checkYear(year); err != nil {
		return nil, err
	}
	return s.stitcher.Stitch(ctx, render.StitchRequest{
		Cells:  s.cells(ids, layout),
		Layout: layout,
		Year:   year,
	})
}

type encodedImage struct {
	data      []byte
	available bool
}

// storeImage caches an encoded image. A failed write only costs a later
// recompute.
func (s *TimelineService) storeImage(ctx context.Context, key string, data []byte) {
	err := s.cache.SetImage(ctx, key, data)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrEntryTooLarge):
		zap.L().Debug("image too large for cache", zap.String("key", key), zap.Int("bytes", len(data)))
	default:
		zap.L().Warn("cache image", zap.String("key", key), zap.Error(err))
	}
}

// StitchedImagery returns the encoded composite of a selection for one
// year. available is false when no tile had imagery; the image is then
// fully transparent.
func (s *TimelineService) StitchedImagery(ctx context.Context, ids []string, year int, format string) (data []byte, available bool, err error) {
	format, err = s.format(format)
	if err != nil {
		return nil, false, err
	}
	key := cache.StitchKey(ids, year, format)
	if data, ok := s.cache.GetImage(ctx, key); ok {
		return data, true, nil
	}

	v, err := shared(ctx, &s.imageBuilds, key, func(ctx context.Context) (interface{}, error) {
		comp, err := s.composite(ctx, ids, year)
		if err != nil {
			return nil, err
		}
		data, err := s.stitcher.Encode(comp.Image, format)
		if err != nil {
			return nil, err
		}
		img := encodedImage{data: data, available: comp.Loaded() > 0}
		if img.available {
			s.storeImage(ctx, key, data)
		}
		return img, nil
	})
	if err != nil {
		return nil, false, err
	}
	img := v.(encodedImage)
	return img.data, img.available, nil
}

// OverlayOptions tunes the overlay preview. A nil NetworkOpacity draws the
// network fully opaque.
type OverlayOptions struct {
	Layers         []network.Type
	NetworkOpacity *float64
}

func (o OverlayOptions) opacity() float64 {
	if o.NetworkOpacity == nil || math.IsNaN(*o.NetworkOpacity) {
		return 1
	}
	return min(max(*o.NetworkOpacity, 0), 1)
}

// Overlay draws the merged selection network over its stitched imagery.
// The combined network bounds are the geographic frame of the canvas.
func (s *TimelineService) Overlay(ctx context.Context, ids []string, year int, opts OverlayOptions) (data []byte, available bool, err error) {
	opacity := opts.opacity()
	key := cache.StitchKey(ids, year, fmt.Sprintf("overlay:%s:%s", layerKey(opts.Layers), strconv.FormatFloat(opacity, 'f', 2, 64)))
	if data, ok := s.cache.GetImage(ctx, key); ok {
		return data, true, nil
	}

	v, err := shared(ctx, &s.imageBuilds, key, func(ctx context.Context) (interface{}, error) {
		comp, err := s.composite(ctx, ids, year)
		if err != nil {
			return nil, err
		}
		fc, hasNetwork, err := s.SelectionNetwork(ctx, ids, year, opts.Layers)
		if err != nil {
			return nil, err
		}
		frame, err := s.CombinedBounds(ids)
		if err != nil {
			return nil, err
		}

		var out image.Image = comp.Image
		if hasNetwork {
			out = s.overlay.Render(comp.Image, fc, frame, render.OverlayOptions{
				Opacity: &opacity,
				Palette: colormap.Layers,
			})
		}
		data, err := s.stitcher.Encode(out, render.FormatPNG)
		if err != nil {
			return nil, err
		}

		img := encodedImage{data: data, available: comp.Loaded() > 0 || hasNetwork}
		if img.available {
			s.storeImage(ctx, key, data)
		}
		return img, nil
	})
	if err != nil {
		return nil, false, err
	}
	img := v.(encodedImage)
	return img.data, img.available, nil
}
