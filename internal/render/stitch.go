// Package render composes tile imagery into selection images and draws
// network overlays using fogleman/gg.
package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/gen2brain/webp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/sidewalk-timeline/server/internal/fanout"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/internal/metrics"
)

// Output formats.
const (
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// Config contains renderer configuration.
type Config struct {
	TileSize    int
	Format      string
	WebPQuality int
	LineWidth   float64
	Concurrency int
}

// ImageLoader loads the imagery of one tile for one year.
type ImageLoader interface {
	LoadImagery(ctx context.Context, id string, year int) (image.Image, error)
}

// Cell is a tile placed on the grid.
type Cell struct {
	TileID   string
	Position grid.Position
}

// StitchRequest describes a validated rectangular selection.
type StitchRequest struct {
	Cells  []Cell
	Layout grid.Layout
	Year   int
}

// Placement records where a tile was drawn.
type Placement struct {
	TileID string `json:"tile_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Loaded bool   `json:"loaded"`
}

// Composite is a stitched selection image.
type Composite struct {
	Image      image.Image
	Width      int
	Height     int
	Placements []Placement
}

// Loaded counts the tiles that were drawn.
func (c *Composite) Loaded() int {
	n := 0
	for _, p := range c.Placements {
		if p.Loaded {
			n++
		}
	}
	return n
}

// Stitcher draws the imagery of every tile in a selection onto one canvas.
type Stitcher struct {
	config     Config
	loader     ImageLoader
	bufferPool sync.Pool
}

// NewStitcher creates a new stitcher.
func NewStitcher(cfg Config, loader ImageLoader) *Stitcher {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 512
	}
	if cfg.Format == "" {
		cfg.Format = FormatPNG
	}
	return &Stitcher{
		config: cfg,
		loader: loader,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 256*1024))
			},
		},
	}
}

// TileSize returns the slot size in pixels.
func (s *Stitcher) TileSize() int {
	return s.config.TileSize
}

// Format returns the default output format.
func (s *Stitcher) Format() string {
	return s.config.Format
}

// Offset returns the canvas position of a grid cell. Row numbers grow
// northward, so the highest row is drawn at the top.
func Offset(pos grid.Position, layout grid.Layout, tileSize int) (x, y int) {
	return (pos.Col - layout.MinCol) * tileSize, (layout.MaxRow - pos.Row) * tileSize
}

// Stitch loads every tile image concurrently and draws the loaded ones.
// Tiles that fail to load leave a transparent gap; the composite is built
// once every load has settled.
func (s *Stitcher) Stitch(ctx context.Context, req StitchRequest) (*Composite, error) {
	if req.Layout.Rows <= 0 || req.Layout.Cols <= 0 {
		return nil, eris.New("render: empty layout")
	}
	start := time.Now()
	ts := s.config.TileSize

	results := fanout.Settle(ctx, len(req.Cells), s.config.Concurrency, func(ctx context.Context, i int) (image.Image, error) {
		return s.loader.LoadImagery(ctx, req.Cells[i].TileID, req.Year)
	})

	comp := &Composite{
		Width:      req.Layout.Cols * ts,
		Height:     req.Layout.Rows * ts,
		Placements: make([]Placement, len(req.Cells)),
	}
	dc := gg.NewContext(comp.Width, comp.Height)

	for _, r := range results {
		cell := req.Cells[r.Index]
		x, y := Offset(cell.Position, req.Layout, ts)
		comp.Placements[r.Index] = Placement{TileID: cell.TileID, X: x, Y: y}

		if !r.OK() {
			metrics.ImageLoadFailuresTotal.Inc()
			zap.L().Debug("tile image unavailable",
				zap.String("tile", cell.TileID), zap.Int("year", req.Year), zap.Error(r.Err))
			continue
		}
		dc.DrawImage(fitTile(r.Value, ts), x, y)
		comp.Placements[r.Index].Loaded = true
	}

	comp.Image = dc.Image()
	metrics.StitchDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	return comp, nil
}

// fitTile scales img into a size×size square when needed.
func fitTile(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size && b.Min == (image.Point{}) {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// Encode encodes img as PNG or WebP.
func (s *Stitcher) Encode(img image.Image, format string) ([]byte, error) {
	if format == "" {
		format = s.config.Format
	}
	buf := s.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		s.bufferPool.Put(buf)
	}()

	switch format {
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := encoder.Encode(buf, img); err != nil {
			return nil, eris.Wrap(err, "render: encode png")
		}
	case FormatWebP:
		quality := s.config.WebPQuality
		if quality <= 0 {
			quality = 85
		}
		if err := webp.Encode(buf, img, webp.Options{Quality: quality}); err != nil {
			return nil, eris.Wrap(err, "render: encode webp")
		}
	default:
		return nil, eris.Errorf("render: unsupported format %q", format)
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// Empty returns a fully transparent image covering layout.
func (s *Stitcher) Empty(layout grid.Layout) image.Image {
	rows, cols := max(layout.Rows, 1), max(layout.Cols, 1)
	return image.NewRGBA(image.Rect(0, 0, cols*s.config.TileSize, rows*s.config.TileSize))
}
