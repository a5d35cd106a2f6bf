package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidewalk-timeline/server/internal/geo"
	"github.com/sidewalk-timeline/server/internal/grid"
	"github.com/sidewalk-timeline/server/pkg/colormap"
)

type fakeLoader struct {
	mu     sync.Mutex
	images map[string]image.Image
	calls  []string
}

func (f *fakeLoader) LoadImagery(_ context.Context, id string, _ int) (image.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	img, ok := f.images[id]
	if !ok {
		return nil, errors.New("no imagery")
	}
	return img, nil
}

func solid(size int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

var (
	red   = color.RGBA{255, 0, 0, 255}
	green = color.RGBA{0, 255, 0, 255}
	blue  = color.RGBA{0, 0, 255, 255}
	white = color.RGBA{255, 255, 255, 255}
)

func TestOffset_NorthernRowOnTop(t *testing.T) {
	layout := grid.Layout{MinRow: 5, MaxRow: 6, MinCol: 3, MaxCol: 4, Rows: 2, Cols: 2}
	for col := 3; col <= 4; col++ {
		_, y := Offset(grid.Position{Row: 6, Col: col}, layout, 512)
		assert.Equal(t, 0, y)
		_, y = Offset(grid.Position{Row: 5, Col: col}, layout, 512)
		assert.Equal(t, 512, y)
	}
	x, _ := Offset(grid.Position{Row: 5, Col: 4}, layout, 512)
	assert.Equal(t, 512, x)
}

func TestStitch_TwoByTwo(t *testing.T) {
	loader := &fakeLoader{images: map[string]image.Image{
		"r6c3": solid(512, red),
		"r6c4": solid(512, green),
		"r5c3": solid(512, blue),
		"r5c4": solid(512, white),
	}}
	s := NewStitcher(Config{TileSize: 512, Concurrency: 2}, loader)

	comp, err := s.Stitch(context.Background(), StitchRequest{
		Cells: []Cell{
			{TileID: "r5c3", Position: grid.Position{Row: 5, Col: 3}},
			{TileID: "r5c4", Position: grid.Position{Row: 5, Col: 4}},
			{TileID: "r6c3", Position: grid.Position{Row: 6, Col: 3}},
			{TileID: "r6c4", Position: grid.Position{Row: 6, Col: 4}},
		},
		Layout: grid.Layout{MinRow: 5, MaxRow: 6, MinCol: 3, MaxCol: 4, Rows: 2, Cols: 2},
		Year:   2024,
	})
	require.NoError(t, err)

	assert.Equal(t, 1024, comp.Width)
	assert.Equal(t, 1024, comp.Height)
	assert.Equal(t, 4, comp.Loaded())
	assert.Equal(t, Placement{TileID: "r6c3", X: 0, Y: 0, Loaded: true}, comp.Placements[2])
	assert.Equal(t, Placement{TileID: "r5c4", X: 512, Y: 512, Loaded: true}, comp.Placements[1])

	assert.Equal(t, red, rgbaAt(comp.Image, 10, 10))
	assert.Equal(t, green, rgbaAt(comp.Image, 600, 10))
	assert.Equal(t, blue, rgbaAt(comp.Image, 10, 600))
	assert.Equal(t, white, rgbaAt(comp.Image, 600, 600))
}

func TestStitch_SingleRowScenario(t *testing.T) {
	loader := &fakeLoader{images: map[string]image.Image{
		"tile_12": solid(512, red),
		"tile_13": solid(512, green),
	}}
	s := NewStitcher(Config{}, loader)

	comp, err := s.Stitch(context.Background(), StitchRequest{
		Cells: []Cell{
			{TileID: "tile_12", Position: grid.Position{Row: 3, Col: 5}},
			{TileID: "tile_13", Position: grid.Position{Row: 3, Col: 6}},
		},
		Layout: grid.Layout{MinRow: 3, MaxRow: 3, MinCol: 5, MaxCol: 6, Rows: 1, Cols: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 1024, 512), comp.Image.Bounds())
	assert.Equal(t, Placement{TileID: "tile_12", X: 0, Y: 0, Loaded: true}, comp.Placements[0])
	assert.Equal(t, Placement{TileID: "tile_13", X: 512, Y: 0, Loaded: true}, comp.Placements[1])
}

func TestStitch_FailedLoadLeavesGap(t *testing.T) {
	loader := &fakeLoader{images: map[string]image.Image{"a": solid(512, red)}}
	s := NewStitcher(Config{TileSize: 512}, loader)

	comp, err := s.Stitch(context.Background(), StitchRequest{
		Cells: []Cell{
			{TileID: "a", Position: grid.Position{Row: 1, Col: 1}},
			{TileID: "missing", Position: grid.Position{Row: 1, Col: 2}},
		},
		Layout: grid.Layout{MinRow: 1, MaxRow: 1, MinCol: 1, MaxCol: 2, Rows: 1, Cols: 2},
	})
	require.NoError(t, err)

	assert.Len(t, loader.calls, 2, "every tile is attempted")
	assert.Equal(t, 1, comp.Loaded())
	assert.False(t, comp.Placements[1].Loaded)
	assert.Equal(t, red, rgbaAt(comp.Image, 100, 100))
	assert.Equal(t, color.RGBA{}, rgbaAt(comp.Image, 700, 100))
}

func TestStitch_ScalesOddSizedTiles(t *testing.T) {
	loader := &fakeLoader{images: map[string]image.Image{"small": solid(64, blue)}}
	s := NewStitcher(Config{TileSize: 128}, loader)

	comp, err := s.Stitch(context.Background(), StitchRequest{
		Cells:  []Cell{{TileID: "small", Position: grid.Position{Row: 0, Col: 0}}},
		Layout: grid.Layout{Rows: 1, Cols: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, blue, rgbaAt(comp.Image, 127, 127))
	assert.Equal(t, blue, rgbaAt(comp.Image, 64, 64))
}

func TestStitch_EmptyLayout(t *testing.T) {
	s := NewStitcher(Config{}, &fakeLoader{})
	_, err := s.Stitch(context.Background(), StitchRequest{})
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	s := NewStitcher(Config{TileSize: 16}, &fakeLoader{})
	img := solid(16, red)

	data, err := s.Encode(img, FormatPNG)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, red, rgbaAt(decoded, 5, 5))

	data, err = s.Encode(img, FormatWebP)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WEBP", string(data[8:12]))

	_, err = s.Encode(img, "gif")
	assert.Error(t, err)
}

func TestEmpty(t *testing.T) {
	s := NewStitcher(Config{TileSize: 512}, &fakeLoader{})
	img := s.Empty(grid.Layout{Rows: 1, Cols: 2})
	assert.Equal(t, image.Rect(0, 0, 1024, 512), img.Bounds())
	assert.Equal(t, color.RGBA{}, rgbaAt(img, 0, 0))
}

func TestOverlay_DrawsLayerColors(t *testing.T) {
	frame := geo.Bounds{North: 1, South: 0, East: 1, West: 0}
	road := geojson.NewFeature(orb.LineString{{0, 0.5}, {1, 0.5}})
	road.Properties["f_type"] = "road"
	sidewalk := geojson.NewFeature(orb.LineString{{0.25, 0}, {0.25, 1}})
	fc := geojson.NewFeatureCollection()
	fc.Append(road)
	fc.Append(sidewalk)

	base := image.NewRGBA(image.Rect(0, 0, 100, 100))
	out := NewOverlayRenderer(Config{LineWidth: 4}).Render(base, fc, frame, OverlayOptions{})

	assert.Equal(t, colormap.Layers.Color("road"), rgbaAt(out, 75, 50))
	assert.Equal(t, colormap.Layers.Color("sidewalk"), rgbaAt(out, 25, 80))
	assert.Equal(t, color.RGBA{}, rgbaAt(out, 75, 90))
	assert.Equal(t, color.RGBA{}, rgbaAt(base, 75, 50), "base image is not modified")
}

func TestOverlay_NoFeatures(t *testing.T) {
	base := solid(8, green)
	out := NewOverlayRenderer(Config{}).Render(base, nil, geo.Bounds{}, OverlayOptions{})
	assert.Equal(t, green, rgbaAt(out, 4, 4))
}

func TestOverlay_ZeroOpacityDrawsNothing(t *testing.T) {
	frame := geo.Bounds{North: 1, South: 0, East: 1, West: 0}
	road := geojson.NewFeature(orb.LineString{{0, 0.5}, {1, 0.5}})
	road.Properties["f_type"] = "road"
	fc := geojson.NewFeatureCollection()
	fc.Append(road)

	base := solid(16, green)
	zero := 0.0
	out := NewOverlayRenderer(Config{LineWidth: 4}).Render(base, fc, frame, OverlayOptions{Opacity: &zero})
	assert.Equal(t, green, rgbaAt(out, 8, 8))

	half := 0.5
	out = NewOverlayRenderer(Config{LineWidth: 4}).Render(base, fc, frame, OverlayOptions{Opacity: &half})
	assert.NotEqual(t, green, rgbaAt(out, 8, 8))
}
