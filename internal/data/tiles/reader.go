// Package tiles reads the tile catalog and per-tile imagery and network files
// produced by the extraction pipeline.
//
// Layout under the data root:
//
//	tiles_index.json
//	tiles/<tile_id>/metadata.json
//	tiles/<tile_id>/imagery/<year>.png
//	tiles/<tile_id>/networks/<year>.geojson[.zst|.gz]
package tiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gen2brain/webp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sidewalk-timeline/server/internal/geo"
	"github.com/sidewalk-timeline/server/internal/grid"
)

// Years is the fixed even-year cadence of the imagery and network data.
var Years = []int{2004, 2006, 2008, 2010, 2012, 2014, 2016, 2018, 2020, 2022, 2024}

// ErrNotFound is returned when a tile has no file for the requested year.
var ErrNotFound = eris.New("tiles: not found")

// IsYear reports whether year is one of Years.
func IsYear(year int) bool {
	for _, y := range Years {
		if y == year {
			return true
		}
	}
	return false
}

// YearAvailability records which files exist for one year.
type YearAvailability struct {
	Imagery bool `json:"imagery"`
	Network bool `json:"network"`
}

// Tile is one catalog entry.
type Tile struct {
	ID            string                   `json:"id"`
	Name          string                   `json:"name"`
	Bounds        geo.Bounds               `json:"bounds"`
	NetworkBounds *geo.Bounds              `json:"network_bounds,omitempty"`
	Position      *grid.Position           `json:"position,omitempty"`
	Availability  map[int]YearAvailability `json:"availability"`
}

// Network returns the frame the tile's network coordinates are expressed in.
func (t *Tile) Network() geo.Bounds {
	if t.NetworkBounds != nil {
		return *t.NetworkBounds
	}
	return t.Bounds
}

// HasYear reports whether the tile has any data for year.
func (t *Tile) HasYear(year int) bool {
	a := t.Availability[year]
	return a.Imagery || a.Network
}

type indexEntry struct {
	TileID string     `json:"tile_id"`
	Bounds geo.Bounds `json:"bounds"`
}

type tileMetadata struct {
	Name          string      `json:"name"`
	NetworkBounds *geo.Bounds `json:"network_bounds"`
}

// networkSuffixes are tried in order when opening a network file.
var networkSuffixes = []string{".geojson", ".geojson.zst", ".geojson.gz"}

// Reader provides access to the tile data directory. The catalog is loaded
// once; file contents are read on demand.
type Reader struct {
	root       string
	imageryExt string
	tiles      map[string]*Tile
	order      []string
	index      *grid.Index
	decoder    *zstd.Decoder
}

// NewReader loads the catalog under root. imageryExt is the imagery file
// extension without the dot ("png" when empty).
func NewReader(root, imageryExt string) (*Reader, error) {
	if imageryExt == "" {
		imageryExt = "png"
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, eris.Wrap(err, "tiles: create zstd decoder")
	}

	r := &Reader{
		root:       root,
		imageryExt: imageryExt,
		tiles:      make(map[string]*Tile),
		decoder:    decoder,
	}
	if err := r.loadCatalog(); err != nil {
		decoder.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) loadCatalog() error {
	data, err := os.ReadFile(filepath.Join(r.root, "tiles_index.json"))
	if err != nil {
		return eris.Wrap(err, "tiles: read tiles_index.json")
	}
	var entries []indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return eris.Wrap(err, "tiles: parse tiles_index.json")
	}

	gridEntries := make([]grid.Entry, 0, len(entries))
	for _, e := range entries {
		if e.TileID == "" {
			zap.L().Warn("skipping catalog entry without tile_id")
			continue
		}
		if !e.Bounds.Valid() {
			zap.L().Warn("skipping tile with malformed bounds",
				zap.String("tile", e.TileID), zap.Stringer("bounds", e.Bounds))
			continue
		}
		if _, dup := r.tiles[e.TileID]; dup {
			zap.L().Warn("skipping duplicate catalog entry", zap.String("tile", e.TileID))
			continue
		}

		t := &Tile{ID: e.TileID, Name: e.TileID, Bounds: e.Bounds}
		r.loadMetadata(t)
		if pos, ok := grid.ParsePosition(t.Name); ok {
			t.Position = &pos
		}
		t.Availability = r.scanAvailability(t.ID)

		r.tiles[t.ID] = t
		r.order = append(r.order, t.ID)
		gridEntries = append(gridEntries, grid.Entry{ID: t.ID, Name: t.Name})
	}
	sort.Strings(r.order)

	r.index = grid.NewIndex(gridEntries)
	for _, id := range r.index.Duplicates {
		zap.L().Warn("tile shares a grid position with another tile; excluded from grid",
			zap.String("tile", id))
	}
	return nil
}

// loadMetadata fills name and network bounds. A missing or unreadable
// metadata file leaves the defaults in place.
func (r *Reader) loadMetadata(t *Tile) {
	data, err := os.ReadFile(filepath.Join(r.root, "tiles", t.ID, "metadata.json"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("read tile metadata", zap.String("tile", t.ID), zap.Error(err))
		}
		return
	}
	var meta tileMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		zap.L().Warn("parse tile metadata", zap.String("tile", t.ID), zap.Error(err))
		return
	}
	if meta.Name != "" {
		t.Name = meta.Name
	}
	if meta.NetworkBounds != nil {
		if meta.NetworkBounds.Valid() {
			nb := *meta.NetworkBounds
			t.NetworkBounds = &nb
		} else {
			zap.L().Warn("ignoring malformed network bounds, using imagery bounds",
				zap.String("tile", t.ID), zap.Stringer("bounds", *meta.NetworkBounds))
		}
	}
}

func (r *Reader) scanAvailability(id string) map[int]YearAvailability {
	out := make(map[int]YearAvailability, len(Years))
	for _, y := range Years {
		var a YearAvailability
		if fileExists(r.ImageryPath(id, y)) {
			a.Imagery = true
		}
		if _, ok := r.networkPath(id, y); ok {
			a.Network = true
		}
		if a.Imagery || a.Network {
			out[y] = a
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Index returns the grid index over the catalog.
func (r *Reader) Index() *grid.Index {
	return r.index
}

// Tile returns a catalog entry.
func (r *Reader) Tile(id string) (*Tile, bool) {
	t, ok := r.tiles[id]
	return t, ok
}

// Tiles returns all catalog entries ordered by ID.
func (r *Reader) Tiles() []*Tile {
	out := make([]*Tile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tiles[id])
	}
	return out
}

// ImageryPath returns the imagery file path for a tile and year.
func (r *Reader) ImageryPath(id string, year int) string {
	return filepath.Join(r.root, "tiles", id, "imagery", strconv.Itoa(year)+"."+r.imageryExt)
}

func (r *Reader) networkPath(id string, year int) (string, bool) {
	base := filepath.Join(r.root, "tiles", id, "networks", strconv.Itoa(year))
	for _, suffix := range networkSuffixes {
		p := base + suffix
		if fileExists(p) {
			return p, true
		}
	}
	return "", false
}

// LoadImagery decodes the imagery of a tile for one year.
func (r *Reader) LoadImagery(ctx context.Context, id string, year int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := r.tiles[id]; !ok {
		return nil, eris.Wrapf(ErrNotFound, "tile %s", id)
	}

	data, err := os.ReadFile(r.ImageryPath(id, year))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "imagery %s/%d", id, year)
		}
		return nil, eris.Wrapf(err, "tiles: read imagery %s/%d", id, year)
	}

	img, err := decodeImage(data, r.imageryExt)
	if err != nil {
		return nil, eris.Wrapf(err, "tiles: decode imagery %s/%d", id, year)
	}
	return img, nil
}

func decodeImage(data []byte, ext string) (image.Image, error) {
	rd := bytes.NewReader(data)
	switch ext {
	case "png":
		return png.Decode(rd)
	case "jpg", "jpeg":
		return jpeg.Decode(rd)
	case "webp":
		return webp.Decode(rd)
	default:
		return nil, eris.Errorf("unsupported imagery format %q", ext)
	}
}

// LoadNetwork reads the network feature collection of a tile for one year.
func (r *Reader) LoadNetwork(ctx context.Context, id string, year int) (*geojson.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := r.tiles[id]; !ok {
		return nil, eris.Wrapf(ErrNotFound, "tile %s", id)
	}
	path, ok := r.networkPath(id, year)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "network %s/%d", id, year)
	}

	data, err := r.readNetworkFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tiles: read network %s/%d", id, year)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "tiles: parse network %s/%d", id, year)
	}
	return fc, nil
}

func (r *Reader) readNetworkFile(path string) ([]byte, error) {
	switch filepath.Ext(path) {
	case ".zst":
		compressed, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return r.decoder.DecodeAll(compressed, nil)
	case ".gz":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return os.ReadFile(path)
	}
}

// Close releases the decoder.
func (r *Reader) Close() {
	if r.decoder != nil {
		r.decoder.Close()
	}
}
