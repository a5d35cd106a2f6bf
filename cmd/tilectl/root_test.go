package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestData(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(path string, v any) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, data, 0o644))
	}

	write("tiles_index.json", []map[string]any{
		{"tile_id": "west", "bounds": map[string]float64{"north": 1, "south": 0, "west": 0, "east": 1}},
		{"tile_id": "east", "bounds": map[string]float64{"north": 1, "south": 0, "west": 1, "east": 2}},
		{"tile_id": "far", "bounds": map[string]float64{"north": 5, "south": 4, "west": 5, "east": 6}},
	})
	write("tiles/west/metadata.json", map[string]any{"name": "west (R1C1)"})
	write("tiles/east/metadata.json", map[string]any{"name": "east (R1C2)"})
	write("tiles/far/metadata.json", map[string]any{"name": "far (R7C7)"})
	write("tiles/west/networks/2024.geojson", map[string]any{
		"type": "FeatureCollection",
		"features": []any{map[string]any{
			"type":       "Feature",
			"properties": map[string]any{"f_type": "sidewalk"},
			"geometry":   map[string]any{"type": "LineString", "coordinates": [][2]float64{{0.1, 0.5}, {0.9, 0.5}}},
		}},
	})

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	full := filepath.Join(root, "tiles", "west", "imagery", "2024.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, buf.Bytes(), 0o644))
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	root := writeTestData(t)

	out, err := execute(t, "--data", root, "validate", "east", "west")
	require.NoError(t, err)
	var ok map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ok))
	assert.Equal(t, true, ok["valid"])

	out, err = execute(t, "--data", root, "validate", "west", "far")
	assert.Error(t, err)
	assert.Contains(t, out, "rectangle")
}

func TestExpandCommand(t *testing.T) {
	root := writeTestData(t)

	out, err := execute(t, "--data", root, "expand", "east", "west")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(out), &ids))
	assert.Equal(t, []string{"west", "east"}, ids)
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds("40.76, 40.75, -73.99, -74.0")
	require.NoError(t, err)
	assert.Equal(t, 40.76, b.North)
	assert.Equal(t, -74.0, b.West)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "0,1,1,0"} {
		_, err := parseBounds(bad)
		assert.Error(t, err, bad)
	}
}

func TestRemapFile(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{0.5, 0.5}))
	data, err := json.Marshal(fc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "in.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, err := remapFile(path, "1,0,1,0", "20,10,20,10")
	require.NoError(t, err)
	got, err := geojson.UnmarshalFeatureCollection(out)
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	p := got.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, 15, p.Lon(), 1e-9)
	assert.InDelta(t, 15, p.Lat(), 1e-9)

	_, err = remapFile(path, "bad", "20,10,20,10")
	assert.Error(t, err)
}

func TestStitchCommand(t *testing.T) {
	root := writeTestData(t)
	file := filepath.Join(t.TempDir(), "out.png")

	tests := []struct {
		name   string
		args   []string
		width  int
		toFile bool
	}{
		{name: "imagery", args: []string{"stitch", "west", "east", "--year", "2024", "--format", "png", "--overlay=false", "-o", "-"}, width: 1024},
		{name: "single tile", args: []string{"stitch", "west", "--year", "2024", "--format", "png", "--overlay=false", "-o", "-"}, width: 512},
		{name: "overlay", args: []string{"stitch", "east", "west", "--year", "2024", "--overlay=true", "--opacity", "0.5", "-o", "-"}, width: 1024},
		{name: "no data year", args: []string{"stitch", "west", "east", "--year", "2004", "--format", "png", "--overlay=false", "-o", "-"}, width: 1024},
		{name: "to file", args: []string{"stitch", "west", "east", "--year", "2024", "--format", "png", "--overlay=false", "-o", file}, width: 1024, toFile: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--data", root}, tt.args...)...)
			require.NoError(t, err)

			data := []byte(out)
			if tt.toFile {
				data, err = os.ReadFile(file)
				require.NoError(t, err)
			}
			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, tt.width, img.Bounds().Dx())
			assert.Equal(t, 512, img.Bounds().Dy())
		})
	}
}

func TestStitchCommand_Rejections(t *testing.T) {
	root := writeTestData(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "not a rectangle", args: []string{"stitch", "west", "far", "--year", "2024", "--format", "png", "--overlay=false"}},
		{name: "bad year", args: []string{"stitch", "west", "--year", "2023", "--format", "png", "--overlay=false"}},
		{name: "bad format", args: []string{"stitch", "west", "--year", "2024", "--format", "gif", "--overlay=false"}},
		{name: "unknown tile", args: []string{"stitch", "nowhere", "--year", "2024", "--format", "png", "--overlay=false"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"--data", root}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}

func TestMergeCommand(t *testing.T) {
	root := writeTestData(t)

	tests := []struct {
		name     string
		args     []string
		features int
	}{
		{name: "all layers", args: []string{"merge", "east", "west", "--year", "2024", "--layers="}, features: 1},
		{name: "no data year", args: []string{"merge", "east", "west", "--year", "2010", "--layers="}, features: 0},
		{name: "filtered out", args: []string{"merge", "east", "west", "--year", "2024", "--layers", "road"}, features: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--data", root}, tt.args...)...)
			require.NoError(t, err)
			fc, err := geojson.UnmarshalFeatureCollection([]byte(out))
			require.NoError(t, err)
			assert.Len(t, fc.Features, tt.features)
		})
	}

	_, err := execute(t, "--data", root, "merge", "west", "far", "--year", "2024", "--layers=")
	assert.Error(t, err)
}

func TestBoundsCommand(t *testing.T) {
	root := writeTestData(t)

	out, err := execute(t, "--data", root, "bounds", "west", "east")
	require.NoError(t, err)
	var b map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &b))
	assert.Equal(t, map[string]float64{"north": 1, "south": 0, "east": 2, "west": 0}, b)

	_, err = execute(t, "--data", root, "bounds", "nowhere")
	assert.Error(t, err)
}

func TestStatsCommand(t *testing.T) {
	root := writeTestData(t)

	out, err := execute(t, "--data", root, "stats", "west", "east")
	require.NoError(t, err)
	var st struct {
		Tiles []string `json:"tiles"`
		Years []struct {
			Year      int  `json:"year"`
			Available bool `json:"available"`
		} `json:"years"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, []string{"east", "west"}, st.Tiles)
	require.NotEmpty(t, st.Years)
	for _, y := range st.Years {
		assert.Equal(t, y.Year == 2024, y.Available, "year %d", y.Year)
	}
}

func TestPrefetchCommand(t *testing.T) {
	root := writeTestData(t)

	out, err := execute(t, "--data", root, "prefetch", "west", "east", "--years", "2024,2022")
	require.NoError(t, err)
	var p struct {
		Phase  string `json:"phase"`
		Done   int    `json:"done"`
		Total  int    `json:"total"`
		Failed int    `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "done", p.Phase)
	assert.Equal(t, 2+2*2, p.Total)
	assert.Equal(t, p.Total, p.Done)
	assert.Zero(t, p.Failed)

	_, err = execute(t, "--data", root, "prefetch", "west", "--years", "2023")
	assert.Error(t, err)
}
