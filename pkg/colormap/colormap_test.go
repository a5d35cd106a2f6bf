package colormap

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerPalette(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "#4A90E2", Hex(Layers.Color("sidewalk")))
	assert.Equal(t, "#FF6B6B", Hex(Layers.Color("road")))
	assert.Equal(t, "#4ECDC4", Hex(Layers.Color("crosswalk")))
	assert.Equal(t, fallback, Layers.Color("bike_lane"))
}

func TestParseHex(t *testing.T) {
	t.Parallel()

	c, err := ParseHex("#fff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, c)

	c, err = ParseHex("102030")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0x10, 0x20, 0x30, 255}, c)

	for _, bad := range []string{"", "#12", "#GGGGGG", "#1234567"} {
		_, err := ParseHex(bad)
		assert.Error(t, err, bad)
	}
}

func TestWithAlpha(t *testing.T) {
	t.Parallel()

	c := color.RGBA{200, 100, 50, 255}
	assert.Equal(t, c, WithAlpha(c, 1))
	assert.Equal(t, color.RGBA{}, WithAlpha(c, 0))
	assert.Equal(t, color.RGBA{100, 50, 25, 127}, WithAlpha(c, 0.5))
}

func TestViridisSeries(t *testing.T) {
	t.Parallel()

	s := Viridis.Series(11)
	require.Len(t, s, 11)
	assert.Equal(t, color.RGBA{68, 1, 84, 255}, s[0])
	assert.Equal(t, color.RGBA{253, 231, 37, 255}, s[10])
	assert.Len(t, Viridis.Series(1), 1)
	assert.Empty(t, Viridis.Series(0))
}
