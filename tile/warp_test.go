package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/transform"
)

// identityGrid places an nx-by-ny unit-spacing tile at a mosaic offset.
func identityGrid(t *testing.T, nx, ny int, offset geom.Vec) *transform.Grid {
	t.Helper()
	g := transform.NewGrid()
	xy := make([]geom.Point, 9)
	for r := 0; r <= 2; r++ {
		for c := 0; c <= 2; c++ {
			xy[r*3+c] = geom.Pt(
				offset.X+float64(c)/2*float64(nx),
				offset.Y+float64(r)/2*float64(ny),
			)
		}
	}
	require.NoError(t, g.Setup(2, 2, geom.Pt(0, 0), geom.Pt(1, 1), xy))
	return g
}

func TestWarpIdentityReproducesTile(t *testing.T) {
	src := rampImage(16, 16, geom.Pt(0, 0))
	g := identityGrid(t, 16, 16, geom.V(0, 0))

	out, mask := Warp(src, nil, g, src.Bounds())

	require.Equal(t, 16, out.Nx)
	require.Equal(t, 16, out.Ny)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			assert.InDelta(t, src.At(x, y), out.At(x, y), 1e-5, "(%d,%d)", x, y)
			assert.Equal(t, float32(1), mask.At(x, y), "(%d,%d)", x, y)
		}
	}
}

func TestWarpTranslatedPlacement(t *testing.T) {
	src := rampImage(16, 16, geom.Pt(0, 0))
	g := identityGrid(t, 16, 16, geom.V(100, 50))

	box := geom.Box{Min: geom.Pt(100, 50), Max: geom.Pt(116, 66)}
	out, mask := Warp(src, nil, g, box)

	assert.Equal(t, geom.Pt(100, 50), out.Origin)
	assert.InDelta(t, src.At(3, 4), out.At(3, 4), 1e-5)
	assert.Equal(t, float32(1), mask.At(8, 8))
}

func TestWarpRespectsMask(t *testing.T) {
	src := rampImage(16, 16, geom.Pt(0, 0))
	msk := New(16, 16, geom.Pt(0, 0), unitSpacing())
	for y := 0; y < 16; y++ {
		for x := 0; x < 8; x++ {
			msk.Set(x, y, 1)
		}
	}
	g := identityGrid(t, 16, 16, geom.V(0, 0))

	out, outMask := Warp(src, msk, g, src.Bounds())

	assert.Equal(t, float32(1), outMask.At(2, 2))
	assert.Equal(t, float32(0), outMask.At(12, 2))
	assert.Equal(t, float32(0), out.At(12, 2), "masked pixels carry no value")
}

func TestWarpWindowMatchesCropOfFullWarp(t *testing.T) {
	src := rampImage(32, 32, geom.Pt(0, 0))
	g := identityGrid(t, 32, 32, geom.V(0, 0))

	full, fullMask := Warp(src, nil, g, src.Bounds())

	const w = 8
	center := geom.Pt(16, 16)
	win := New(w, w, geom.Point{}, unitSpacing())
	winMask := New(w, w, geom.Point{}, unitSpacing())
	WarpWindow(win, winMask, src, nil, g, center)

	crop := New(w, w, geom.Point{}, unitSpacing())
	CropWindow(crop, full, center, w)
	cropMask := New(w, w, geom.Point{}, unitSpacing())
	CropWindow(cropMask, fullMask, center, w)

	for y := 0; y < w; y++ {
		for x := 0; x < w; x++ {
			assert.InDelta(t, crop.At(x, y), win.At(x, y), 1e-5, "(%d,%d)", x, y)
			assert.Equal(t, cropMask.At(x, y), winMask.At(x, y), "(%d,%d)", x, y)
		}
	}
}
