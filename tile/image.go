// Package tile provides the real-valued image tiles and masks consumed by
// mosaic refinement, together with the cropping and warping helpers that
// move pixel neighborhoods between tile space and mosaic space.
//
// An Image is a read-only view from the caller's perspective: the engine
// never mutates input tiles, only the scratch and warped copies it owns.
package tile

import (
	"math"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/internal/simdops"
)

// Image is a 2-D array of float32 pixels with a known mosaic-space origin
// and pixel spacing. The origin is the corner of pixel (0, 0); the center
// of pixel (i, j) sits at origin + (i+0.5, j+0.5)*spacing. Masks use the
// same representation with 0/1 values.
type Image struct {
	Nx, Ny  int
	Origin  geom.Point
	Spacing geom.Vec
	Pix     []float32 // row-major, stride Nx
}

// New allocates a zeroed image.
func New(nx, ny int, origin geom.Point, spacing geom.Vec) *Image {
	return &Image{
		Nx:      nx,
		Ny:      ny,
		Origin:  origin,
		Spacing: spacing,
		Pix:     make([]float32, nx*ny),
	}
}

// At returns the pixel at (x, y).
func (im *Image) At(x, y int) float32 { return im.Pix[y*im.Nx+x] }

// Set stores a pixel at (x, y).
func (im *Image) Set(x, y int, v float32) { im.Pix[y*im.Nx+x] = v }

// Row returns the backing slice of row y.
func (im *Image) Row(y int) []float32 { return im.Pix[y*im.Nx : (y+1)*im.Nx] }

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	out := &Image{Nx: im.Nx, Ny: im.Ny, Origin: im.Origin, Spacing: im.Spacing}
	out.Pix = make([]float32, len(im.Pix))
	copy(out.Pix, im.Pix)
	return out
}

// Fill sets every pixel to v.
func (im *Image) Fill(v float32) {
	for i := range im.Pix {
		im.Pix[i] = v
	}
}

// Mean returns the average pixel value.
func (im *Image) Mean() float64 {
	if len(im.Pix) == 0 {
		return 0
	}
	return float64(simdops.Float32Ops().Sum(im.Pix)) / float64(len(im.Pix))
}

// Bounds returns the mosaic-space box covered by the pixel grid.
func (im *Image) Bounds() geom.Box {
	return geom.Box{
		Min: im.Origin,
		Max: im.Origin.Add(geom.V(float64(im.Nx)*im.Spacing.X, float64(im.Ny)*im.Spacing.Y)),
	}
}

// Bilinear samples the image at continuous pixel coordinates, with pixel
// centers at integer positions. ok is false outside the pixel grid.
func (im *Image) Bilinear(x, y float64) (float32, bool) {
	if x < -0.5 || y < -0.5 || x > float64(im.Nx)-0.5 || y > float64(im.Ny)-0.5 {
		return 0, false
	}

	x0 := clampIndex(int(math.Floor(x)), im.Nx)
	y0 := clampIndex(int(math.Floor(y)), im.Ny)
	x1 := clampIndex(x0+1, im.Nx)
	y1 := clampIndex(y0+1, im.Ny)

	fx := x - float64(x0)
	fy := y - float64(y0)
	if fx < 0 {
		fx = 0
	} else if fx > 1 {
		fx = 1
	}
	if fy < 0 {
		fy = 0
	} else if fy > 1 {
		fy = 1
	}

	v00 := float64(im.At(x0, y0))
	v10 := float64(im.At(x1, y0))
	v01 := float64(im.At(x0, y1))
	v11 := float64(im.At(x1, y1))

	top := v00 + fx*(v10-v00)
	bot := v01 + fx*(v11-v01)
	return float32(top + fy*(bot-top)), true
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// CropWindow copies a w-by-w neighborhood of the source image centered on a
// mosaic-space point into dst, filling out-of-bounds pixels with zero.
// dst keeps the source spacing and gets the window's mosaic origin.
func CropWindow(dst, src *Image, center geom.Point, w int) {
	// index of the pixel containing the center point:
	cx := int(math.Floor((center.X - src.Origin.X) / src.Spacing.X))
	cy := int(math.Floor((center.Y - src.Origin.Y) / src.Spacing.Y))
	x0 := cx - w/2
	y0 := cy - w/2

	dst.Origin = src.Origin.Add(geom.V(float64(x0)*src.Spacing.X, float64(y0)*src.Spacing.Y))
	dst.Spacing = src.Spacing

	for y := 0; y < w; y++ {
		row := dst.Row(y)
		sy := y0 + y
		if sy < 0 || sy >= src.Ny {
			for x := range row {
				row[x] = 0
			}
			continue
		}
		srow := src.Row(sy)
		for x := 0; x < w; x++ {
			sx := x0 + x
			if sx < 0 || sx >= src.Nx {
				row[x] = 0
				continue
			}
			row[x] = srow[sx]
		}
	}
}

// OverlapRatio returns the fraction of pixels that are nonzero in both
// masks. The masks must have equal dimensions.
func OverlapRatio(a, b *Image) float64 {
	if len(a.Pix) == 0 || len(a.Pix) != len(b.Pix) {
		return 0
	}
	// masks hold 0/1 values, so the dot product counts the shared support:
	n := simdops.Float32Ops().DotProductUnsafe(a.Pix, b.Pix)
	return float64(n) / float64(len(a.Pix))
}
