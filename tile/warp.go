package tile

import (
	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/transform"
)

// uvToPixel converts a tile-space point to continuous pixel coordinates of
// an image whose pixel grid spans the transform's uv domain.
func uvToPixel(dom geom.Box, uv geom.Point, nx, ny int) (float64, float64) {
	ext := dom.Ext()
	px := (uv.X - dom.Min.X) / ext.X * float64(nx)
	py := (uv.Y - dom.Min.Y) / ext.Y * float64(ny)
	// pixel centers sit half a pixel inside the domain edge:
	return px - 0.5, py - 0.5
}

// Warp resamples a tile and its mask through a transform into mosaic space.
// The output covers the transform's mosaic bounding box with the source
// spacing. Pixels the transform cannot reach get value 0 and mask 0.
// mask may be nil, in which case the whole tile is valid.
func Warp(src, mask *Image, tr transform.Transform, mosaicBox geom.Box) (*Image, *Image) {
	sp := src.Spacing
	nx := int(mosaicBox.Ext().X/sp.X + 0.5)
	ny := int(mosaicBox.Ext().Y/sp.Y + 0.5)
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}

	out := New(nx, ny, mosaicBox.Min, sp)
	outMask := New(nx, ny, mosaicBox.Min, sp)
	warpInto(out, outMask, src, mask, tr)
	return out, outMask
}

// WarpWindow resamples a w-by-w mosaic-space neighborhood centered on a
// point directly from the unwarped tile. This is the on-demand path used
// when tiles are not prewarped each pass.
func WarpWindow(dst, dstMask, src, mask *Image, tr transform.Transform, center geom.Point) {
	w := dst.Nx
	sp := src.Spacing
	dst.Origin = geom.Pt(
		center.X-float64(w/2)*sp.X,
		center.Y-float64(w/2)*sp.Y,
	)
	dst.Spacing = sp
	dstMask.Origin = dst.Origin
	dstMask.Spacing = sp
	warpInto(dst, dstMask, src, mask, tr)
}

func warpInto(out, outMask, src, mask *Image, tr transform.Transform) {
	dom := tr.Domain()
	sp := out.Spacing

	for y := 0; y < out.Ny; y++ {
		row := out.Row(y)
		mrow := outMask.Row(y)
		py := out.Origin.Y + (float64(y)+0.5)*sp.Y

		for x := 0; x < out.Nx; x++ {
			row[x] = 0
			mrow[x] = 0

			uv, ok := tr.Transform(geom.Pt(out.Origin.X+(float64(x)+0.5)*sp.X, py))
			if !ok {
				continue
			}

			qx, qy := uvToPixel(dom, uv, src.Nx, src.Ny)
			v, ok := src.Bilinear(qx, qy)
			if !ok {
				continue
			}
			if mask != nil {
				mv, mok := mask.Bilinear(qx, qy)
				if !mok || mv < 0.5 {
					continue
				}
			}

			row[x] = v
			mrow[x] = 1
		}
	}
}
