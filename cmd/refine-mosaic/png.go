package main

import (
	"image"
	"image/png"
	"os"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/tile"
)

// grayScale normalizes 16-bit luma to [0, 1].
const grayScale = 65535.0

// LoadGrayPNG decodes a PNG into a float32 tile, converting color images to
// luma. The tile gets unit spacing and a zero origin; placement comes from
// the transform.
func LoadGrayPNG(path string) (*tile.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	out := tile.New(b.Dx(), b.Dy(), geom.Pt(0, 0), geom.V(1, 1))

	if g, ok := src.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				out.Set(x, y, float32(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)/255)
			}
		}
		return out, nil
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			luma := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
			out.Set(x, y, float32(luma/grayScale))
		}
	}
	return out, nil
}
