package tile

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// SavePNG writes a normalized grayscale rendering of the image with a title
// caption. Useful when debugging PDF surfaces and warped tiles.
func (im *Image) SavePNG(title, filename string) error {
	lo, hi := im.Pix[0], im.Pix[0]
	for _, v := range im.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	img := image.NewGray16(image.Rect(0, 0, im.Nx, im.Ny))
	for y := 0; y < im.Ny; y++ {
		for x := 0; x < im.Nx; x++ {
			g := (im.At(x, y) - lo) / rng
			img.SetGray16(x, y, color.Gray16{Y: uint16(g * 65535)})
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1, 1, 1)
	dc.DrawString(title, 10, 20)
	return dc.SavePNG(filename)
}
