package fftops

import "math"

// LowPass applies a frequency-domain low-pass filter to the field in place.
//
// r in [0, 1] is the cutoff radius as a fraction of Nyquist and s in [0, 1]
// the cutoff sharpness. The s == 0 component is an ideal filter that zeroes
// everything beyond 2r; the s == 1 component is a raised-cosine rolloff that
// is 1 at the origin, 0.5 at r and 0 at 2r. Intermediate s blends the two
// linearly. Frequency coordinates wrap toroidally around the field center.
func (f *Field) LowPass(r, s float64) {
	if r <= 0 {
		f.Fill(0)
		return
	}
	nx, ny := f.nx, f.ny
	hx := float64(nx) / 2
	hy := float64(ny) / 2

	for y := 0; y < ny; y++ {
		fy := float64(y)
		if fy > hy {
			fy = float64(ny) - fy
		}
		b := fy / hy

		row := f.Row(y)
		for x := 0; x < nx; x++ {
			fx := float64(x)
			if fx > hx {
				fx = float64(nx) - fx
			}
			a := fx / hx

			d := math.Hypot(a, b)
			if d >= 2*r {
				row[x] = 0
				continue
			}

			cosine := (1 + math.Cos(math.Pi*d/(2*r))) / 2
			w := (1 - s) + s*cosine
			row[x] *= complex(w, 0)
		}
	}
}
