// Package fftops wraps gonum's FFT for the 2-D complex fields used by phase
// correlation: forward/inverse transforms over rectangular fields and the
// frequency-domain low-pass filter applied to them.
package fftops

// Field is a 2-D array of complex samples addressed by (x, y).
// Dimensions are fixed at construction; Resize reallocates.
type Field struct {
	nx, ny int
	data   []complex128
}

// NewField allocates a zeroed nx-by-ny field.
func NewField(nx, ny int) *Field {
	return &Field{nx: nx, ny: ny, data: make([]complex128, nx*ny)}
}

// Nx returns the field width.
func (f *Field) Nx() int { return f.nx }

// Ny returns the field height.
func (f *Field) Ny() int { return f.ny }

// At returns the sample at (x, y).
func (f *Field) At(x, y int) complex128 { return f.data[y*f.nx+x] }

// Set stores a sample at (x, y).
func (f *Field) Set(x, y int, v complex128) { f.data[y*f.nx+x] = v }

// Row returns the backing slice for row y.
func (f *Field) Row(y int) []complex128 { return f.data[y*f.nx : (y+1)*f.nx] }

// Data returns the backing slice in row-major order.
func (f *Field) Data() []complex128 { return f.data }

// Fill sets every sample to v.
func (f *Field) Fill(v complex128) {
	for i := range f.data {
		f.data[i] = v
	}
}

// Resize reallocates the field to nx-by-ny if the dimensions differ.
// Contents are not preserved.
func (f *Field) Resize(nx, ny int) {
	if f.nx == nx && f.ny == ny {
		return
	}
	f.nx, f.ny = nx, ny
	f.data = make([]complex128, nx*ny)
}

// SetReal loads a real-valued nx-by-ny image (row-major) into the field.
// The field is resized to match.
func (f *Field) SetReal(pix []float32, nx, ny int) {
	f.Resize(nx, ny)
	for i, v := range pix {
		f.data[i] = complex(float64(v), 0)
	}
}

// SetRealPadded loads a real-valued srcNx-by-srcNy image into the top-left
// corner of an nx-by-ny field, filling the remainder with fill.
func (f *Field) SetRealPadded(pix []float32, srcNx, srcNy, nx, ny int, fill float64) {
	f.Resize(nx, ny)
	pad := complex(fill, 0)
	for y := 0; y < ny; y++ {
		row := f.Row(y)
		if y >= srcNy {
			for x := range row {
				row[x] = pad
			}
			continue
		}
		src := pix[y*srcNx : (y+1)*srcNx]
		for x := 0; x < srcNx; x++ {
			row[x] = complex(float64(src[x]), 0)
		}
		for x := srcNx; x < nx; x++ {
			row[x] = pad
		}
	}
}

// CommonSize returns the smallest size that covers both inputs.
func CommonSize(nx0, ny0, nx1, ny1 int) (nx, ny int) {
	nx, ny = nx0, ny0
	if nx1 > nx {
		nx = nx1
	}
	if ny1 > ny {
		ny = ny1
	}
	return nx, ny
}
