package fftops

import "gonum.org/v1/gonum/dsp/fourier"

// Plan holds the row and column FFT state for fields of a fixed size.
// Plans are not safe for concurrent use; each worker keeps its own.
type Plan struct {
	nx, ny int
	row    *fourier.CmplxFFT
	col    *fourier.CmplxFFT

	rowBuf []complex128
	colIn  []complex128
	colOut []complex128
}

// NewPlan creates FFT state for nx-by-ny fields.
func NewPlan(nx, ny int) *Plan {
	return &Plan{
		nx:     nx,
		ny:     ny,
		row:    fourier.NewCmplxFFT(nx),
		col:    fourier.NewCmplxFFT(ny),
		rowBuf: make([]complex128, nx),
		colIn:  make([]complex128, ny),
		colOut: make([]complex128, ny),
	}
}

// resize adapts the plan to a new field size.
func (p *Plan) resize(nx, ny int) {
	if p.nx != nx {
		p.nx = nx
		p.row = fourier.NewCmplxFFT(nx)
		p.rowBuf = make([]complex128, nx)
	}
	if p.ny != ny {
		p.ny = ny
		p.col = fourier.NewCmplxFFT(ny)
		p.colIn = make([]complex128, ny)
		p.colOut = make([]complex128, ny)
	}
}

// Forward computes the unnormalized 2-D DFT of src into dst.
// dst is resized to match src; dst and src may be the same field.
func (p *Plan) Forward(dst, src *Field) {
	p.transform(dst, src, false)
}

// Inverse computes the 2-D inverse DFT of src into dst, normalized by the
// number of samples so that Inverse(Forward(x)) == x up to rounding.
func (p *Plan) Inverse(dst, src *Field) {
	p.transform(dst, src, true)
	n := complex(float64(dst.nx*dst.ny), 0)
	data := dst.data
	for i := range data {
		data[i] /= n
	}
}

func (p *Plan) transform(dst, src *Field, inverse bool) {
	nx, ny := src.nx, src.ny
	p.resize(nx, ny)
	dst.Resize(nx, ny)

	// rows first:
	for y := 0; y < ny; y++ {
		copy(p.rowBuf, src.Row(y))
		if inverse {
			p.row.Sequence(dst.Row(y), p.rowBuf)
		} else {
			p.row.Coefficients(dst.Row(y), p.rowBuf)
		}
	}

	// then columns:
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			p.colIn[y] = dst.data[y*nx+x]
		}
		if inverse {
			p.col.Sequence(p.colOut, p.colIn)
		} else {
			p.col.Coefficients(p.colOut, p.colIn)
		}
		for y := 0; y < ny; y++ {
			dst.data[y*nx+x] = p.colOut[y]
		}
	}
}
