package phasecorr

import (
	"math"
	"math/cmplx"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/internal/fftops"
	"github.com/mosaickit/go-mosaic-register/internal/simdops"
)

// crossPowerEps keeps the Girod-Kuo normalization finite on empty bins.
const crossPowerEps = 1e-8

// Expected pixel counts attributable to local maxima inside the overlap
// zone; together with the 1e-2 floor they bound the histogram threshold.
const (
	minMaximaPixels   = 5.0
	maxMaximaPixels   = 64.0
	minMaximaFraction = 1e-2
)

// Scratch holds the per-worker FFT state and complex fields reused across
// correlations. A Scratch must not be shared between goroutines.
type Scratch struct {
	plan *fftops.Plan
	f0   *fftops.Field
	f1   *fftops.Field
	pdf  []float64
}

// NewScratch allocates correlation scratch for neighborhoods up to
// nx-by-ny; the buffers grow on demand if larger inputs arrive.
func NewScratch(nx, ny int) *Scratch {
	return &Scratch{
		plan: fftops.NewPlan(nx, ny),
		f0:   fftops.NewField(nx, ny),
		f1:   fftops.NewField(nx, ny),
		pdf:  make([]float64, nx*ny),
	}
}

// Correlate runs phase correlation between a fixed and a moving neighborhood
// and returns the ranked displacement candidates.
//
// The inputs are real-valued row-major images; they are padded with their
// means to a common size. lpR and lpS are the low-pass filter parameters
// (resampled data produces a less noisy PDF and needs less smoothing).
// Translations whose implied overlap between two tiles of the fixed input's
// size falls outside [overlapMin, overlapMax] are masked out of the PDF.
//
// A nil result means no reliable match.
func Correlate(sc *Scratch, fixed []float32, nx0, ny0 int, moving []float32, nx1, ny1 int,
	lpR, lpS, overlapMin, overlapMax float64) []LocalMax {

	nx, ny := fftops.CommonSize(nx0, ny0, nx1, ny1)

	ops := simdops.Float32Ops()
	mean0 := float64(ops.Sum(fixed)) / float64(len(fixed))
	mean1 := float64(ops.Sum(moving)) / float64(len(moving))

	sc.f0.SetRealPadded(fixed, nx0, ny0, nx, ny, mean0)
	sc.f1.SetRealPadded(moving, nx1, ny1, nx, ny, mean1)

	sc.plan.Forward(sc.f0, sc.f0)
	sc.f0.LowPass(lpR, lpS)
	sc.plan.Forward(sc.f1, sc.f1)
	sc.f1.LowPass(lpR, lpS)

	// Girod-Kuo normalized cross power spectrum; its inverse transform is
	// the phase correlation surface in the spatial domain:
	d0 := sc.f0.Data()
	d1 := sc.f1.Data()
	for i := range d0 {
		p10 := d1[i] * cmplx.Conj(d0[i])
		d1[i] = p10 / complex(cmplx.Abs(p10)+crossPowerEps, 0)
	}
	sc.f1.LowPass(lpR*0.8, lpS)

	// displacement probability density function:
	sc.plan.Inverse(sc.f1, sc.f1)
	if cap(sc.pdf) < nx*ny {
		sc.pdf = make([]float64, nx*ny)
	}
	pdf := sc.pdf[:nx*ny]
	for i, v := range sc.f1.Data() {
		pdf[i] = real(v)
	}

	pdfMin := math.Inf(1)
	for _, v := range pdf {
		pdfMin = math.Min(pdfMin, v)
	}

	// mask out displacements that cannot be a match; the four symmetric
	// quadrants of each unsigned displacement stand or fall together:
	pixelsInZone := 0
	for y := 0; y <= ny/2; y++ {
		for x := 0; x <= nx/2; x++ {
			inZone := false
			for _, pt := range [4][2]int{
				{x, y},
				{nx - x, y},
				{x, ny - y},
				{nx - x, ny - y},
			} {
				o := overlapPercent(nx0, ny0, float64(pt[0]), float64(pt[1]))
				if o >= overlapMin && o <= overlapMax {
					inZone = true
					break
				}
			}
			if inZone {
				pixelsInZone += 4
				continue
			}

			mx := (nx - x) % nx
			my := (ny - y) % ny
			pdf[y*nx+x] = pdfMin
			pdf[y*nx+mx] = pdfMin
			pdf[my*nx+x] = pdfMin
			pdf[my*nx+mx] = pdfMin
		}
	}

	if pixelsInZone == 0 {
		return nil
	}

	// between 5 and 64 pixels of the overlap zone may be attributed to
	// local maxima:
	area := float64(pixelsInZone)
	fraction := math.Min(maxMaximaPixels/area, math.Max(minMaximaPixels/area, minMaximaFraction))
	if fraction >= 1 {
		return nil
	}

	return FindMaximaCM(pdf, nx, ny, 1-fraction)
}

// overlapPercent returns the fractional overlap that an unsigned displacement
// (dx, dy) induces between two tiles of size sx-by-sy. The overlap region is
// approximated by the product of the per-axis overlaps.
func overlapPercent(sx, sy int, dx, dy float64) float64 {
	ox := (float64(sx) - math.Abs(dx)) / float64(sx)
	oy := (float64(sy) - math.Abs(dy)) / float64(sy)
	if ox <= 0 || oy <= 0 {
		return 0
	}
	return ox * oy
}

// BestShift scans the ranked maxima and returns the correction to apply to
// the moving tile for the first candidate whose implied overlap between
// sx-by-sy tiles lies within [overlapMin, overlapMax].
func BestShift(maxima []LocalMax, nx, ny, sx, sy int, overlapMin, overlapMax float64) (geom.Vec, bool) {
	for _, m := range maxima {
		dx := m.X
		if dx > float64(nx)/2 {
			dx -= float64(nx)
		}
		dy := m.Y
		if dy > float64(ny)/2 {
			dy -= float64(ny)
		}

		o := overlapPercent(sx, sy, dx, dy)
		if o < overlapMin || o > overlapMax {
			continue
		}

		// the peak sits at the displacement of the moving content
		// relative to the fixed content; the correction is its negation:
		return geom.V(-dx, -dy), true
	}
	return geom.Vec{}, false
}
