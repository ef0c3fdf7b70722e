package transform

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/internal/mathutil"
)

// Newton-Raphson iteration bounds for the numeric inverse.
const (
	newtonMaxIterations = 50
	newtonTolX          = 1e-12
	newtonTolF          = 1e-12
)

// Legendre is a bivariate centered/normalized Legendre polynomial transform
// of fixed total degree N.
//
// With A = (u - uc)/Xmax and B = (v - vc)/Ymax the forward map is
//
//	x(u, v) = Xmax * sum(i in [0, N], sum(j in [0, i], a_jk * Pj(A) * Pk(B)))
//	y(u, v) = Ymax * sum(i in [0, N], sum(j in [0, i], b_jk * Pj(A) * Pk(B)))
//
// where k = i - j and Pj, Pk are the Legendre polynomials of degree j and k.
// (u, v) is a mosaic-space point and (x, y) the corresponding tile-space
// point. The a00 and b00 coefficients encode the base translation.
type Legendre struct {
	degree int

	// fixed parameters: warp origin in mosaic space and normalization.
	uc, vc     float64
	xmax, ymax float64

	// free parameters: a_jk at IndexA(j, k), b_jk at IndexB(j, k).
	params []float64

	domain geom.Box
	ready  bool
}

// NewLegendre returns an unconfigured transform of the given degree.
// A configured transform is safe for concurrent reads; Setup,
// SetParameters and SolveForParameters must not race with readers.
func NewLegendre(degree int) *Legendre {
	return &Legendre{
		degree: degree,
		params: make([]float64, ParameterCount(degree)),
	}
}

// CoefficientCount returns the number of a_jk (or b_jk) coefficients of a
// transform of the given degree.
func CoefficientCount(degree int) int { return (degree + 1) * (degree + 2) / 2 }

// ParameterCount returns the length of the free-parameter vector.
func ParameterCount(degree int) int { return (degree + 1) * (degree + 2) }

// IndexA converts the (j, k) indices of an a_jk coefficient into an index
// into the parameter vector.
func IndexA(j, k int) int { return j + (j+k)*(j+k+1)/2 }

// IndexB converts the (j, k) indices of a b_jk coefficient into an index
// into the parameter vector.
func IndexB(degree, j, k int) int { return CoefficientCount(degree) + IndexA(j, k) }

// CountCoefficients returns the number of coefficients per dimension in a
// degree range [startWithDegree, startWithDegree+degreesCovered).
func CountCoefficients(startWithDegree, degreesCovered int) int {
	return IndexA(0, startWithDegree+degreesCovered) - IndexA(0, startWithDegree)
}

// SharedParamsMask generates a mask over the parameter vector with every
// entry set to shared except the a00/b00 base translation terms.
func SharedParamsMask(degree int, shared bool) []bool {
	mask := make([]bool, ParameterCount(degree))
	for i := range mask {
		mask[i] = shared
	}
	mask[IndexA(0, 0)] = false
	mask[IndexB(degree, 0, 0)] = false
	return mask
}

// Degree returns the total polynomial degree.
func (t *Legendre) Degree() int { return t.degree }

// Parameters returns the free-parameter vector. The slice aliases the
// transform's state; callers may read current values and write refined
// values in place.
func (t *Legendre) Parameters() []float64 { return t.params }

// SetParameters replaces the free-parameter vector.
func (t *Legendre) SetParameters(p []float64) error {
	if len(p) != len(t.params) {
		return ErrBadControlPoints
	}
	copy(t.params, p)
	return nil
}

// Uc returns the warp origin u-coordinate in mosaic space.
func (t *Legendre) Uc() float64 { return t.uc }

// Vc returns the warp origin v-coordinate in mosaic space.
func (t *Legendre) Vc() float64 { return t.vc }

// Xmax returns the x normalization parameter.
func (t *Legendre) Xmax() float64 { return t.xmax }

// Ymax returns the y normalization parameter.
func (t *Legendre) Ymax() float64 { return t.ymax }

// IsReady reports whether the transform has been set up.
func (t *Legendre) IsReady() bool { return t.ready }

// Domain returns the tile-space bounding box supplied at setup.
func (t *Legendre) Domain() geom.Box { return t.domain }

// Setup initializes the fixed parameters from the image bounding box and
// resets the free parameters to the identity polynomial. The warp origin is
// placed at the box center; xmax/ymax default to half the box extent when
// zero.
func (t *Legendre) Setup(bbox geom.Box, xmax, ymax float64) {
	c := bbox.Center()
	t.uc = c.X
	t.vc = c.Y

	if xmax != 0 && ymax != 0 {
		t.xmax = xmax
		t.ymax = ymax
	} else {
		ext := bbox.Ext()
		t.xmax = ext.X / 2
		t.ymax = ext.Y / 2
	}

	// identity polynomial: x(u, v) = u, y(u, v) = v.
	for i := range t.params {
		t.params[i] = 0
	}
	t.params[IndexA(0, 0)] = t.uc / t.xmax
	t.params[IndexB(t.degree, 0, 0)] = t.vc / t.ymax
	if t.degree >= 1 {
		t.params[IndexA(1, 0)] = 1
		t.params[IndexB(t.degree, 0, 1)] = 1
	}

	t.domain = bbox
	t.ready = true
}

// SetupTranslation folds a mosaic-space translation into the warp origin.
func (t *Legendre) SetupTranslation(tx, ty float64) {
	t.uc -= tx
	t.vc -= ty
}

// Transform evaluates the forward polynomial map at the mosaic-space point.
func (t *Legendre) Transform(xy geom.Point) (geom.Point, bool) {
	if !t.ready {
		return geom.Point{}, false
	}
	n := t.degree
	a := (xy.X - t.uc) / t.xmax
	b := (xy.Y - t.vc) / t.ymax
	pa := make([]float64, n+1)
	pb := make([]float64, n+1)
	mathutil.Legendre(n, a, pa)
	mathutil.Legendre(n, b, pb)

	half := CoefficientCount(n)
	var sa, sb float64
	for i := 0; i <= n; i++ {
		for j := 0; j <= i; j++ {
			basis := pa[j] * pb[i-j]
			idx := IndexA(j, i-j)
			sa += t.params[idx] * basis
			sb += t.params[half+idx] * basis
		}
	}
	return geom.Pt(t.xmax*sa, t.ymax*sb), true
}

// Jacobian returns the derivative of the forward map with respect to the
// mosaic-space input at xy.
func (t *Legendre) Jacobian(xy geom.Point) ([2][2]float64, bool) {
	if !t.ready {
		return [2][2]float64{}, false
	}
	n := t.degree
	a := (xy.X - t.uc) / t.xmax
	b := (xy.Y - t.vc) / t.ymax
	pa := make([]float64, n+1)
	pb := make([]float64, n+1)
	dpa := make([]float64, n+1)
	dpb := make([]float64, n+1)
	mathutil.LegendreDeriv(n, a, pa, dpa)
	mathutil.LegendreDeriv(n, b, pb, dpb)

	half := CoefficientCount(n)
	var j [2][2]float64
	for i := 0; i <= n; i++ {
		for jj := 0; jj <= i; jj++ {
			idx := IndexA(jj, i-jj)
			ajk := t.params[idx]
			bjk := t.params[half+idx]

			du := dpa[jj] * pb[i-jj]
			dv := pa[jj] * dpb[i-jj]

			j[0][0] += ajk * du
			j[0][1] += ajk * dv
			j[1][0] += bjk * du
			j[1][1] += bjk * dv
		}
	}
	// chain rule for the (u, v) -> (A, B) normalization:
	j[0][1] *= t.xmax / t.ymax
	j[1][0] *= t.ymax / t.xmax
	return j, true
}

// TransformInv inverts the polynomial map at the tile-space point using
// Newton-Raphson iteration seeded at the target itself. The per-step linear
// solve uses SVD because the Jacobian may be near singular at high degree.
func (t *Legendre) TransformInv(uv geom.Point) (geom.Point, bool) {
	if !t.ready {
		return geom.Point{}, false
	}

	x := uv
	for k := 0; k < newtonMaxIterations; k++ {
		f, _ := t.Transform(x)
		fx := f.X - uv.X
		fy := f.Y - uv.Y
		if math.Abs(fx)+math.Abs(fy) <= newtonTolF {
			break
		}

		j, _ := t.Jacobian(x)
		a := mat.NewDense(2, 2, []float64{j[0][0], j[0][1], j[1][0], j[1][1]})
		dx, rank, err := svdSolve(a, []float64{-fx, -fy})
		if err != nil || rank == 0 {
			return geom.Point{}, false
		}

		x.X += dx[0]
		x.Y += dx[1]
		if math.Abs(dx[0])+math.Abs(dx[1]) <= newtonTolX {
			break
		}
	}
	return x, true
}

// SolveForParameters finds the polynomial coefficients of the covered degree
// range such that the transform maps the mosaic-space points uv onto the
// tile-space points xy. Coefficients outside the range are held fixed and
// their contribution is subtracted from the targets. A rank-deficient system
// leaves the parameters untouched and returns ErrSingular.
func (t *Legendre) SolveForParameters(startWithDegree, degreesCovered int, uv, xy []geom.Point) error {
	if !t.ready {
		return ErrNotReady
	}
	if len(uv) != len(xy) {
		return ErrBadControlPoints
	}

	n := t.degree
	half := CoefficientCount(n)
	unknowns := CountCoefficients(startWithDegree, degreesCovered)
	rows := len(uv)
	if rows < unknowns {
		return ErrSingular
	}

	firstIdx := IndexA(0, startWithDegree)
	lastIdx := firstIdx + unknowns

	m := mat.NewDense(rows, unknowns, nil)
	bx := make([]float64, rows)
	by := make([]float64, rows)

	pa := make([]float64, n+1)
	pb := make([]float64, n+1)
	for r := range uv {
		a := (uv[r].X - t.uc) / t.xmax
		b := (uv[r].Y - t.vc) / t.ymax
		mathutil.Legendre(n, a, pa)
		mathutil.Legendre(n, b, pb)

		tx := xy[r].X / t.xmax
		ty := xy[r].Y / t.ymax

		for i := 0; i <= n; i++ {
			for j := 0; j <= i; j++ {
				idx := IndexA(j, i-j)
				basis := pa[j] * pb[i-j]
				if idx >= firstIdx && idx < lastIdx {
					m.Set(r, idx-firstIdx, basis)
					continue
				}
				// held fixed; move its contribution to the target:
				tx -= t.params[idx] * basis
				ty -= t.params[half+idx] * basis
			}
		}

		bx[r] = tx
		by[r] = ty
	}

	cx, rank, err := svdSolve(m, bx)
	if err != nil {
		return err
	}
	if rank < unknowns {
		return ErrSingular
	}
	cy, _, err := svdSolve(m, by)
	if err != nil {
		return err
	}

	for i := 0; i < unknowns; i++ {
		t.params[firstIdx+i] = cx[i]
		t.params[half+firstIdx+i] = cy[i]
	}
	return nil
}

// svdSolve computes the minimum-norm least-squares solution of a*x = b via
// the singular value decomposition, zeroing singular values below a relative
// tolerance. It returns the solution and the effective rank.
func svdSolve(a *mat.Dense, b []float64) ([]float64, int, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, 0, ErrSingular
	}

	vals := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	_, cols := a.Dims()
	tol := 0.0
	if len(vals) > 0 {
		tol = vals[0] * 1e-12 * float64(len(b))
	}

	x := make([]float64, cols)
	rank := 0
	for k, sv := range vals {
		if sv <= tol {
			continue
		}
		rank++

		// x += v_k * (u_k . b) / sv
		var ub float64
		for r := range b {
			ub += u.At(r, k) * b[r]
		}
		scale := ub / sv
		for c := 0; c < cols; c++ {
			x[c] += v.At(c, k) * scale
		}
	}
	if rank == 0 {
		return nil, 0, ErrSingular
	}
	return x, rank, nil
}
