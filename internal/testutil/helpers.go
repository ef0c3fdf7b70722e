// Package testutil provides reusable test helper functions for the
// registration engine tests.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mosaickit/go-mosaic-register/geom"
)

// Default tolerances for various test scenarios.
const (
	DefaultTolerance  = 1e-10
	RoundTripRelative = 1e-4
	InverseTolerance  = 1e-8
	ExactTolerance    = 1e-12
)

// AssertNoNaNOrInf verifies that no elements in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float64, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if math.IsNaN(v) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(v, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}

// AssertPointNear verifies that two points agree within tolerance in both
// components.
func AssertPointNear(t *testing.T, want, got geom.Point, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.InDelta(t, want.X, got.X, tolerance, msgAndArgs...) {
		return false
	}
	return assert.InDelta(t, want.Y, got.Y, tolerance, msgAndArgs...)
}

// AssertVecNear verifies that two vectors agree within tolerance in both
// components.
func AssertVecNear(t *testing.T, want, got geom.Vec, tolerance float64, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.InDelta(t, want.X, got.X, tolerance, msgAndArgs...) {
		return false
	}
	return assert.InDelta(t, want.Y, got.Y, tolerance, msgAndArgs...)
}

// Gaussian2D renders an isotropic Gaussian bump of amplitude 1 centered at
// (cx, cy) on an nx-by-ny toroidal grid.
func Gaussian2D(nx, ny int, cx, cy, sigma float64) []float64 {
	out := make([]float64, nx*ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			dx := toroidalDist(float64(x), cx, float64(nx))
			dy := toroidalDist(float64(y), cy, float64(ny))
			out[y*nx+x] = math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
		}
	}
	return out
}

func toroidalDist(a, b, period float64) float64 {
	d := math.Abs(a - b)
	if d > period/2 {
		d = period - d
	}
	return d
}

// TexturedTile renders a deterministic smooth test pattern with enough
// structure for phase correlation to lock onto. The pattern is evaluated at
// absolute coordinates (x0+ix, y0+iy), so two tiles rendered with shifted
// origins contain shifted copies of the same scene.
func TexturedTile(nx, ny int, x0, y0 float64) []float32 {
	out := make([]float32, nx*ny)
	for iy := 0; iy < ny; iy++ {
		y := y0 + float64(iy)
		for ix := 0; ix < nx; ix++ {
			x := x0 + float64(ix)
			v := math.Sin(x*0.131) + math.Cos(y*0.177) +
				math.Sin(x*0.043+y*0.071) +
				math.Sin(x*0.229)*math.Cos(y*0.283) +
				0.5*math.Sin(x*0.017)*math.Sin(y*0.013)
			out[iy*nx+ix] = float32(v)
		}
	}
	return out
}
