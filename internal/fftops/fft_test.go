package fftops

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomField(t *testing.T, nx, ny int, seed int64) *Field {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	f := NewField(nx, ny)
	for i := range f.Data() {
		f.Data()[i] = complex(rng.Float64()*2-1, rng.Float64()*2-1)
	}
	return f
}

func maxAbs(f *Field) float64 {
	var m float64
	for _, v := range f.Data() {
		m = math.Max(m, cmplx.Abs(v))
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	sizes := [][2]int{
		{16, 16},
		{64, 64},
		{128, 32},
		{12, 10}, // non power of two
		{1, 8},
	}

	for _, sz := range sizes {
		nx, ny := sz[0], sz[1]
		src := randomField(t, nx, ny, int64(nx*1000+ny))
		orig := NewField(nx, ny)
		copy(orig.Data(), src.Data())

		plan := NewPlan(nx, ny)
		out := NewField(nx, ny)
		plan.Forward(out, src)
		plan.Inverse(out, out)

		tol := 1e-4 * maxAbs(orig)
		for i, want := range orig.Data() {
			got := out.Data()[i]
			if cmplx.Abs(got-want) > tol {
				t.Fatalf("%dx%d: sample %d: got %v, want %v", nx, ny, i, got, want)
			}
		}
	}
}

func TestForwardDCBin(t *testing.T) {
	const nx, ny = 8, 8
	f := NewField(nx, ny)
	f.Fill(complex(3, 0))

	plan := NewPlan(nx, ny)
	plan.Forward(f, f)

	// constant input concentrates all energy in the DC bin:
	assert.InDelta(t, 3*nx*ny, real(f.At(0, 0)), 1e-9)
	for i, v := range f.Data() {
		if i == 0 {
			continue
		}
		assert.InDelta(t, 0, cmplx.Abs(v), 1e-9, "bin %d", i)
	}
}

func TestForwardInPlaceMatchesOutOfPlace(t *testing.T) {
	const nx, ny = 24, 16
	src := randomField(t, nx, ny, 7)
	inPlace := NewField(nx, ny)
	copy(inPlace.Data(), src.Data())

	plan := NewPlan(nx, ny)
	out := NewField(nx, ny)
	plan.Forward(out, src)
	plan.Forward(inPlace, inPlace)

	for i := range out.Data() {
		assert.Equal(t, out.Data()[i], inPlace.Data()[i], "bin %d", i)
	}
}

func TestLowPassPassesDCKillsHighFrequencies(t *testing.T) {
	const nx, ny = 32, 32
	const r, s = 0.3, 1.0

	f := NewField(nx, ny)
	f.Fill(1)
	f.LowPass(r, s)

	// DC unattenuated:
	assert.InDelta(t, 1.0, real(f.At(0, 0)), 1e-12)

	// beyond twice the cutoff everything is zero; Nyquist is the
	// farthest toroidal frequency:
	assert.Zero(t, f.At(nx/2, ny/2))

	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			fx := math.Min(float64(x), float64(nx-x)) / (float64(nx) / 2)
			fy := math.Min(float64(y), float64(ny-y)) / (float64(ny) / 2)
			d := math.Hypot(fx, fy)

			got := real(f.At(x, y))
			switch {
			case d >= 2*r:
				assert.Zero(t, got, "frequency (%d, %d)", x, y)
			default:
				assert.InDelta(t, (1+math.Cos(math.Pi*d/(2*r)))/2, got, 1e-12,
					"frequency (%d, %d)", x, y)
			}
		}
	}
}

func TestLowPassCosineHalfAtCutoff(t *testing.T) {
	const nx, ny = 64, 64
	const r = 0.5

	f := NewField(nx, ny)
	f.Fill(1)
	f.LowPass(r, 1.0)

	// frequency (nx/4, 0) sits exactly at d == r:
	assert.InDelta(t, 0.5, real(f.At(nx/4, 0)), 1e-12)
}

func TestLowPassIdealComponent(t *testing.T) {
	const nx, ny = 32, 32
	const r = 0.25

	f := NewField(nx, ny)
	f.Fill(1)
	f.LowPass(r, 0)

	// s == 0 is a brick wall at 2r:
	assert.InDelta(t, 1.0, real(f.At(3, 0)), 1e-12) // d = 3/16 < 0.5
	assert.Zero(t, real(f.At(nx/2, 0)))             // d = 1 >= 0.5
}

func TestSetRealPadded(t *testing.T) {
	pix := []float32{1, 2, 3, 4, 5, 6} // 3x2
	f := NewField(1, 1)
	f.SetRealPadded(pix, 3, 2, 5, 4, -1)

	require.Equal(t, 5, f.Nx())
	require.Equal(t, 4, f.Ny())
	assert.Equal(t, complex128(complex(1, 0)), f.At(0, 0))
	assert.Equal(t, complex128(complex(6, 0)), f.At(2, 1))
	assert.Equal(t, complex128(complex(-1, 0)), f.At(3, 0))
	assert.Equal(t, complex128(complex(-1, 0)), f.At(0, 2))
	assert.Equal(t, complex128(complex(-1, 0)), f.At(4, 3))
}

func TestCommonSize(t *testing.T) {
	nx, ny := CommonSize(16, 32, 24, 8)
	assert.Equal(t, 24, nx)
	assert.Equal(t, 32, ny)
}
