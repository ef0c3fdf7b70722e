package phasecorr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaickit/go-mosaic-register/geom"
	"github.com/mosaickit/go-mosaic-register/internal/testutil"
)

func TestCorrelateRecoversIntegerShift(t *testing.T) {
	const w = 64
	cases := []geom.Vec{
		{X: 5, Y: -3},
		{X: -11, Y: 7},
		{X: 0, Y: 0},
		{X: 16, Y: 9},
	}

	sc := NewScratch(w, w)
	for _, want := range cases {
		fixed := testutil.TexturedTile(w, w, 0, 0)
		// the moving window sees the scene `want` pixels ahead, so the
		// correction that re-aligns it is exactly `want`:
		moving := testutil.TexturedTile(w, w, want.X, want.Y)

		maxima := Correlate(sc, fixed, w, w, moving, w, w, 0.5, 0.1, 0.25, 1.0)
		require.NotEmpty(t, maxima, "shift %v", want)

		got, ok := BestShift(maxima, w, w, w, w, 0.25, 1.0)
		require.True(t, ok, "shift %v", want)
		testutil.AssertVecNear(t, want, got, 0.25, "shift %v", want)
	}
}

func TestCorrelateUnequalWindowSizes(t *testing.T) {
	const w = 64
	fixed := testutil.TexturedTile(w, w, 0, 0)
	moving := testutil.TexturedTile(w/2, w/2, 4, 2)

	// smaller moving window is padded with its mean to the common size:
	maxima := Correlate(sc64(t), fixed, w, w, moving, w/2, w/2, 0.5, 0.1, 0.1, 1.0)
	assert.NotNil(t, maxima)
}

func sc64(t *testing.T) *Scratch {
	t.Helper()
	return NewScratch(64, 64)
}

func TestCorrelateDegenerateInput(t *testing.T) {
	const w = 32
	flat := make([]float32, w*w)

	sc := NewScratch(w, w)
	maxima := Correlate(sc, flat, w, w, flat, w, w, 0.5, 0.1, 0.25, 1.0)

	// a constant pair has a flat cross power spectrum; the PDF has no
	// usable range and the candidate list is empty:
	assert.Empty(t, maxima)
}

func TestCorrelateOverlapMaskRejectsLargeShifts(t *testing.T) {
	const w = 64
	fixed := testutil.TexturedTile(w, w, 0, 0)
	// content displaced by nearly the window size implies ~12% overlap:
	moving := testutil.TexturedTile(w, w, 56, 0)

	sc := NewScratch(w, w)
	maxima := Correlate(sc, fixed, w, w, moving, w, w, 0.5, 0.1, 0.5, 1.0)

	// no candidate may survive with an implied overlap below 50%:
	if s, ok := BestShift(maxima, w, w, w, w, 0.5, 1.0); ok {
		overlap := (1 - abs(s.X)/w) * (1 - abs(s.Y)/w)
		assert.GreaterOrEqual(t, overlap, 0.5)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestOverlapPercent(t *testing.T) {
	assert.InDelta(t, 1.0, overlapPercent(64, 64, 0, 0), 1e-12)
	assert.InDelta(t, 0.5, overlapPercent(64, 64, 32, 0), 1e-12)
	assert.InDelta(t, 0.25, overlapPercent(64, 64, 32, 32), 1e-12)
	assert.Zero(t, overlapPercent(64, 64, 64, 0))
	assert.Zero(t, overlapPercent(64, 64, 100, 0))
}

func TestBestShiftUnwrapsToroidalPeaks(t *testing.T) {
	// a peak just past the field midpoint is a small negative shift:
	maxima := []LocalMax{{Value: 1, X: 60, Y: 2, Area: 4}}
	s, ok := BestShift(maxima, 64, 64, 64, 64, 0.25, 1.0)
	require.True(t, ok)
	assert.InDelta(t, 4, s.X, 1e-12)  // -(60-64)
	assert.InDelta(t, -2, s.Y, 1e-12) // -(2)
}
