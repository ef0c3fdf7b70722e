package mathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLegendreKnownValues(t *testing.T) {
	p := make([]float64, 5)

	Legendre(4, 0.5, p)
	assert.InDelta(t, 1, p[0], 1e-15)
	assert.InDelta(t, 0.5, p[1], 1e-15)
	assert.InDelta(t, (3*0.25-1)/2, p[2], 1e-15)            // P2 = (3x^2-1)/2
	assert.InDelta(t, (5*0.125-3*0.5)/2, p[3], 1e-15)       // P3 = (5x^3-3x)/2
	assert.InDelta(t, (35*0.0625-30*0.25+3)/8, p[4], 1e-15) // P4

	// P_n(1) == 1 for all n:
	Legendre(4, 1, p)
	for i, v := range p {
		assert.InDelta(t, 1, v, 1e-15, "P_%d(1)", i)
	}
}

func TestLegendreDerivMatchesFiniteDifference(t *testing.T) {
	const n = 5
	const h = 1e-7

	p := make([]float64, n+1)
	dp := make([]float64, n+1)
	lo := make([]float64, n+1)
	hi := make([]float64, n+1)

	for _, x := range []float64{-0.9, -0.3, 0.0, 0.4, 0.8} {
		LegendreDeriv(n, x, p, dp)
		Legendre(n, x-h, lo)
		Legendre(n, x+h, hi)

		for k := 0; k <= n; k++ {
			assert.InDelta(t, (hi[k]-lo[k])/(2*h), dp[k], 1e-6, "P'_%d(%f)", k, x)
		}
	}
}

func TestLegendreDegreeZero(t *testing.T) {
	p := []float64{0}
	dp := []float64{99}
	LegendreDeriv(0, 0.3, p, dp)
	assert.Equal(t, 1.0, p[0])
	assert.Equal(t, 0.0, dp[0])
}
