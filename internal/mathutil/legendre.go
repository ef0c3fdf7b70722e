// Package mathutil provides small numeric building blocks shared by the
// transform implementations: Legendre polynomial recurrences and their
// derivatives.
package mathutil

// Legendre evaluates the Legendre polynomials P_0(x) .. P_n(x) into p,
// which must have length n+1. The standard three-term recurrence is used:
//
//	(k+1) P_{k+1}(x) = (2k+1) x P_k(x) - k P_{k-1}(x)
func Legendre(n int, x float64, p []float64) {
	p[0] = 1
	if n == 0 {
		return
	}
	p[1] = x
	for k := 1; k < n; k++ {
		p[k+1] = (float64(2*k+1)*x*p[k] - float64(k)*p[k-1]) / float64(k+1)
	}
}

// LegendreDeriv evaluates P_0 .. P_n and their first derivatives into p and
// dp, each of length n+1. The derivative recurrence
//
//	P'_{k+1}(x) = P'_{k-1}(x) + (2k+1) P_k(x)
//
// avoids the 1/(1-x^2) singularity of the closed form at the domain edges.
func LegendreDeriv(n int, x float64, p, dp []float64) {
	Legendre(n, x, p)
	dp[0] = 0
	if n == 0 {
		return
	}
	dp[1] = 1
	for k := 1; k < n; k++ {
		dp[k+1] = dp[k-1] + float64(2*k+1)*p[k]
	}
}
