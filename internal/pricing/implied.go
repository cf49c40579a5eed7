package pricing

import (
	"math"
)

// Bracket and convergence tunables for the implied-vol search.
//
// The bracket [VolLowerBound, VolUpperBound] covers volatilities from
// 0.01% to 500% annualized. A market price only has an implied vol when
// the Black-Scholes price crosses it somewhere inside this bracket.
const (
	VolLowerBound = 1e-4
	VolUpperBound = 5.0

	// DefaultVolTolerance is the absolute tolerance on sigma.
	DefaultVolTolerance = 1e-8

	// DefaultMaxIterations caps the per-solve work so a pathological
	// bracket cannot stall a batch.
	DefaultMaxIterations = 128
)

// ImpliedVolResult is the outcome of a single implied-vol inversion.
//
// When OK is false no volatility in the bracket reproduces the market
// price (arbitrage-violating quote, price below intrinsic, degenerate
// inputs) and Vol is NaN, never zero or negative.
type ImpliedVolResult struct {
	// Vol is the recovered volatility, NaN when OK is false.
	Vol float64
	// OK reports whether a root was found inside the bracket.
	OK bool
	// Iterations is the number of solver steps taken.
	Iterations int
}

// noSolution is the sentinel result for inputs with no root in the bracket.
func noSolution() ImpliedVolResult {
	return ImpliedVolResult{Vol: math.NaN(), OK: false}
}

// ImpliedVol inverts the Black-Scholes price for one option observation:
// it finds sigma such that BlackScholesPrice(optType, S, K, T, r, sigma)
// equals marketPrice.
//
// Parameters:
//   - optType: Call or Put
//   - marketPrice: observed option price (last traded or mid)
//   - S: spot price of the underlying
//   - K: strike price
//   - T: time to expiry in years
//   - r: risk-free rate
//
// Returns an ImpliedVolResult; inversion failure is reported through the
// OK flag, never as an error or a spurious value.
func ImpliedVol(optType OptionType, marketPrice, S, K, T, r float64) ImpliedVolResult {
	return ImpliedVolWith(BlackScholesPrice, optType, marketPrice, S, K, T, r)
}

// ImpliedVolWith inverts an arbitrary pricing function. The function must
// be monotonically non-decreasing in sigma over the bracket; under that
// property a sign change at the bracket ends guarantees convergence.
//
// A derivative-free bracketed method (Brent) is used instead of Newton:
// option prices are not reliably differentiable for near-zero time value,
// and vega underflows deep in or out of the money.
func ImpliedVolWith(price PriceFunc, optType OptionType, marketPrice, S, K, T, r float64) ImpliedVolResult {
	// Degenerate inputs never reach the root-finder.
	if T <= 0 || S <= 0 || K <= 0 {
		return noSolution()
	}
	if math.IsNaN(marketPrice) || math.IsInf(marketPrice, 0) || marketPrice < 0 {
		return noSolution()
	}

	f := func(sigma float64) float64 {
		return price(optType, S, K, T, r, sigma) - marketPrice
	}

	root, iters, ok := brent(f, VolLowerBound, VolUpperBound, DefaultVolTolerance, DefaultMaxIterations)
	if !ok {
		return noSolution()
	}
	return ImpliedVolResult{Vol: root, OK: true, Iterations: iters}
}

// brent finds a root of f in [lo, hi] using Brent's method: inverse
// quadratic interpolation and secant steps, falling back to bisection
// whenever a step misbehaves. Requires a sign change over the interval;
// returns ok=false when the endpoints have the same sign or the
// iteration cap is exhausted before |b-a| < tol.
func brent(f func(float64) float64, lo, hi, tol float64, maxIter int) (root float64, iters int, ok bool) {
	a, b := lo, hi
	fa, fb := f(a), f(b)

	if math.IsNaN(fa) || math.IsNaN(fb) || fa*fb > 0 {
		return 0, 0, false
	}
	if fa == 0 {
		return a, 0, true
	}
	if fb == 0 {
		return b, 0, true
	}

	// Keep b the better estimate.
	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
	}

	c, fc := a, fa
	d := b
	mflag := true

	for i := 1; i <= maxIter; i++ {
		var s float64
		if fa != fc && fb != fc {
			// inverse quadratic interpolation
			s = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			// secant step
			s = b - fb*(b-a)/(fb-fa)
		}

		// Reject the step and bisect when s falls outside ((3a+b)/4, b)
		// or progress has stalled.
		bound := (3*a + b) / 4
		switch {
		case (s-bound)*(s-b) >= 0,
			mflag && math.Abs(s-b) >= math.Abs(b-c)/2,
			!mflag && math.Abs(s-b) >= math.Abs(c-d)/2,
			mflag && math.Abs(b-c) < tol,
			!mflag && math.Abs(c-d) < tol:
			s = (a + b) / 2
			mflag = true
		default:
			mflag = false
		}

		fs := f(s)
		d = c
		c, fc = b, fb

		if fa*fs < 0 {
			b, fb = s, fs
		} else {
			a, fa = s, fs
		}

		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
		}

		if fb == 0 || math.Abs(b-a) < tol {
			return b, i, true
		}
	}

	// Iteration cap reached before convergence.
	return 0, maxIter, false
}
