package pricing

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// OptionType identifies the side of an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType normalizes a provider-supplied option type string.
// Accepts "call"/"c" and "put"/"p" in any case.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(s) {
	case "call", "c":
		return Call, nil
	case "put", "p":
		return Put, nil
	}
	return "", fmt.Errorf("unrecognized option type %q", s)
}

// stdNormal is the standard normal distribution used for N(x) and n(x).
var stdNormal = distuv.UnitNormal

// PriceFunc maps pricing inputs to a theoretical option price.
// Implementations must be monotonically non-decreasing in sigma;
// the implied-vol search relies on this property.
type PriceFunc func(optType OptionType, S, K, T, r, sigma float64) float64

// BlackScholesPrice calculates the price of a European option using the
// Black-Scholes model.
//
// Parameters:
//   - optType: Call or Put
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price of the option. If time to expiry or volatility is
//	zero or negative, returns the intrinsic value of the option.
func BlackScholesPrice(
	optType OptionType,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) float64 {

	if T <= 0 || sigma <= 0 {
		// intrinsic fallback
		if optType == Call {
			return math.Max(0, S-K)
		}
		return math.Max(0, K-S)
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)

	if optType == Call {
		return S*stdNormal.CDF(d1) - K*math.Exp(-r*T)*stdNormal.CDF(d2)
	}
	return K*math.Exp(-r*T)*stdNormal.CDF(-d2) - S*stdNormal.CDF(-d1)
}

// BlackScholesVega calculates the vega of a European option under
// Black-Scholes. Vega measures the sensitivity of the option price to
// changes in the underlying asset's volatility, and is identical for
// calls and puts.
//
// Returns 0 if T or sigma is non-positive.
func BlackScholesVega(
	S float64,
	K float64,
	T float64,
	r float64,
	sigma float64,
) float64 {

	if T <= 0 || sigma <= 0 {
		return 0
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	return S * stdNormal.Prob(d1) * math.Sqrt(T)
}
